package videostamp_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampworks/video-stamp/pkg/videostamp"
	"github.com/stampworks/video-stamp/pkg/videostamp/extract"
	"github.com/stampworks/video-stamp/pkg/videostamp/fetch"
	memorystorage "github.com/stampworks/video-stamp/pkg/videostamp/storage/memory"
	"github.com/stampworks/video-stamp/pkg/videostamp/urlstrategy"
)

// copyCompositor stands in for the encoder: it copies the base file to
// the output path and records what it was asked to do.
type copyCompositor struct {
	calls    int
	overlays []string
}

func (c *copyCompositor) Compose(ctx context.Context, basePath, overlayPath, outPath string, spec videostamp.OverlaySpec) error {
	c.calls++
	c.overlays = append(c.overlays, overlayPath)
	data, err := os.ReadFile(basePath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

type stubProber struct{ info videostamp.ProbeInfo }

func (p stubProber) Probe(ctx context.Context, path string) videostamp.ProbeInfo { return p.info }

type recordingCallback struct {
	urls    []string
	outcome videostamp.CallbackOutcome
}

func (r *recordingCallback) Dispatch(ctx context.Context, publishedURL string, src videostamp.SourceReference) videostamp.CallbackOutcome {
	r.urls = append(r.urls, publishedURL)
	return r.outcome
}

func newTestService(t *testing.T, store videostamp.BlobStore, opts ...videostamp.Option) videostamp.Service {
	t.Helper()
	base := []videostamp.Option{
		videostamp.WithExtractor(extract.New(extract.DefaultPolicy())),
		videostamp.WithBlobStore(store),
		videostamp.WithURLStrategy(urlstrategy.New(true, 0)),
		videostamp.WithFetcher(fetch.New(fetch.Config{})),
		videostamp.WithCompositor(&copyCompositor{}),
		videostamp.WithKeyPrefix("renders/"),
		videostamp.WithWorkRoot(t.TempDir()),
	}
	svc, err := videostamp.New(append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func TestProcessDirectURL(t *testing.T) {
	var hits int
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("fake-mp4-bytes"))
	}))
	defer media.Close()

	store := memorystorage.New()
	compositor := &copyCompositor{}
	cb := &recordingCallback{outcome: videostamp.CallbackSent}
	svc := newTestService(t, store,
		videostamp.WithCompositor(compositor),
		videostamp.WithProber(stubProber{info: videostamp.ProbeInfo{Width: 640, Height: 480, FPS: 20}}),
		videostamp.WithCallback(cb),
	)

	result, err := svc.Process(context.Background(), map[string]any{
		"id":        "abc123",
		"media_url": media.URL + "/v/clip.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, videostamp.StatusOK, result.Status)
	assert.Equal(t, "abc123", result.JobID)
	assert.Equal(t, media.URL+"/v/clip.mp4", result.MediaURL)
	assert.Equal(t, videostamp.URLKindPublic, result.URLKind)
	assert.Equal(t, "memory://public/renders/abc123.mp4", result.Artifact)
	assert.Equal(t, 640, result.Width)
	assert.Equal(t, videostamp.CallbackSent, result.Callback)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, compositor.calls)
	assert.Equal(t, []string{""}, compositor.overlays, "no overlay configured")
	assert.Equal(t, []string{"memory://public/renders/abc123.mp4"}, cb.urls)

	// The rendered bytes landed in storage under the derived key.
	rc, err := store.Download(context.Background(), "renders/abc123.mp4")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp4-bytes", string(data))
	assert.True(t, store.IsPublic("renders/abc123.mp4"))
}

func TestProcessTraversalIDStaysInWorkDir(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer media.Close()

	// The work root sits one level down so an identifier that climbed
	// out of the job directory would leave a file behind in parent.
	parent := t.TempDir()
	workRoot := filepath.Join(parent, "work")
	require.NoError(t, os.Mkdir(workRoot, 0o755))

	store := memorystorage.New()
	svc := newTestService(t, store, videostamp.WithWorkRoot(workRoot))

	result, err := svc.Process(context.Background(), map[string]any{
		"id":        "../../escaped-artifact",
		"media_url": media.URL + "/v/clip.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, videostamp.StatusOK, result.Status)
	assert.Equal(t, "escaped-artifact", result.JobID)
	assert.Equal(t, "memory://public/renders/escaped-artifact.mp4", result.Artifact)

	// Only the published object survives; nothing leaked past the work
	// directory and the work root is empty again.
	_, err = store.GetObjectMeta(context.Background(), "renders/escaped-artifact.mp4")
	assert.NoError(t, err)
	for _, dir := range []string{parent, filepath.Dir(parent)} {
		_, err := os.Stat(filepath.Join(dir, "escaped-artifact.mp4"))
		assert.True(t, os.IsNotExist(err), "stray file in %s", dir)
	}
	entries, err := os.ReadDir(workRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessIgnoredWithoutSource(t *testing.T) {
	store := memorystorage.New()
	svc := newTestService(t, store)

	result, err := svc.Process(context.Background(), map[string]any{
		"event": "gallery.updated",
		"count": float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, videostamp.StatusIgnored, result.Status)
	assert.Equal(t, "no_mp4_in_payload", result.Reason)
	assert.Empty(t, result.Artifact)
}

type emptyPageResolver struct{ resolved int }

func (p *emptyPageResolver) Resolve(ctx context.Context, pageURL string) (string, bool) {
	p.resolved++
	return "", false
}

func TestProcessPageWithoutVideoIsIgnored(t *testing.T) {
	// Page URL extracted under a priority key, resolver finds nothing,
	// no vendor lookup configured: the job must end ignored with no
	// download attempted.
	var mediaHits int
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaHits++
	}))
	defer media.Close()

	resolver := &emptyPageResolver{}
	store := memorystorage.New()
	svc := newTestService(t, store, videostamp.WithPageResolver(resolver))

	result, err := svc.Process(context.Background(), map[string]any{
		"uid":       "",
		"media_url": media.URL + "/gallery/view",
	})
	require.NoError(t, err)
	assert.Equal(t, videostamp.StatusIgnored, result.Status)
	assert.Equal(t, "no_mp4_in_payload", result.Reason)
	assert.Equal(t, 1, resolver.resolved)
	assert.Zero(t, mediaHits)
}

type stubVendor struct {
	url     string
	lookups int
}

func (v *stubVendor) Lookup(ctx context.Context, sessionID, galleryID string) (string, bool) {
	v.lookups++
	if v.url == "" {
		return "", false
	}
	return v.url, true
}

func TestProcessVendorFallback(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("vendor-video"))
	}))
	defer media.Close()

	vendor := &stubVendor{url: media.URL + "/assets/clip.mp4"}
	store := memorystorage.New()
	svc := newTestService(t, store, videostamp.WithVendorLookup(vendor))

	result, err := svc.Process(context.Background(), map[string]any{
		"session_id": "sess-7",
		"gallery_id": "gal-2",
	})
	require.NoError(t, err)
	assert.Equal(t, videostamp.StatusOK, result.Status)
	assert.Equal(t, 1, vendor.lookups)
	assert.Equal(t, media.URL+"/assets/clip.mp4", result.MediaURL)
}

func TestProcessDownloadFailure(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer media.Close()

	store := memorystorage.New()
	svc := newTestService(t, store, videostamp.WithFetcher(fetch.New(fetch.Config{MaxAttempts: 2})))

	result, err := svc.Process(context.Background(), map[string]any{
		"id":  "dl1",
		"url": media.URL + "/v/clip.mp4",
	})
	require.Error(t, err)
	var dlErr *videostamp.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, 2, dlErr.Attempts)
	assert.Equal(t, videostamp.StatusFailed, result.Status)
	assert.Equal(t, "download_failed", result.Reason)
}

type failingCompositor struct{}

func (failingCompositor) Compose(ctx context.Context, basePath, overlayPath, outPath string, spec videostamp.OverlaySpec) error {
	return &videostamp.EncodeError{ExitCode: 1, Output: "filter parse error", Err: errors.New("exit status 1")}
}

func TestProcessEncodeFailure(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer media.Close()

	store := memorystorage.New()
	svc := newTestService(t, store, videostamp.WithCompositor(failingCompositor{}))

	result, err := svc.Process(context.Background(), map[string]any{
		"id":  "enc1",
		"url": media.URL + "/v/clip.mp4",
	})
	require.Error(t, err)
	assert.Equal(t, videostamp.StatusFailed, result.Status)
	assert.Equal(t, "encode_failed", result.Reason)
	// Nothing published on failure.
	_, err = store.GetObjectMeta(context.Background(), "renders/enc1.mp4")
	assert.Error(t, err)
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	_, err := videostamp.New()
	require.Error(t, err)

	_, err = videostamp.New(videostamp.WithExtractor(extract.New(extract.DefaultPolicy())))
	require.ErrorIs(t, err, videostamp.ErrNoBlobStore)
}
