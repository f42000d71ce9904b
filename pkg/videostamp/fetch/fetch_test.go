package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

func newFetcher(attempts int) *Client {
	return New(Config{MaxAttempts: attempts, BackoffBase: 0})
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("media-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, newFetcher(3).Fetch(context.Background(), srv.URL+"/clip.mp4", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(data))
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.Write([]byte("third time lucky"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, newFetcher(3).Fetch(context.Background(), srv.URL, dest))
	assert.Equal(t, int32(3), hits.Load())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", string(data))
}

func TestFetch_ExhaustedRetriesSurfaceLastCause(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newFetcher(3).Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.mp4"))
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())

	var dlErr *videostamp.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, 3, dlErr.Attempts)
	assert.Contains(t, dlErr.Err.Error(), "503")
}

func TestFetch_DriveCookieToken(t *testing.T) {
	var confirmed atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("confirm"); token != "" {
			confirmed.Store(token)
			w.Write([]byte("real content"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "download_warning_123", Value: "tok42"})
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>virus scan warning</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// The drive handshake triggers on the host pattern; point the fake
	// server behind a rewriting transport.
	client := &http.Client{Transport: rewriteHost(srv)}
	f := New(Config{Client: client, MaxAttempts: 1})

	dest := filepath.Join(t.TempDir(), "drive.mp4")
	require.NoError(t, f.Fetch(context.Background(), "https://drive.google.com/uc?id=abc", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "real content", string(data))
	assert.Equal(t, "tok42", confirmed.Load())
}

func TestFetch_DriveBodyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "bodytok" {
			w.Write([]byte("confirmed content"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/uc?id=abc&confirm=bodytok">Download anyway</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(Config{Client: &http.Client{Transport: rewriteHost(srv)}, MaxAttempts: 1})
	dest := filepath.Join(t.TempDir(), "drive.mp4")
	require.NoError(t, f.Fetch(context.Background(), "https://drive.google.com/uc?id=abc", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "confirmed content", string(data))
}

func TestFetch_DriveNoTokenUsesFirstResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("direct drive bytes"))
	}))
	defer srv.Close()

	f := New(Config{Client: &http.Client{Transport: rewriteHost(srv)}, MaxAttempts: 1})
	dest := filepath.Join(t.TempDir(), "drive.mp4")
	require.NoError(t, f.Fetch(context.Background(), "https://drive.google.com/uc?id=abc", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "direct drive bytes", string(data))
}

// rewriteHost sends every request to the test server regardless of the
// requested host.
func rewriteHost(srv *httptest.Server) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
