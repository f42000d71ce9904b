package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// OverlayConfig options for the overlay cache.
type OverlayConfig struct {
	// LocalPath is a pre-provisioned overlay file, preferred when it
	// exists.
	LocalPath string

	// SourceURL is the remote overlay asset, downloaded once into
	// CachePath.
	SourceURL string

	// CachePath is where the downloaded overlay lives across jobs.
	CachePath string

	Client    *http.Client
	UserAgent string
}

// OverlayCache provisions the fixed overlay file shared by all jobs.
// Population installs through an atomic rename, so concurrent jobs
// racing to fill the cache either redundantly download to their own
// pending file or observe a fully formed cache file, never a partial
// one. No lock is held; the rename is the publication point.
type OverlayCache struct {
	localPath string
	sourceURL string
	cachePath string
	client    *http.Client
	userAgent string
}

// NewOverlayCache builds the cache. A config with neither a local path
// nor a source URL disables the overlay entirely.
func NewOverlayCache(cfg OverlayConfig) *OverlayCache {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "video-stamp/1.0"
	}
	return &OverlayCache{
		localPath: cfg.LocalPath,
		sourceURL: cfg.SourceURL,
		cachePath: cfg.CachePath,
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
	}
}

// EnsureCached returns the local overlay path, downloading it on first
// use. It returns an empty path with a nil error when no overlay is
// configured, and an error wrapping videostamp.ErrOverlayUnavailable
// when an overlay is configured but cannot be provisioned.
func (o *OverlayCache) EnsureCached(ctx context.Context) (string, error) {
	if o.localPath != "" {
		if info, err := os.Stat(o.localPath); err == nil && info.Size() > 0 {
			return o.localPath, nil
		}
	}

	if o.sourceURL == "" {
		if o.localPath == "" {
			return "", nil
		}
		return "", fmt.Errorf("%w: local overlay %s missing and no source url configured",
			videostamp.ErrOverlayUnavailable, o.localPath)
	}

	if o.cachePath == "" {
		return "", fmt.Errorf("%w: overlay cache path not configured", videostamp.ErrOverlayUnavailable)
	}

	if info, err := os.Stat(o.cachePath); err == nil && info.Size() > 0 {
		return o.cachePath, nil
	}

	if err := o.populate(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", videostamp.ErrOverlayUnavailable, err)
	}
	return o.cachePath, nil
}

func (o *OverlayCache) populate(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(o.cachePath), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.sourceURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s fetching overlay", resp.Status)
	}

	pending, err := renameio.NewPendingFile(o.cachePath)
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	if _, err := io.CopyBuffer(pending, resp.Body, make([]byte, chunkSize)); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
