// Package fetch downloads remote assets to local storage with bounded
// retries, and maintains the process-wide overlay cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// chunkSize bounds memory use while streaming large media files to disk.
const chunkSize = 1 << 20

// driveHostRe recognizes the large-file-hosting sharing URLs that need a
// confirmation handshake before the body is the real content.
var driveHostRe = regexp.MustCompile(`(?i)(drive|docs)\.google\.com`)

// confirmTokenRe extracts the confirmation token from an interstitial
// page body.
var confirmTokenRe = regexp.MustCompile(`confirm=([0-9A-Za-z_\-]+)`)

// confirmCookiePrefix matches the cookie carrying the same token.
const confirmCookiePrefix = "download_warning"

// probeLimit caps how much of an interstitial page is read while looking
// for a token.
const probeLimit = 2 << 20

// Config options for the asset fetcher.
type Config struct {
	Client      *http.Client
	UserAgent   string
	MaxAttempts int           // default 3
	BackoffBase time.Duration // linear backoff: base * attempt index
}

// Client downloads URLs to local files. Safe for concurrent use.
type Client struct {
	http        *http.Client
	userAgent   string
	maxAttempts int
	backoffBase time.Duration
}

// New builds an asset fetcher.
func New(cfg Config) *Client {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "video-stamp/1.0"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		http:        cfg.Client,
		userAgent:   cfg.UserAgent,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
	}
}

// Fetch downloads rawURL to destPath, retrying with linear backoff. The
// returned *videostamp.DownloadError carries the final attempt's cause.
func (c *Client) Fetch(ctx context.Context, rawURL, destPath string) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if lastErr = c.download(ctx, rawURL, destPath); lastErr == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return &videostamp.DownloadError{URL: rawURL, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(c.backoffBase * time.Duration(attempt)):
		}
	}
	return &videostamp.DownloadError{URL: rawURL, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) download(ctx context.Context, rawURL, destPath string) error {
	if driveHostRe.MatchString(rawURL) {
		return c.downloadDrive(ctx, rawURL, destPath)
	}

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return writeStream(destPath, resp.Body, nil)
}

// downloadDrive performs the two-step sharing handshake: request the
// URL, pull a confirmation token from a cookie or the interstitial page
// body, then request again with the token as a query parameter. With no
// token present, the first response already is the content.
func (c *Client) downloadDrive(ctx context.Context, rawURL, destPath string) error {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	for _, cookie := range resp.Cookies() {
		if strings.HasPrefix(cookie.Name, confirmCookiePrefix) && cookie.Value != "" {
			return c.confirmedDownload(ctx, rawURL, cookie.Value, destPath)
		}
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return writeStream(destPath, resp.Body, nil)
	}

	probe, err := io.ReadAll(io.LimitReader(resp.Body, probeLimit))
	if err != nil {
		return err
	}
	if m := confirmTokenRe.FindSubmatch(probe); m != nil {
		return c.confirmedDownload(ctx, rawURL, string(m[1]), destPath)
	}

	// No confirmation needed; the probe bytes are the content's head.
	return writeStream(destPath, resp.Body, probe)
}

func (c *Client) confirmedDownload(ctx context.Context, rawURL, token, destPath string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("confirm", token)
	u.RawQuery = q.Encode()

	resp, err := c.get(ctx, u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s after confirmation", resp.Status)
	}
	return writeStream(destPath, resp.Body, nil)
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return c.http.Do(req)
}

// writeStream copies the body to destPath in fixed-size chunks so large
// files never sit in memory. head, when present, is written first.
func writeStream(destPath string, body io.Reader, head []byte) error {
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(head) > 0 {
		if _, err := f.Write(head); err != nil {
			return err
		}
	}
	if _, err := io.CopyBuffer(f, body, make([]byte, chunkSize)); err != nil {
		return err
	}
	return f.Close()
}
