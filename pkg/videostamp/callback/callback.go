// Package callback posts the published artifact URL back to the
// originating system. Delivery is best effort: a job's outcome never
// depends on whether the callback landed.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

const defaultTimeout = 15 * time.Second

// Config configures the HTTP dispatcher. An empty Endpoint or Token
// disables dispatching entirely.
type Config struct {
	Endpoint string
	Token    string
	Client   *http.Client
	Logger   *slog.Logger
}

// Dispatcher posts completion notifications as JSON.
type Dispatcher struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Dispatcher from the config.
func New(cfg Config) *Dispatcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   client,
		logger:   logger,
	}
}

// Configured reports whether dispatching is enabled.
func (d *Dispatcher) Configured() bool {
	return d.endpoint != "" && d.token != ""
}

type notification struct {
	GalleryID string `json:"gallery_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}

// Dispatch posts the published URL. Any 2xx response counts as sent;
// everything else, including transport failures, is reported as an
// error outcome and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, publishedURL string, src videostamp.SourceReference) videostamp.CallbackOutcome {
	if !d.Configured() {
		return videostamp.CallbackSkipped
	}

	body, err := json.Marshal(notification{
		GalleryID: src.GalleryID,
		SessionID: src.SessionID,
		URL:       publishedURL,
		MediaType: "video/mp4",
	})
	if err != nil {
		d.logger.Error("callback marshal failed", "error", err)
		return videostamp.CallbackError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("callback request build failed", "error", err)
		return videostamp.CallbackError
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("callback delivery failed", "endpoint", d.endpoint, "error", err)
		return videostamp.CallbackError
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("callback rejected", "endpoint", d.endpoint, "status", resp.StatusCode)
		return videostamp.CallbackError
	}

	d.logger.Info("callback sent", "endpoint", d.endpoint, "session_id", src.SessionID, "gallery_id", src.GalleryID)
	return videostamp.CallbackSent
}
