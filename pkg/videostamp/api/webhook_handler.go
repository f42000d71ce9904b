// Package api exposes the webhook transport over chi. The sender's
// retry behavior is the controlling concern here: every handled request
// gets a 200 with a JSON body describing the outcome, so upstream
// systems never replay events the pipeline has already judged.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// maxBodyBytes bounds how much of an inbound payload is read.
const maxBodyBytes = 1 << 20

// rawLogLimit bounds how much raw payload lands in the log when the
// body does not decode cleanly.
const rawLogLimit = 2048

// WebhookHandler handles inbound event notifications.
type WebhookHandler struct {
	service videostamp.Service
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service videostamp.Service, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{service: service, logger: logger}
}

// Routes returns the routes for the webhook endpoint
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.HandleEvent)
	r.Post("/test", h.HandleTest)

	return r
}

// HandleEvent decodes the payload, runs the pipeline and reports the
// result. It responds 200 regardless of the job outcome.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	payload := h.decodePayload(r)

	result, err := h.service.Process(r.Context(), payload)
	if err != nil {
		h.logger.Error("job failed", "job_id", result.JobID, "reason", result.Reason, "error", err)
	}

	render.JSON(w, r, result)
}

// HandleTest echoes the decoded payload back so integrations can verify
// their delivery shape without triggering a render.
func (h *WebhookHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	payload := h.decodePayload(r)

	render.JSON(w, r, map[string]any{
		"status":  "received",
		"payload": payload,
	})
}

// decodePayload accepts anything a sender might post: a JSON object,
// an HTML form, or a raw body that happens to parse as JSON. Undecodable
// bodies yield an empty payload, which the pipeline reports as ignored.
func (h *WebhookHandler) decodePayload(r *http.Request) map[string]any {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("payload read failed", "error", err)
		return map[string]any{}
	}

	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil && payload != nil {
		return payload
	}

	if formPayload := formValues(r, body); len(formPayload) > 0 {
		return formPayload
	}

	var loose any
	if json.Unmarshal(body, &loose) == nil && loose != nil {
		return map[string]any{"data": loose}
	}

	h.logger.Warn("undecodable payload", "content_type", r.Header.Get("Content-Type"), "raw", truncate(body, rawLogLimit))
	return map[string]any{}
}

// formValues re-parses the consumed body as a URL-encoded form. Single
// values come through as strings, repeated keys as a slice.
func formValues(r *http.Request, body []byte) map[string]any {
	clone := r.Clone(r.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	if err := clone.ParseForm(); err != nil {
		return nil
	}

	payload := make(map[string]any, len(clone.PostForm))
	for key, values := range clone.PostForm {
		if len(values) == 1 {
			payload[key] = values[0]
			continue
		}
		items := make([]any, len(values))
		for i, v := range values {
			items[i] = v
		}
		payload[key] = items
	}
	return payload
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
