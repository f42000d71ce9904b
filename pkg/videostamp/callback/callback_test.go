package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

func testSource() videostamp.SourceReference {
	return videostamp.SourceReference{
		URL:       "https://media.example.com/v/clip.mp4",
		Kind:      videostamp.SourceKindDirect,
		SessionID: "sess-1",
		GalleryID: "gal-9",
	}
}

func TestDispatchSendsNotification(t *testing.T) {
	var got notification
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{Endpoint: srv.URL, Token: "secret"})
	outcome := d.Dispatch(context.Background(), "https://cdn.example.com/renders/abc.mp4", testSource())

	assert.Equal(t, videostamp.CallbackSent, outcome)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "gal-9", got.GalleryID)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "https://cdn.example.com/renders/abc.mp4", got.URL)
	assert.Equal(t, "video/mp4", got.MediaType)
}

func TestDispatchSkippedWithoutConfig(t *testing.T) {
	d := New(Config{Endpoint: "https://example.com/hook"})
	assert.Equal(t, videostamp.CallbackSkipped, d.Dispatch(context.Background(), "u", testSource()))

	d = New(Config{Token: "secret"})
	assert.Equal(t, videostamp.CallbackSkipped, d.Dispatch(context.Background(), "u", testSource()))
	assert.False(t, d.Configured())
}

func TestDispatchNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(Config{Endpoint: srv.URL, Token: "secret"})
	assert.Equal(t, videostamp.CallbackError, d.Dispatch(context.Background(), "u", testSource()))
}

func TestDispatchTransportFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	d := New(Config{Endpoint: srv.URL, Token: "secret"})
	assert.Equal(t, videostamp.CallbackError, d.Dispatch(context.Background(), "u", testSource()))
}
