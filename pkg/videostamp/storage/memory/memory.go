package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// Backend is an in-memory implementation of the videostamp.BlobStore
// interface, used by tests.
type Backend struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	mimeTypes map[string]string
	public    map[string]bool
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
		public:    make(map[string]bool),
	}
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, videostamp.UploadParams{
		ObjectKey: objectKey,
		MimeType:  "application/octet-stream",
	})
}

// UploadWithParams uploads content with parameters
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params videostamp.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[params.ObjectKey] = data
	b.mimeTypes[params.ObjectKey] = params.MimeType
	b.public[params.ObjectKey] = params.PublicRead
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return errors.New("object not found")
	}
	delete(b.objects, objectKey)
	delete(b.mimeTypes, objectKey)
	delete(b.public, objectKey)
	return nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*videostamp.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, errors.New("object not found")
	}
	return &videostamp.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: b.mimeTypes[objectKey],
		Metadata:    map[string]string{"content_type": b.mimeTypes[objectKey]},
	}, nil
}

// PresignDownloadURL returns a stable fake signed URL.
func (b *Backend) PresignDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("memory://signed/%s?expires=%d", objectKey, int64(expiry.Seconds())), nil
}

// PublicURL returns a stable fake public URL.
func (b *Backend) PublicURL(objectKey string) (string, error) {
	return "memory://public/" + objectKey, nil
}

// URI returns the storage location.
func (b *Backend) URI(objectKey string) string {
	return "memory://" + objectKey
}

// IsPublic reports whether the object was uploaded with a public-read
// grant. Test helper.
func (b *Backend) IsPublic(objectKey string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.public[objectKey]
}
