package videostamp

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for a stored object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// PresignDownloadURL returns a time-limited signed URL for the object
	PresignDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// PublicURL returns the deterministic public URL for the object.
	// Only meaningful when objects are uploaded with a public-read grant.
	PublicURL(objectKey string) (string, error)

	// URI returns the bare storage-location identifier for the object.
	URI(objectKey string) string
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey  string
	MimeType   string
	PublicRead bool
}

// SourceExtractor resolves an inbound payload into a source reference
// and a stable job identifier.
type SourceExtractor interface {
	Extract(payload map[string]any) (SourceReference, bool)
	Identifier(payload map[string]any) string
}

// URLStrategy picks the caller-usable URL for a published object and
// tells backends whether uploads need a public-read grant.
type URLStrategy interface {
	ArtifactURL(ctx context.Context, store BlobStore, objectKey string) (string, URLKind, error)
	PublicRead() bool
}

// PageResolver scrapes a direct media URL out of an HTML landing page.
// All failures degrade to "not found".
type PageResolver interface {
	Resolve(ctx context.Context, pageURL string) (string, bool)
}

// VendorLookup locates a media URL through the vendor asset API. All
// failures degrade to "not found".
type VendorLookup interface {
	Lookup(ctx context.Context, sessionID, galleryID string) (string, bool)
}

// Fetcher downloads a URL to a local file. It returns *DownloadError
// after exhausting retries.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// OverlayCache provisions the shared overlay file. EnsureCached returns
// an empty path with a nil error when no overlay is configured, and an
// error wrapping ErrOverlayUnavailable when provisioning fails.
type OverlayCache interface {
	EnsureCached(ctx context.Context) (string, error)
}

// Compositor normalizes, composites and encodes the base video. An empty
// overlayPath runs the same normalization and encoding without the
// compositing stage. Failures are reported as *EncodeError.
type Compositor interface {
	Compose(ctx context.Context, basePath, overlayPath, outPath string, spec OverlaySpec) error
}

// ProbeInfo holds best-effort stream metadata. Zero values mean probing
// failed; probing never errors.
type ProbeInfo struct {
	Width  int
	Height int
	FPS    float64
}

// Prober inspects a media file for reporting purposes.
type Prober interface {
	Probe(ctx context.Context, path string) ProbeInfo
}

// CallbackDispatcher posts a published URL back to the originating
// system. It never fails the job.
type CallbackDispatcher interface {
	Dispatch(ctx context.Context, publishedURL string, src SourceReference) CallbackOutcome
}
