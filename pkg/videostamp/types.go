package videostamp

// SourceKind classifies how a source reference must be turned into a
// downloadable media URL.
type SourceKind string

const (
	// SourceKindDirect means the URL already points at the media file.
	SourceKindDirect SourceKind = "direct"

	// SourceKindPage means the URL points at an HTML landing page that
	// links to the media file.
	SourceKindPage SourceKind = "page"

	// SourceKindVendorLookup means no URL was present and the media must
	// be located through the vendor asset API using the session and
	// gallery identifiers.
	SourceKindVendorLookup SourceKind = "vendor_lookup"
)

// SourceReference is the resolved pointer to playable media before download.
// It is produced once per job and never mutated.
type SourceReference struct {
	URL       string
	Kind      SourceKind
	SessionID string
	GalleryID string
}

// OverlaySpec is the process-wide overlay and encoding configuration.
// It is loaded once at startup and shared read-only by all jobs.
type OverlaySpec struct {
	// X, Y position the overlay's top-left corner on the base frame.
	X int
	Y int

	// TargetWidth and TargetHeight are the canonical output frame size.
	TargetWidth  int
	TargetHeight int

	// TargetFPS is the output frame rate. Zero means probe the source
	// and fall back to DefaultFPS when probing fails.
	TargetFPS float64
}

// DefaultFPS is used when no target frame rate is configured and the
// source stream cannot be probed.
const DefaultFPS = 20.0

// RenderJob is one unit of pipeline work. The working directory is owned
// exclusively by the job and removed on every exit path.
type RenderJob struct {
	ID          string
	Source      SourceReference
	OverlayPath string
	WorkDir     string
}

// RenderResult describes the composited output file. The probed metadata
// fields are best-effort and zero when probing failed.
type RenderResult struct {
	LocalPath string
	Width     int
	Height    int
	FPS       float64
}

// URLKind records which URL-policy branch produced a published URL.
type URLKind string

const (
	// URLKindPublic is a deterministic public object URL (public-read ACL).
	URLKindPublic URLKind = "public"

	// URLKindPresigned is a time-limited signed URL.
	URLKindPresigned URLKind = "presigned"

	// URLKindRawURI is the bare storage location, not fetchable by a
	// generic HTTP client.
	URLKindRawURI URLKind = "raw_uri"
)

// PublishedArtifact is the durable, retrievable output of a job.
type PublishedArtifact struct {
	StorageKey string
	URL        string
	URLKind    URLKind
}

// Job status values reported to the caller.
const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
	StatusFailed  = "failed"
)

// Stable reason codes for non-ok outcomes.
const (
	ReasonNoSource           = "no_mp4_in_payload"
	ReasonDownloadFailed     = "download_failed"
	ReasonOverlayUnavailable = "overlay_unavailable"
	ReasonEncodeFailed       = "encode_failed"
	ReasonPublishFailed      = "publish_failed"
)

// CallbackOutcome reports the optional result callback. It never affects
// the job status.
type CallbackOutcome string

const (
	CallbackSkipped CallbackOutcome = "skipped"
	CallbackSent    CallbackOutcome = "sent"
	CallbackError   CallbackOutcome = "error"
)

// JobResult is the outcome handed back to the transport layer. A job with
// no resolvable source is a successful "ignored" result, not an error, so
// the sender does not retry.
type JobResult struct {
	JobID    string          `json:"id,omitempty"`
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	MediaURL string          `json:"media_url,omitempty"`
	Artifact string          `json:"url,omitempty"`
	URLKind  URLKind         `json:"url_kind,omitempty"`
	Width    int             `json:"width,omitempty"`
	Height   int             `json:"height,omitempty"`
	FPS      float64         `json:"fps,omitempty"`
	Callback CallbackOutcome `json:"callback,omitempty"`
}
