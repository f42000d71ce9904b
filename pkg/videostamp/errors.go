package videostamp

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNoSource indicates extraction, page resolution and vendor lookup
	// all failed to produce a media URL. The job ends as "ignored".
	ErrNoSource = errors.New("no media source found in payload")

	// ErrOverlayUnavailable indicates the overlay file could not be
	// provisioned and no overlay source is configured.
	ErrOverlayUnavailable = errors.New("overlay unavailable")

	// ErrNoBlobStore indicates no storage backend was configured.
	ErrNoBlobStore = errors.New("storage backend not configured")
)

// DownloadError reports that fetching an asset failed after exhausting
// retries. Err carries the final attempt's underlying cause.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// EncodeError reports a non-zero exit (or missing output file) from the
// encoding tool, with its captured combined output for diagnosis.
type EncodeError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode failed (exit %d): %v: %s", e.ExitCode, e.Err, e.Output)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// PublishError reports a storage upload failure after bounded retries.
type PublishError struct {
	Key string
	Op  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
