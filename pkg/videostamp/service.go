package videostamp

import (
	"context"
)

// Service runs the full rendering pipeline for one inbound payload:
// resolve a media source, download it, composite the overlay, re-encode,
// publish the result and optionally notify the originating system.
type Service interface {
	// Process handles one payload end to end. A payload with no
	// resolvable media source yields an "ignored" result with a nil
	// error; pipeline failures yield a "failed" result together with
	// the underlying error.
	Process(ctx context.Context, payload map[string]any) (JobResult, error)
}
