package videostamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/smithy-go"
)

// service implements the Service interface
type service struct {
	extractor    SourceExtractor
	blobStore    BlobStore
	urlStrategy  URLStrategy
	pageResolver PageResolver
	vendorLookup VendorLookup
	fetcher      Fetcher
	overlayCache OverlayCache
	compositor   Compositor
	prober       Prober
	callback     CallbackDispatcher

	spec            OverlaySpec
	keyPrefix       string
	workRoot        string
	publishAttempts int
	publishBackoff  time.Duration
	logger          *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithExtractor sets the payload source extractor
func WithExtractor(e SourceExtractor) Option {
	return func(s *service) { s.extractor = e }
}

// WithBlobStore sets the storage backend published artifacts go to
func WithBlobStore(store BlobStore) Option {
	return func(s *service) { s.blobStore = store }
}

// WithURLStrategy sets the published-URL policy
func WithURLStrategy(strategy URLStrategy) Option {
	return func(s *service) { s.urlStrategy = strategy }
}

// WithPageResolver enables resolving HTML landing pages to media URLs
func WithPageResolver(r PageResolver) Option {
	return func(s *service) { s.pageResolver = r }
}

// WithVendorLookup enables the vendor asset API fallback
func WithVendorLookup(v VendorLookup) Option {
	return func(s *service) { s.vendorLookup = v }
}

// WithFetcher sets the media downloader
func WithFetcher(f Fetcher) Option {
	return func(s *service) { s.fetcher = f }
}

// WithOverlayCache sets the overlay provisioner
func WithOverlayCache(c OverlayCache) Option {
	return func(s *service) { s.overlayCache = c }
}

// WithCompositor sets the overlay/encode runner
func WithCompositor(c Compositor) Option {
	return func(s *service) { s.compositor = c }
}

// WithProber sets the best-effort output stream prober
func WithProber(p Prober) Option {
	return func(s *service) { s.prober = p }
}

// WithCallback sets the completion notification dispatcher
func WithCallback(d CallbackDispatcher) Option {
	return func(s *service) { s.callback = d }
}

// WithOverlaySpec sets the shared overlay position and encode targets
func WithOverlaySpec(spec OverlaySpec) Option {
	return func(s *service) { s.spec = spec }
}

// WithKeyPrefix sets the object-key prefix for published artifacts
func WithKeyPrefix(prefix string) Option {
	return func(s *service) { s.keyPrefix = prefix }
}

// WithWorkRoot sets the parent directory for per-job scratch directories
func WithWorkRoot(dir string) Option {
	return func(s *service) { s.workRoot = dir }
}

// WithPublishRetry bounds the upload retry loop
func WithPublishRetry(attempts int, backoff time.Duration) Option {
	return func(s *service) {
		if attempts > 0 {
			s.publishAttempts = attempts
		}
		s.publishBackoff = backoff
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		publishAttempts: 3,
		publishBackoff:  2 * time.Second,
		logger:          slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	if s.extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if s.blobStore == nil {
		return nil, ErrNoBlobStore
	}
	if s.urlStrategy == nil {
		return nil, fmt.Errorf("url strategy is required")
	}
	if s.fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if s.compositor == nil {
		return nil, fmt.Errorf("compositor is required")
	}

	return s, nil
}

func (s *service) Process(ctx context.Context, payload map[string]any) (JobResult, error) {
	jobID := s.extractor.Identifier(payload)
	log := s.logger.With("job_id", jobID)

	src, err := s.resolveSource(ctx, payload, log)
	if err != nil {
		log.Info("no media source in payload, ignoring")
		return JobResult{JobID: jobID, Status: StatusIgnored, Reason: ReasonNoSource}, nil
	}
	log.Info("media source resolved", "url", src.URL, "kind", src.Kind)

	workDir, err := os.MkdirTemp(s.workRoot, "videostamp-")
	if err != nil {
		return JobResult{JobID: jobID, Status: StatusFailed, Reason: ReasonDownloadFailed},
			fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	job := RenderJob{ID: jobID, Source: src, WorkDir: workDir}
	if s.overlayCache != nil {
		job.OverlayPath, err = s.overlayCache.EnsureCached(ctx)
		if err != nil {
			log.Error("overlay provisioning failed", "error", err)
			return JobResult{JobID: jobID, Status: StatusFailed, Reason: ReasonOverlayUnavailable, MediaURL: src.URL}, err
		}
	}

	rendered, err := s.render(ctx, job, log)
	if err != nil {
		reason := ReasonEncodeFailed
		var dlErr *DownloadError
		if errors.As(err, &dlErr) {
			reason = ReasonDownloadFailed
		}
		return JobResult{JobID: jobID, Status: StatusFailed, Reason: reason, MediaURL: src.URL}, err
	}

	artifact, err := s.publish(ctx, job, rendered.LocalPath, log)
	if err != nil {
		log.Error("publish failed", "error", err)
		return JobResult{JobID: jobID, Status: StatusFailed, Reason: ReasonPublishFailed, MediaURL: src.URL}, err
	}

	outcome := CallbackSkipped
	if s.callback != nil {
		outcome = s.callback.Dispatch(ctx, artifact.URL, src)
	}

	log.Info("render published", "key", artifact.StorageKey, "url_kind", artifact.URLKind, "callback", outcome)
	return JobResult{
		JobID:    jobID,
		Status:   StatusOK,
		MediaURL: src.URL,
		Artifact: artifact.URL,
		URLKind:  artifact.URLKind,
		Width:    rendered.Width,
		Height:   rendered.Height,
		FPS:      rendered.FPS,
		Callback: outcome,
	}, nil
}

// resolveSource turns the extracted reference into a downloadable URL,
// or ErrNoSource when extraction, page resolution and vendor lookup all
// come up empty. Failed page resolution falls through to the vendor
// lookup when session identifiers are available, matching the
// extraction precedence.
func (s *service) resolveSource(ctx context.Context, payload map[string]any, log *slog.Logger) (SourceReference, error) {
	src, ok := s.extractor.Extract(payload)
	if !ok {
		return SourceReference{}, ErrNoSource
	}

	switch src.Kind {
	case SourceKindDirect:
		return src, nil

	case SourceKindPage:
		if s.pageResolver != nil {
			if mediaURL, found := s.pageResolver.Resolve(ctx, src.URL); found {
				src.URL = mediaURL
				src.Kind = SourceKindDirect
				return src, nil
			}
			log.Info("page resolution found no media", "page_url", src.URL)
		}
		return s.lookupVendor(ctx, src)

	case SourceKindVendorLookup:
		return s.lookupVendor(ctx, src)
	}

	return SourceReference{}, ErrNoSource
}

func (s *service) lookupVendor(ctx context.Context, src SourceReference) (SourceReference, error) {
	if s.vendorLookup == nil || src.SessionID == "" {
		return SourceReference{}, ErrNoSource
	}
	mediaURL, found := s.vendorLookup.Lookup(ctx, src.SessionID, src.GalleryID)
	if !found {
		return SourceReference{}, ErrNoSource
	}
	src.URL = mediaURL
	src.Kind = SourceKindDirect
	return src, nil
}

// render downloads the source into the job's work directory and runs
// the compositor over it, returning the output description with
// best-effort probed metadata.
func (s *service) render(ctx context.Context, job RenderJob, log *slog.Logger) (RenderResult, error) {
	basePath := filepath.Join(job.WorkDir, "source.mp4")
	if err := s.fetcher.Fetch(ctx, job.Source.URL, basePath); err != nil {
		log.Error("media download failed", "url", job.Source.URL, "error", err)
		return RenderResult{}, err
	}

	outPath := filepath.Join(job.WorkDir, job.ID+".mp4")
	if err := s.compositor.Compose(ctx, basePath, job.OverlayPath, outPath, s.spec); err != nil {
		log.Error("compositing failed", "error", err)
		return RenderResult{}, err
	}

	result := RenderResult{LocalPath: outPath}
	if s.prober != nil {
		info := s.prober.Probe(ctx, outPath)
		result.Width, result.Height, result.FPS = info.Width, info.Height, info.FPS
	}
	return result, nil
}

// publish uploads the rendered file with bounded retries and resolves
// its caller-usable URL. Client-fault storage errors are terminal;
// server faults and transport failures are retried.
func (s *service) publish(ctx context.Context, job RenderJob, localPath string, log *slog.Logger) (PublishedArtifact, error) {
	objectKey := s.keyPrefix + job.ID + ".mp4"
	params := UploadParams{
		ObjectKey:  objectKey,
		MimeType:   "video/mp4",
		PublicRead: s.urlStrategy.PublicRead(),
	}

	var lastErr error
	for attempt := 1; attempt <= s.publishAttempts; attempt++ {
		f, err := os.Open(localPath)
		if err != nil {
			return PublishedArtifact{}, &PublishError{Key: objectKey, Op: "open", Err: err}
		}
		err = s.blobStore.UploadWithParams(ctx, f, params)
		f.Close()
		if err == nil {
			return s.resolveArtifact(ctx, objectKey)
		}
		lastErr = err

		if !retryableUploadError(err) {
			break
		}
		log.Warn("upload attempt failed", "key", objectKey, "attempt", attempt, "error", err)
		if attempt < s.publishAttempts {
			select {
			case <-ctx.Done():
				return PublishedArtifact{}, &PublishError{Key: objectKey, Op: "upload", Err: ctx.Err()}
			case <-time.After(s.publishBackoff * time.Duration(attempt)):
			}
		}
	}
	return PublishedArtifact{}, &PublishError{Key: objectKey, Op: "upload", Err: lastErr}
}

func (s *service) resolveArtifact(ctx context.Context, objectKey string) (PublishedArtifact, error) {
	url, kind, err := s.urlStrategy.ArtifactURL(ctx, s.blobStore, objectKey)
	if err != nil {
		return PublishedArtifact{}, &PublishError{Key: objectKey, Op: "url", Err: err}
	}
	return PublishedArtifact{StorageKey: objectKey, URL: url, URLKind: kind}, nil
}

// retryableUploadError reports whether an upload failure is worth
// retrying. Definite client faults from the storage API will fail the
// same way again; everything else is treated as transient.
func retryableUploadError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() != smithy.FaultClient
	}
	return true
}
