// Package config binds the process configuration from the environment
// and wires a ready-to-serve pipeline service out of it. Configuration
// is read once at startup; nothing in the pipeline consults the
// environment afterwards.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/stampworks/video-stamp/pkg/videostamp"
	"github.com/stampworks/video-stamp/pkg/videostamp/callback"
	"github.com/stampworks/video-stamp/pkg/videostamp/extract"
	"github.com/stampworks/video-stamp/pkg/videostamp/fetch"
	"github.com/stampworks/video-stamp/pkg/videostamp/ffmpeg"
	"github.com/stampworks/video-stamp/pkg/videostamp/resolve"
	fsstorage "github.com/stampworks/video-stamp/pkg/videostamp/storage/fs"
	memorystorage "github.com/stampworks/video-stamp/pkg/videostamp/storage/memory"
	s3storage "github.com/stampworks/video-stamp/pkg/videostamp/storage/s3"
	"github.com/stampworks/video-stamp/pkg/videostamp/urlstrategy"
)

// Config is the full server configuration, bound from the environment.
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	Storage  StorageConfig
	S3       S3Config
	FS       FSConfig
	Render   RenderConfig
	Overlay  OverlayConfig
	HTTP     HTTPConfig
	Vendor   VendorConfig
	Callback CallbackConfig
}

// StorageConfig selects the artifact backend and URL policy.
type StorageConfig struct {
	Backend    string        `env:"STORAGE_BACKEND" env-default:"memory"` // memory, fs, s3
	KeyPrefix  string        `env:"STORAGE_KEY_PREFIX" env-default:"renders/"`
	PublicACL  bool          `env:"STORAGE_PUBLIC_ACL" env-default:"true"`
	PresignTTL time.Duration `env:"STORAGE_PRESIGN_TTL" env-default:"12h"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Bucket          string `env:"AWS_S3_BUCKET"`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
}

// FSConfig configures the filesystem backend.
type FSConfig struct {
	BaseDir   string `env:"FS_BASE_DIR" env-default:"./data"`
	URLPrefix string `env:"FS_URL_PREFIX"`
}

// RenderConfig holds the overlay position and encode targets.
type RenderConfig struct {
	OverlayX     int     `env:"OVERLAY_X" env-default:"0"`
	OverlayY     int     `env:"OVERLAY_Y" env-default:"0"`
	TargetWidth  int     `env:"TARGET_WIDTH" env-default:"1280"`
	TargetHeight int     `env:"TARGET_HEIGHT" env-default:"720"`
	TargetFPS    float64 `env:"TARGET_FPS" env-default:"0"` // 0 = probe the source
	FFmpegBin    string  `env:"FFMPEG_BIN" env-default:"ffmpeg"`
	FFprobeBin   string  `env:"FFPROBE_BIN" env-default:"ffprobe"`
	AudioBitrate string  `env:"AUDIO_BITRATE" env-default:"128k"`
	WorkRoot     string  `env:"WORK_ROOT"` // empty = system temp dir
}

// OverlayConfig locates the overlay asset.
type OverlayConfig struct {
	LocalPath string `env:"OVERLAY_PATH"`
	SourceURL string `env:"OVERLAY_URL"`
	CachePath string `env:"OVERLAY_CACHE_PATH" env-default:"/tmp/videostamp-overlay.mov"`
}

// HTTPConfig bounds outbound HTTP behavior.
type HTTPConfig struct {
	Timeout     time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`
	MaxAttempts int           `env:"HTTP_MAX_ATTEMPTS" env-default:"3"`
	Backoff     time.Duration `env:"HTTP_BACKOFF" env-default:"2s"`
	UserAgent   string        `env:"HTTP_USER_AGENT" env-default:"video-stamp/1.0"`
	StripSuffix string        `env:"PAGE_STRIP_SUFFIX" env-default:"/download"`
}

// VendorConfig enables the vendor asset API fallback when set.
type VendorConfig struct {
	EndpointTemplate string `env:"VENDOR_ENDPOINT_TEMPLATE"`
	AuthHeader       string `env:"VENDOR_AUTH_HEADER" env-default:"Authorization"`
	Token            string `env:"VENDOR_TOKEN"`
}

// CallbackConfig enables the completion callback when both are set.
type CallbackConfig struct {
	Endpoint string `env:"CALLBACK_ENDPOINT"`
	Token    string `env:"CALLBACK_TOKEN"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts of the configuration that would otherwise
// fail deep inside the pipeline.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "fs":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("AWS_S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Render.TargetWidth <= 0 || c.Render.TargetHeight <= 0 {
		return errors.New("target dimensions must be positive")
	}
	if c.Overlay.SourceURL != "" && c.Overlay.CachePath == "" {
		return errors.New("OVERLAY_CACHE_PATH is required with OVERLAY_URL")
	}
	return nil
}

// OverlaySpec returns the shared render spec.
func (c *Config) OverlaySpec() videostamp.OverlaySpec {
	return videostamp.OverlaySpec{
		X:            c.Render.OverlayX,
		Y:            c.Render.OverlayY,
		TargetWidth:  c.Render.TargetWidth,
		TargetHeight: c.Render.TargetHeight,
		TargetFPS:    c.Render.TargetFPS,
	}
}

// BuildBlobStore constructs the configured storage backend.
func (c *Config) BuildBlobStore() (videostamp.BlobStore, error) {
	switch c.Storage.Backend {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   c.FS.BaseDir,
			URLPrefix: c.FS.URLPrefix,
		})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
			PresignDuration: c.Storage.PresignTTL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
}

// BuildService wires the full pipeline from the configuration.
func (c *Config) BuildService(logger *slog.Logger) (videostamp.Service, error) {
	store, err := c.BuildBlobStore()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: c.HTTP.Timeout}
	prober := ffmpeg.NewProber(c.Render.FFprobeBin, videostamp.DefaultFPS)

	opts := []videostamp.Option{
		videostamp.WithExtractor(extract.New(extract.DefaultPolicy())),
		videostamp.WithBlobStore(store),
		videostamp.WithURLStrategy(urlstrategy.New(c.Storage.PublicACL, c.Storage.PresignTTL)),
		videostamp.WithPageResolver(resolve.NewPage(resolve.PageConfig{
			Client:      httpClient,
			UserAgent:   c.HTTP.UserAgent,
			StripSuffix: c.HTTP.StripSuffix,
			MaxAttempts: c.HTTP.MaxAttempts,
			Backoff:     c.HTTP.Backoff,
		})),
		videostamp.WithFetcher(fetch.New(fetch.Config{
			Client:      httpClient,
			UserAgent:   c.HTTP.UserAgent,
			MaxAttempts: c.HTTP.MaxAttempts,
			BackoffBase: c.HTTP.Backoff,
		})),
		videostamp.WithOverlayCache(fetch.NewOverlayCache(fetch.OverlayConfig{
			LocalPath: c.Overlay.LocalPath,
			SourceURL: c.Overlay.SourceURL,
			CachePath: c.Overlay.CachePath,
			Client:    httpClient,
			UserAgent: c.HTTP.UserAgent,
		})),
		videostamp.WithCompositor(ffmpeg.NewRunner(ffmpeg.RunnerConfig{
			Binary:       c.Render.FFmpegBin,
			AudioBitrate: c.Render.AudioBitrate,
			Prober:       prober,
		})),
		videostamp.WithProber(prober),
		videostamp.WithOverlaySpec(c.OverlaySpec()),
		videostamp.WithKeyPrefix(c.Storage.KeyPrefix),
		videostamp.WithWorkRoot(c.Render.WorkRoot),
		videostamp.WithLogger(logger),
	}

	if c.Vendor.EndpointTemplate != "" {
		opts = append(opts, videostamp.WithVendorLookup(resolve.NewVendor(resolve.VendorConfig{
			Client:           httpClient,
			EndpointTemplate: c.Vendor.EndpointTemplate,
			AuthHeader:       c.Vendor.AuthHeader,
			Token:            c.Vendor.Token,
			UserAgent:        c.HTTP.UserAgent,
		})))
	}
	if c.Callback.Endpoint != "" {
		opts = append(opts, videostamp.WithCallback(callback.New(callback.Config{
			Endpoint: c.Callback.Endpoint,
			Token:    c.Callback.Token,
			Client:   httpClient,
			Logger:   logger,
		})))
	}

	return videostamp.New(opts...)
}
