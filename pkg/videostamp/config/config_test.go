package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "renders/", cfg.Storage.KeyPrefix)
	assert.True(t, cfg.Storage.PublicACL)
	assert.Equal(t, 1280, cfg.Render.TargetWidth)
	assert.Equal(t, 720, cfg.Render.TargetHeight)
	assert.Zero(t, cfg.Render.TargetFPS)
	assert.Equal(t, "ffmpeg", cfg.Render.FFmpegBin)
	assert.Equal(t, "/download", cfg.HTTP.StripSuffix)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("FS_BASE_DIR", t.TempDir())
	t.Setenv("STORAGE_KEY_PREFIX", "video/out/")
	t.Setenv("TARGET_FPS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Equal(t, "video/out/", cfg.Storage.KeyPrefix)
	assert.Equal(t, 30.0, cfg.Render.TargetFPS)
}

func TestValidateS3RequiresBucket(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_S3_BUCKET")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "ftp")

	_, err := Load()
	require.Error(t, err)
}

func TestBuildServiceMemory(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("WORK_ROOT", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	svc, err := cfg.BuildService(slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestBuildServiceWiresVendorAndCallback(t *testing.T) {
	t.Setenv("VENDOR_ENDPOINT_TEMPLATE", "https://api.vendor.example/v1/sessions/{session_id}/assets")
	t.Setenv("VENDOR_TOKEN", "tok")
	t.Setenv("CALLBACK_ENDPOINT", "https://hooks.example.com/render-done")
	t.Setenv("CALLBACK_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)

	svc, err := cfg.BuildService(slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
