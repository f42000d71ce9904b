package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// keep only the tail of tool output in errors; ffmpeg banners are long
const maxErrOutput = 4096

// RunnerConfig options for the compositor.
type RunnerConfig struct {
	Binary       string // ffmpeg binary path, default "ffmpeg"
	AudioBitrate string // default "128k"
	Prober       *Prober
}

// Runner composites and encodes through the external ffmpeg binary.
type Runner struct {
	binary       string
	audioBitrate string
	prober       *Prober
}

// NewRunner builds a compositor.
func NewRunner(cfg RunnerConfig) *Runner {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = "128k"
	}
	if cfg.Prober == nil {
		cfg.Prober = NewProber("", 0)
	}
	return &Runner{
		binary:       cfg.Binary,
		audioBitrate: cfg.AudioBitrate,
		prober:       cfg.Prober,
	}
}

// Compose normalizes basePath, composites overlayPath on top of it when
// present, and encodes the result to outPath. The frame rate is the
// configured target or, when unset, the source stream's probed rate
// with the numeric default as last resort. A non-zero exit or missing
// output file is reported as *videostamp.EncodeError with the tool's
// combined output.
func (r *Runner) Compose(ctx context.Context, basePath, overlayPath, outPath string, spec videostamp.OverlaySpec) error {
	fps := spec.TargetFPS
	if fps <= 0 {
		if info := r.prober.Probe(ctx, basePath); info.FPS > 0 {
			fps = info.FPS
		} else {
			fps = videostamp.DefaultFPS
		}
	}

	args := composeArgs(basePath, overlayPath, outPath, spec, fps, r.audioBitrate)
	cmd := exec.CommandContext(ctx, r.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &videostamp.EncodeError{
			ExitCode: exitCode(err),
			Output:   tail(output),
			Err:      err,
		}
	}

	info, statErr := os.Stat(outPath)
	if statErr != nil || info.Size() == 0 {
		return &videostamp.EncodeError{
			ExitCode: 0,
			Output:   tail(output),
			Err:      fmt.Errorf("encoder exited cleanly but produced no output at %s", outPath),
		}
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tail(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxErrOutput {
		s = s[len(s)-maxErrOutput:]
	}
	return s
}
