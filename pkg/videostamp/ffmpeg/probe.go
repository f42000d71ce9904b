package ffmpeg

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// Prober inspects media files with ffprobe. Probing is best-effort for
// reporting only: every failure yields an empty result, never an error.
type Prober struct {
	binary      string
	fallbackFPS float64
}

// NewProber builds a prober. fallbackFPS substitutes for frame rates
// that fail to parse; zero means videostamp.DefaultFPS.
func NewProber(binary string, fallbackFPS float64) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if fallbackFPS <= 0 {
		fallbackFPS = videostamp.DefaultFPS
	}
	return &Prober{binary: binary, fallbackFPS: fallbackFPS}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// Probe requests width, height and frame rate for the first video
// stream as structured output.
func (p *Prober) Probe(ctx context.Context, path string) videostamp.ProbeInfo {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-of", "json",
		"--", path)
	output, err := cmd.Output()
	if err != nil {
		return videostamp.ProbeInfo{}
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil || len(parsed.Streams) == 0 {
		return videostamp.ProbeInfo{}
	}

	stream := parsed.Streams[0]
	return videostamp.ProbeInfo{
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    parseRational(stream.RFrameRate, p.fallbackFPS),
	}
}

// parseRational decodes ffprobe's "numerator/denominator" frame-rate
// representation, substituting fallback on malformed input or a zero
// denominator.
func parseRational(value string, fallback float64) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	num, den, found := strings.Cut(value, "/")
	if !found {
		if f, err := strconv.ParseFloat(num, 64); err == nil && f > 0 {
			return f
		}
		return fallback
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return fallback
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || d == 0 {
		return fallback
	}
	return n / d
}
