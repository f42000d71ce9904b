// Package ffmpeg drives the external encoding and probing tools. The
// filter graph and argument lists are built by dedicated functions so
// scaling and position parameters stay testable without spawning a
// process.
package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// BaseFilterChain normalizes the base stream: constant frame rate,
// square pixels, then a high-quality scale to the target frame size.
func BaseFilterChain(spec videostamp.OverlaySpec, fps float64) string {
	return fmt.Sprintf("fps=%s,setsar=1,scale=%d:%d:flags=lanczos",
		formatFPS(fps), spec.TargetWidth, spec.TargetHeight)
}

// FilterGraph builds the compositing graph: the normalized base stream,
// the overlay converted to an alpha-capable format and scaled to the
// same dimensions, then an alpha composite at the configured offset.
func FilterGraph(spec videostamp.OverlaySpec, fps float64) string {
	parts := []string{
		fmt.Sprintf("[0:v]%s[base]", BaseFilterChain(spec, fps)),
		fmt.Sprintf("[1:v]format=rgba,scale=%d:%d[ovl]", spec.TargetWidth, spec.TargetHeight),
		fmt.Sprintf("[base][ovl]overlay=%d:%d:format=auto[outv]", spec.X, spec.Y),
	}
	return strings.Join(parts, ";")
}

// encodeArgs is the canonical delivery encoding: H.264 with 4:2:0
// chroma, the index moved up front for progressive download, and AAC
// audio at a fixed moderate bitrate.
func encodeArgs(audioBitrate string) []string {
	return []string{
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-c:a", "aac",
		"-b:a", audioBitrate,
	}
}

// composeArgs builds the full ffmpeg argument list. An empty overlayPath
// produces the normalization-and-encode variant without the compositing
// stage. The trailing "?" on the audio map keeps a silent base stream
// from being an error.
func composeArgs(basePath, overlayPath, outPath string, spec videostamp.OverlaySpec, fps float64, audioBitrate string) []string {
	args := []string{"-y", "-i", basePath}
	if overlayPath != "" {
		args = append(args,
			"-i", overlayPath,
			"-filter_complex", FilterGraph(spec, fps),
			"-map", "[outv]",
		)
	} else {
		args = append(args,
			"-vf", BaseFilterChain(spec, fps),
			"-map", "0:v",
		)
	}
	args = append(args, "-map", "0:a?")
	args = append(args, encodeArgs(audioBitrate)...)
	return append(args, outPath)
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
