package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"mpdgrab/internal/logger"

	"github.com/alessio/shellescape"
)

// MediaTool is the external multiplexing and inspection capability.
type MediaTool interface {
	// Mux combines the first video stream of videoPath with the first audio
	// stream of audioPath into outPath without re-encoding.
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
	// ProbeDuration returns the container duration of path in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// MuxError reports a multiplexer invocation that exited unsuccessfully.
type MuxError struct {
	Output   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *MuxError) Error() string {
	msg := fmt.Sprintf("mux into %s failed (exit %d)", e.Output, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *MuxError) Unwrap() error { return e.Err }

// FFmpeg implements MediaTool with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FfmpegBin  string
	FfprobeBin string
	logger     logger.Logger
}

// NewFFmpeg creates an FFmpeg tool. Empty binary names fall back to PATH lookup.
func NewFFmpeg(log logger.Logger, ffmpegBin, ffprobeBin string) *FFmpeg {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpeg{FfmpegBin: ffmpegBin, FfprobeBin: ffprobeBin, logger: log}
}

// MuxArgs returns the ffmpeg arguments that copy the first input's video and
// the second input's audio into out.
func MuxArgs(videoPath, audioPath, outPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		outPath,
	}
}

// ProbeArgs returns the ffprobe arguments that print the container duration.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	}
}

func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	args := MuxArgs(videoPath, audioPath, outPath)
	f.logger.Debugf("Running %s %s", f.FfmpegBin, shellescape.QuoteCommand(args))

	// #nosec G204 - binary comes from configuration and arguments are fixed
	cmd := exec.CommandContext(ctx, f.FfmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &MuxError{Output: outPath, ExitCode: code, Stderr: tail(stderr.String(), 4096), Err: err}
	}
	return nil
}

func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := ProbeArgs(path)
	f.logger.Debugf("Running %s %s", f.FfprobeBin, shellescape.QuoteCommand(args))

	// #nosec G204 - binary comes from configuration and arguments are fixed
	cmd := exec.CommandContext(ctx, f.FfprobeBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w (stderr: %s)", path, err, tail(stderr.String(), 4096))
	}
	return ParseProbeOutput(string(out))
}

// ParseProbeOutput parses the duration printed by ffprobe in csv=p=0 form.
func ParseProbeOutput(out string) (float64, error) {
	s := strings.TrimSpace(out)
	// Some builds print one line per selected section; the first is the format duration.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", out, err)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("unexpected ffprobe output %q: duration is not finite", out)
	}
	return d, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}
