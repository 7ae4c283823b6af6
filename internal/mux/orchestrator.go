package mux

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"
	"mpdgrab/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// DefaultMaxDurationDelta is the largest duration difference, in seconds,
// tolerated between two passive tracks before they are treated as a pair.
const DefaultMaxDurationDelta = 0.5

// TrackFile is a reassembled track already written to disk.
type TrackFile struct {
	Path string
	Size int64
}

// Orchestrator pairs video and audio tracks and hands them to a MediaTool.
type Orchestrator struct {
	tool     MediaTool
	logger   logger.Logger
	workDir  string
	maxDelta float64
}

// NewOrchestrator creates an orchestrator writing mux temporaries under workDir.
func NewOrchestrator(log logger.Logger, tool MediaTool, workDir string, maxDelta float64) *Orchestrator {
	if maxDelta <= 0 {
		maxDelta = DefaultMaxDurationDelta
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Orchestrator{tool: tool, logger: log, workDir: workDir, maxDelta: maxDelta}
}

// MuxTracks muxes a known video/audio pair into outPath. Both tracks are
// written to temporaries that are removed whatever the outcome. A failed
// invocation is returned as *MuxError.
func (o *Orchestrator) MuxTracks(ctx context.Context, video, audio models.Track, outPath string) error {
	if err := os.MkdirAll(o.workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir %s: %w", o.workDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir for %s: %w", outPath, err)
	}

	id := uuid.NewString()
	videoPath := filepath.Join(o.workDir, id+"-video.mp4")
	audioPath := filepath.Join(o.workDir, id+"-audio.mp4")
	defer o.removeTemp(videoPath)
	defer o.removeTemp(audioPath)

	if err := os.WriteFile(videoPath, video.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write video temporary: %w", err)
	}
	if err := os.WriteFile(audioPath, audio.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write audio temporary: %w", err)
	}

	if err := o.mux(ctx, "manifest", videoPath, audioPath, outPath); err != nil {
		return err
	}
	o.logger.Infof("Muxed video %q (%s) and audio %q (%s) => %s",
		video.ID, humanize.Bytes(uint64(video.Size())), audio.ID, humanize.Bytes(uint64(audio.Size())), outPath)
	return nil
}

// PairPassive picks the two largest .mp4 tracks as a video/audio candidate
// pair and muxes them into outPath only when their probed durations differ by
// less than the configured delta. It reports whether a mux happened. Fewer
// than two candidates or a failed duration gate is not an error.
func (o *Orchestrator) PairPassive(ctx context.Context, files []TrackFile, outPath string) (bool, error) {
	var candidates []TrackFile
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.Path), ".mp4") {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) < 2 {
		o.logger.Debugf("Passive pairing skipped: %d mp4 candidate(s)", len(candidates))
		return false, nil
	}

	slices.SortStableFunc(candidates, func(a, b TrackFile) int {
		switch {
		case a.Size > b.Size:
			return -1
		case a.Size < b.Size:
			return 1
		}
		return 0
	})
	video, audio := candidates[0], candidates[1]
	if _, err := os.Stat(outPath); err == nil {
		o.logger.Warnf("Passive pairing skipped: %s already exists", outPath)
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to check output %s: %w", outPath, err)
	}

	videoDur := o.probe(ctx, video.Path)
	audioDur := o.probe(ctx, audio.Path)
	delta := math.Abs(videoDur - audioDur)
	if !(delta < o.maxDelta) {
		o.logger.Infof("Passive pairing rejected: %s (%.3fs) and %s (%.3fs) differ by %.3fs",
			filepath.Base(video.Path), videoDur, filepath.Base(audio.Path), audioDur, delta)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return false, fmt.Errorf("failed to create output dir for %s: %w", outPath, err)
	}
	if err := o.mux(ctx, "passive", video.Path, audio.Path, outPath); err != nil {
		return false, err
	}
	o.logger.Infof("Merged passive pair %s + %s => %s", filepath.Base(video.Path), filepath.Base(audio.Path), outPath)
	return true, nil
}

func (o *Orchestrator) mux(ctx context.Context, path, videoPath, audioPath, outPath string) error {
	err := o.tool.Mux(ctx, videoPath, audioPath, outPath)
	if err == nil {
		metrics.MuxTotal.WithLabelValues(path, "ok").Inc()
		return nil
	}
	metrics.MuxTotal.WithLabelValues(path, "failed").Inc()

	var muxErr *MuxError
	if !errors.As(err, &muxErr) {
		muxErr = &MuxError{Output: outPath, ExitCode: -1, Err: err}
	}
	return muxErr
}

// probe returns the duration of path, or 0 when probing fails.
func (o *Orchestrator) probe(ctx context.Context, path string) float64 {
	d, err := o.tool.ProbeDuration(ctx, path)
	if err != nil {
		o.logger.Warnf("Duration probe failed for %s: %v", path, err)
		return 0
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		o.logger.Warnf("Duration probe for %s returned %v, treating as 0", path, d)
		return 0
	}
	return d
}

func (o *Orchestrator) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warnf("Failed to remove temporary %s: %v", path, err)
	}
}
