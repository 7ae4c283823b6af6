package mux

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mpdgrab/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type muxCall struct {
	Video, Audio, Out string
	VideoData         []byte
	AudioData         []byte
}

// fakeTool records mux invocations and answers probes from a fixed table.
type fakeTool struct {
	mu        sync.Mutex
	calls     []muxCall
	durations map[string]float64
	muxErr    error
}

func (f *fakeTool) Mux(_ context.Context, videoPath, audioPath, outPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := os.ReadFile(videoPath)
	a, _ := os.ReadFile(audioPath)
	f.calls = append(f.calls, muxCall{Video: videoPath, Audio: audioPath, Out: outPath, VideoData: v, AudioData: a})
	if f.muxErr != nil {
		return f.muxErr
	}
	return os.WriteFile(outPath, append(v, a...), 0o644)
}

func (f *fakeTool) ProbeDuration(_ context.Context, path string) (float64, error) {
	d, ok := f.durations[filepath.Base(path)]
	if !ok {
		return 0, errors.New("no duration")
	}
	return d, nil
}

func writeTrack(t *testing.T, dir, name string, size int) TrackFile {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return TrackFile{Path: p, Size: int64(size)}
}

func TestMuxTracks_OrderAndCleanup(t *testing.T) {
	work := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "post.mp4")
	tool := &fakeTool{}
	o := NewOrchestrator(&mockLogger{}, tool, work, 0)

	err := o.MuxTracks(context.Background(),
		models.Track{ID: "v", Data: []byte("video")},
		models.Track{ID: "a", Data: []byte("audio")},
		out)
	require.NoError(t, err)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, "video", string(tool.calls[0].VideoData))
	assert.Equal(t, "audio", string(tool.calls[0].AudioData))
	assert.Equal(t, out, tool.calls[0].Out)
	assert.FileExists(t, out)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporaries must be removed")
}

func TestMuxTracks_FailureWrapsAndCleansUp(t *testing.T) {
	work := t.TempDir()
	tool := &fakeTool{muxErr: errors.New("boom")}
	o := NewOrchestrator(&mockLogger{}, tool, work, 0)

	err := o.MuxTracks(context.Background(),
		models.Track{ID: "v", Data: []byte("video")},
		models.Track{ID: "a", Data: []byte("audio")},
		filepath.Join(t.TempDir(), "post.mp4"))

	var muxErr *MuxError
	require.True(t, errors.As(err, &muxErr))
	assert.Equal(t, -1, muxErr.ExitCode)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPairPassive_DurationGate(t *testing.T) {
	tests := []struct {
		name      string
		videoDur  float64
		audioDur  float64
		wantPair  bool
		wantCalls int
	}{
		{"close durations are paired", 10.2, 10.6, true, 1},
		{"distant durations are rejected", 10.0, 10.6, false, 0},
		{"identical durations are paired", 30, 30, true, 1},
		{"non-finite duration counts as zero", math.NaN(), 999, false, 0},
		{"infinite durations both count as zero", math.Inf(1), math.Inf(1), true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := []TrackFile{
				writeTrack(t, dir, "small.mp4", 10),
				writeTrack(t, dir, "video.mp4", 300),
				writeTrack(t, dir, "audio.mp4", 100),
			}
			tool := &fakeTool{durations: map[string]float64{
				"video.mp4": tt.videoDur,
				"audio.mp4": tt.audioDur,
				"small.mp4": 1,
			}}
			o := NewOrchestrator(&mockLogger{}, tool, t.TempDir(), DefaultMaxDurationDelta)

			out := filepath.Join(dir, "post.mp4")
			paired, err := o.PairPassive(context.Background(), files, out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPair, paired)
			require.Len(t, tool.calls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, files[1].Path, tool.calls[0].Video, "largest track is the video input")
				assert.Equal(t, files[2].Path, tool.calls[0].Audio)
			}
		})
	}
}

func TestPairPassive_NotEnoughCandidates(t *testing.T) {
	dir := t.TempDir()
	files := []TrackFile{
		writeTrack(t, dir, "only.mp4", 100),
		writeTrack(t, dir, "cover.jpg", 500),
	}
	tool := &fakeTool{}
	o := NewOrchestrator(&mockLogger{}, tool, t.TempDir(), 0)

	paired, err := o.PairPassive(context.Background(), files, filepath.Join(dir, "post.mp4"))
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Empty(t, tool.calls)
}

func TestPairPassive_ProbeFailureCountsAsZero(t *testing.T) {
	dir := t.TempDir()
	files := []TrackFile{
		writeTrack(t, dir, "a.mp4", 200),
		writeTrack(t, dir, "b.mp4", 100),
	}
	tool := &fakeTool{durations: map[string]float64{}}
	o := NewOrchestrator(&mockLogger{}, tool, t.TempDir(), 0)

	paired, err := o.PairPassive(context.Background(), files, filepath.Join(dir, "post.mp4"))
	require.NoError(t, err)
	assert.True(t, paired, "both probes fail so both durations are zero")
}

func TestPairPassive_NeverOverwritesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	files := []TrackFile{
		writeTrack(t, dir, "video.mp4", 300),
		writeTrack(t, dir, "audio.mp4", 100),
	}
	tool := &fakeTool{durations: map[string]float64{"video.mp4": 5, "audio.mp4": 5}}
	o := NewOrchestrator(&mockLogger{}, tool, t.TempDir(), DefaultMaxDurationDelta)

	existing := writeTrack(t, dir, "post.mp4", 7)
	paired, err := o.PairPassive(context.Background(), files, existing.Path)
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Empty(t, tool.calls)
	info, err := os.Stat(existing.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size())

	paired, err = o.PairPassive(context.Background(), files, files[0].Path)
	require.NoError(t, err)
	assert.False(t, paired, "an input track is never the pair output")
	assert.Empty(t, tool.calls)
}

func TestPairPassive_MuxFailure(t *testing.T) {
	dir := t.TempDir()
	files := []TrackFile{
		writeTrack(t, dir, "a.mp4", 200),
		writeTrack(t, dir, "b.mp4", 100),
	}
	tool := &fakeTool{durations: map[string]float64{"a.mp4": 5, "b.mp4": 5}, muxErr: errors.New("exit 1")}
	o := NewOrchestrator(&mockLogger{}, tool, t.TempDir(), 0)

	paired, err := o.PairPassive(context.Background(), files, filepath.Join(dir, "post.mp4"))
	assert.False(t, paired)
	var muxErr *MuxError
	assert.True(t, errors.As(err, &muxErr))
}
