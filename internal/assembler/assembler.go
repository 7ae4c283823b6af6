package assembler

import (
	"bytes"
	"slices"
	"sort"

	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"
	"mpdgrab/internal/models"

	"github.com/dustin/go-humanize"
)

// Concat joins manifest-path chunks in the order given. The fetcher already
// returns them in plan order, so no sorting happens here.
func Concat(chunks []models.Chunk) []byte {
	var size int
	for _, c := range chunks {
		size += len(c.Data)
	}
	var buf bytes.Buffer
	buf.Grow(size)
	for _, c := range chunks {
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

// Reassemble joins passively captured chunks in ascending Start order. Capture
// order is network order, not byte order. A range captured more than once is
// kept only as its first capture. The input slice is not modified.
func Reassemble(chunks []models.Chunk) []byte {
	sorted := slices.Clone(chunks)
	slices.SortStableFunc(sorted, func(a, b models.Chunk) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return Concat(dedupe(sorted))
}

// dedupe drops chunks whose [Start,End] was already seen. Stable sorting keeps
// the first capture of a range ahead of its repeats.
func dedupe(sorted []models.Chunk) []models.Chunk {
	type span struct{ start, end int64 }
	seen := make(map[span]struct{}, len(sorted))
	kept := sorted[:0]
	for _, c := range sorted {
		key := span{c.Start, c.End}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, c)
	}
	return kept
}

// Assembler turns keyed passive fragments into tracks, discarding tracks
// smaller than MinSize as noise.
type Assembler struct {
	MinSize int64
	logger  logger.Logger
}

// New creates an assembler with the given minimum track size in bytes.
func New(log logger.Logger, minSize int64) *Assembler {
	return &Assembler{MinSize: minSize, logger: log}
}

// AssemblePassive reassembles every key of fragments. The result is ordered by
// key so output is deterministic; keys whose track is below MinSize are dropped.
func (a *Assembler) AssemblePassive(fragments map[string][]models.Chunk) []models.Track {
	keys := make([]string, 0, len(fragments))
	for k := range fragments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tracks := make([]models.Track, 0, len(keys))
	for _, key := range keys {
		data := Reassemble(fragments[key])
		if int64(len(data)) < a.MinSize {
			metrics.TracksDiscarded.Inc()
			a.logger.Debugf("Discarding %s: %s below threshold %s", key, humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(a.MinSize)))
			continue
		}
		a.logger.Infof("Reassembled %s from %d fragment(s): %s", key, len(fragments[key]), humanize.Bytes(uint64(len(data))))
		tracks = append(tracks, models.Track{ID: key, Data: data})
	}
	return tracks
}
