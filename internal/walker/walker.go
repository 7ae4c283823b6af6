// Package walker turns a media tree into files on disk.
package walker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"mpdgrab/internal/assembler"
	"mpdgrab/internal/dash"
	"mpdgrab/internal/item"
	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"
	"mpdgrab/internal/models"
	"mpdgrab/internal/mux"
	"mpdgrab/internal/output"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads a whole resource.
type Fetcher interface {
	FetchFull(ctx context.Context, rawURL string) ([]byte, error)
}

// RepresentationDownloader fetches every byte range of a representation.
type RepresentationDownloader interface {
	DownloadRepresentation(ctx context.Context, resourceURL string, rep *dash.Representation) ([]models.Chunk, error)
}

// TrackMuxer muxes a known video/audio pair into one file.
type TrackMuxer interface {
	MuxTracks(ctx context.Context, video, audio models.Track, outPath string) error
}

// Result counts the artifacts written by a walk.
type Result struct {
	Videos int
	Images int
}

// Total returns the number of artifacts written.
func (r Result) Total() int {
	return r.Videos + r.Images
}

func (r *Result) add(o Result) {
	r.Videos += o.Videos
	r.Images += o.Images
}

// Walker reconstructs the media of every leaf in a tree.
type Walker struct {
	fetcher    Fetcher
	downloader RepresentationDownloader
	muxer      TrackMuxer
	logger     logger.Logger
}

// New creates a walker.
func New(log logger.Logger, fetcher Fetcher, downloader RepresentationDownloader, muxer TrackMuxer) *Walker {
	return &Walker{
		fetcher:    fetcher,
		downloader: downloader,
		muxer:      muxer,
		logger:     log,
	}
}

// Walk processes it and its descendants in document order, writing artifacts
// under dir. A container's children are named name_1..name_n. A leaf produces
// name.mp4 from its manifest and name.jpg from its widest image. Failures are
// logged and contained to the leaf they occur in.
func (w *Walker) Walk(ctx context.Context, it item.MediaItem, dir, name string) Result {
	var res Result
	switch node := it.(type) {
	case *item.Container:
		for i, child := range node.Children {
			if ctx.Err() != nil {
				w.logger.Warnf("Walk of %q interrupted: %v", name, ctx.Err())
				break
			}
			res.add(w.Walk(ctx, child, dir, item.ChildName(name, i)))
		}
	case *item.Leaf:
		res = w.walkLeaf(ctx, node, dir, name)
	default:
		w.logger.Warnf("Item %q has unsupported type %T", name, it)
	}
	return res
}

func (w *Walker) walkLeaf(ctx context.Context, leaf *item.Leaf, dir, name string) Result {
	var res Result

	if leaf.IsVideo {
		if !leaf.HasManifest() {
			w.logger.Infof("Item %q is a video without a manifest; skipping reconstruction", name)
		} else {
			outPath := filepath.Join(dir, name+".mp4")
			if err := w.reconstruct(ctx, leaf.Manifest, name, outPath); err != nil {
				metrics.ItemFailures.WithLabelValues(failureReason(err)).Inc()
				w.logger.Errorf("Item %q: video reconstruction failed: %v", name, err)
			} else {
				metrics.ArtifactsTotal.WithLabelValues("video").Inc()
				res.Videos++
			}
		}
	}

	if best, ok := item.BestImage(leaf.Images); ok {
		outPath := filepath.Join(dir, name+".jpg")
		if err := w.saveImage(ctx, best, outPath); err != nil {
			metrics.ItemFailures.WithLabelValues(failureReason(err)).Inc()
			w.logger.Errorf("Item %q: image download failed: %v", name, err)
		} else {
			metrics.ArtifactsTotal.WithLabelValues("image").Inc()
			res.Images++
		}
	}

	return res
}

// reconstruct runs the manifest path for one leaf: parse, select, fetch both
// representations, concatenate and mux.
func (w *Walker) reconstruct(ctx context.Context, manifest, name, outPath string) error {
	mpd, err := dash.ParseMPD(manifest)
	if err != nil {
		return err
	}
	sel, err := dash.Select(mpd.AdaptationSets())
	if err != nil {
		return err
	}

	period := &mpd.Periods[0]
	videoURL, err := dash.ResolveRepresentationURL(mpd, period, sel.Video)
	if err != nil {
		return err
	}
	audioURL, err := dash.ResolveRepresentationURL(mpd, period, sel.Audio)
	if err != nil {
		return err
	}

	duration, err := mpd.GetPresentationDuration()
	if err != nil {
		w.logger.Debugf("Item %q: unreadable mediaPresentationDuration %q: %v", name, mpd.MediaPresentationDuration, err)
	}
	w.logger.Infof("Item %q: chosen video %q (%s bps), audio %q (%s bps), duration %s",
		name, sel.Video.ID, sel.Video.Bandwidth, sel.Audio.ID, sel.Audio.Bandwidth, duration)

	var videoChunks, audioChunks []models.Chunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		videoChunks, err = w.downloader.DownloadRepresentation(gctx, videoURL, sel.Video)
		return err
	})
	g.Go(func() error {
		var err error
		audioChunks, err = w.downloader.DownloadRepresentation(gctx, audioURL, sel.Audio)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	video := models.Track{ID: sel.Video.ID, Data: assembler.Concat(videoChunks)}
	audio := models.Track{ID: sel.Audio.ID, Data: assembler.Concat(audioChunks)}
	return w.muxer.MuxTracks(ctx, video, audio, outPath)
}

func (w *Walker) saveImage(ctx context.Context, img item.ImageCandidate, outPath string) error {
	w.logger.Debugf("Fetching image %s (width %d)", img.URL, img.Width)
	data, err := w.fetcher.FetchFull(ctx, img.URL)
	if err != nil {
		return err
	}
	if err := output.WriteFile(outPath, data); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	w.logger.Infof("Saved image %s (%s)", outPath, humanize.Bytes(uint64(len(data))))
	return nil
}

// failureReason maps an item failure to a metrics label.
func failureReason(err error) string {
	var (
		parseErr  *dash.ManifestParseError
		fetchErr  *dash.RangeFetchError
		lengthErr *dash.ChunkLengthError
		muxErr    *mux.MuxError
	)
	switch {
	case errors.As(err, &parseErr):
		return "manifest"
	case errors.Is(err, dash.ErrNoVideoCandidate), errors.Is(err, dash.ErrNoAudioCandidate):
		return "no_candidate"
	case errors.As(err, &fetchErr):
		return "fetch_status"
	case errors.As(err, &lengthErr):
		return "chunk_length"
	case errors.As(err, &muxErr):
		return "mux"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
