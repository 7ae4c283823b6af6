package session

import (
	"context"
	"path/filepath"

	"mpdgrab/internal/assembler"
	"mpdgrab/internal/config"
	"mpdgrab/internal/item"
	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"
	"mpdgrab/internal/models"
	"mpdgrab/internal/mux"
	"mpdgrab/internal/output"
	"mpdgrab/internal/walker"

	"github.com/dustin/go-humanize"
)

// MediaWalker turns a media tree into files.
type MediaWalker interface {
	Walk(ctx context.Context, it item.MediaItem, dir, name string) walker.Result
}

// PassivePairer muxes the two largest passive tracks when they match.
type PassivePairer interface {
	PairPassive(ctx context.Context, files []mux.TrackFile, outPath string) (bool, error)
}

// Capture is everything one capture session collected.
type Capture struct {
	Posts     []*item.Post
	Fragments map[string][]models.Chunk
	// SourceURL names the output folder when no post does.
	SourceURL string
}

// Report summarises a finished capture.
type Report struct {
	Artifacts     int      `json:"artifacts"`
	PassiveTracks []string `json:"passive_tracks"`
	Paired        bool     `json:"paired"`
}

// Processor runs the reconstruction of a finished capture.
type Processor struct {
	cfg       *config.Config
	walker    MediaWalker
	assembler *assembler.Assembler
	pairer    PassivePairer
	logger    logger.Logger
}

// NewProcessor creates a processor.
func NewProcessor(log logger.Logger, cfg *config.Config, w MediaWalker, asm *assembler.Assembler, pairer PassivePairer) *Processor {
	return &Processor{
		cfg:       cfg,
		walker:    w,
		assembler: asm,
		pairer:    pairer,
		logger:    log,
	}
}

// Run walks every post in document order, then reassembles the passive
// fragments. Passive pairing is attempted only when no manifest video was
// produced.
func (p *Processor) Run(ctx context.Context, c Capture) Report {
	report := Report{PassiveTracks: []string{}}
	videos := 0

	folder := filepath.Join(p.cfg.OutputDir, config.FolderName(c.SourceURL))
	name := filepath.Base(folder)

	for postIdx, post := range c.Posts {
		postFolder := p.folderFor(post)
		if postIdx == 0 {
			folder, name = postFolder, post.Name
		}
		p.savePostDocument(post, postFolder)

		for i, it := range post.Items {
			res := p.walker.Walk(ctx, it, postFolder, post.ItemName(i))
			report.Artifacts += res.Total()
			videos += res.Videos
		}
	}

	if len(c.Fragments) == 0 {
		return report
	}
	if p.cfg.Passive.Disabled || !p.cfg.AllowsPassiveCombine() {
		p.logger.Infof("Passive combine skipped for %d resource(s) (media=%s, disabled=%t)",
			len(c.Fragments), p.cfg.Media, p.cfg.Passive.Disabled)
		return report
	}

	files := p.combinePassive(c.Fragments, folder)
	for _, f := range files {
		report.PassiveTracks = append(report.PassiveTracks, filepath.Base(f.Path))
	}
	report.Artifacts += len(files)

	if videos > 0 {
		p.logger.Debugf("Passive pairing skipped: %d manifest video(s) produced", videos)
		return report
	}
	paired, err := p.pairer.PairPassive(ctx, files, filepath.Join(folder, name+".mp4"))
	if err != nil {
		metrics.ItemFailures.WithLabelValues("mux").Inc()
		p.logger.Errorf("Passive pairing for %q failed: %v", name, err)
	}
	if paired {
		metrics.ArtifactsTotal.WithLabelValues("video").Inc()
		report.Artifacts++
		report.Paired = true
	}
	return report
}

// combinePassive reassembles fragments by offset and writes every track that
// clears the size threshold into folder.
func (p *Processor) combinePassive(fragments map[string][]models.Chunk, folder string) []mux.TrackFile {
	var files []mux.TrackFile
	for _, track := range p.assembler.AssemblePassive(fragments) {
		fileName := filepath.Base(track.ID)
		if filepath.Ext(fileName) == "" {
			fileName += ".mp4"
		}
		if !output.NameFits(fileName) {
			p.logger.Warnf("Passive track skipped: file name is %d bytes, limit is %d", len(fileName), output.MaxNameBytes)
			continue
		}

		outPath := filepath.Join(folder, fileName)
		if err := output.WriteFile(outPath, track.Data); err != nil {
			p.logger.Errorf("Failed to write passive track %s: %v", outPath, err)
			continue
		}
		metrics.ArtifactsTotal.WithLabelValues("track").Inc()
		p.logger.Infof("Combined passive track => %s (%s)", outPath, humanize.Bytes(uint64(track.Size())))
		files = append(files, mux.TrackFile{Path: outPath, Size: track.Size()})
	}
	return files
}

func (p *Processor) folderFor(post *item.Post) string {
	if post.Owner != "" {
		return filepath.Join(p.cfg.OutputDir, config.SanitizeFolder(post.Owner))
	}
	return filepath.Join(p.cfg.OutputDir, config.FolderName(post.SourceURL))
}

// savePostDocument keeps the post document next to its media as name.json.
func (p *Processor) savePostDocument(post *item.Post, folder string) {
	data, err := item.EncodeJSON(post)
	if err != nil {
		p.logger.Warnf("Failed to encode post %q: %v", post.Name, err)
		return
	}
	if err := output.WriteFile(filepath.Join(folder, post.Name+".json"), data); err != nil {
		p.logger.Warnf("Failed to save post %q: %v", post.Name, err)
	}
}
