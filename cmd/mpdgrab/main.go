package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpdgrab/internal/api"
	"mpdgrab/internal/assembler"
	"mpdgrab/internal/config"
	"mpdgrab/internal/dash"
	"mpdgrab/internal/item"
	"mpdgrab/internal/logger"
	"mpdgrab/internal/mux"
	"mpdgrab/internal/session"
	"mpdgrab/internal/walker"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse command-line arguments
	configFile := flag.String("c", "", "Path to the YAML config file (optional)")
	logLevel := flag.String("L", "", "Log level (error, warn, info, debug)")
	listenAddr := flag.String("l", "", "HTTP listen address for the capture API")
	outputDir := flag.String("o", "", "Output directory")
	itemsFile := flag.String("items", "", "Process a JSON/YAML post file and exit instead of serving")
	sourceURL := flag.String("source", "", "Source page URL, used to name the output folder")
	size := flag.String("size", "", `Minimum passive track size, e.g. "10240" or "10k"`)
	media := flag.String("media", "", "Media filter (any, video, image, mp4combine)")
	flag.Parse()

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.NewLogger("info").Errorf("Failed to load configuration: %v", err)
		return 1
	}
	overrides := map[string]func(){
		"L":     func() { cfg.LogLevel = *logLevel },
		"l":     func() { cfg.ListenAddr = *listenAddr },
		"o":     func() { cfg.OutputDir = *outputDir },
		"size":  func() { cfg.MinTrackSize = *size },
		"media": func() { cfg.Media = *media },
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	// 3. Initialize logger
	log := logger.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return 1
	}
	log.Infof("Starting mpdgrab (output %s, media %s, min track size %d bytes)", cfg.OutputDir, cfg.Media, cfg.Threshold())

	// 4. Initialize the reconstruction pipeline
	processor := newProcessor(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *itemsFile != "" {
		return runOnce(ctx, log, processor, *itemsFile, *sourceURL)
	}
	return serve(ctx, log, cfg, processor)
}

func newProcessor(cfg *config.Config, log *logger.ZerologLogger) *session.Processor {
	dashClient := dash.NewClient(log.With("dash"), cfg.UserAgent, cfg.RequestTimeout)
	downloader := dash.NewSegmentDownloader(dashClient, log.With("dash"), cfg.FetchConcurrency)
	tool := mux.NewFFmpeg(log.With("ffmpeg"), cfg.FfmpegBin, cfg.ProbeBin())
	orchestrator := mux.NewOrchestrator(log.With("mux"), tool, cfg.WorkDir(), cfg.Passive.MaxDurationDelta)
	w := walker.New(log.With("walker"), dashClient, downloader, orchestrator)
	asm := assembler.New(log.With("assembler"), cfg.Threshold())
	return session.NewProcessor(log.With("session"), cfg, w, asm, orchestrator)
}

// runOnce reconstructs the posts stored in itemsFile.
func runOnce(ctx context.Context, log logger.Logger, processor *session.Processor, itemsFile, sourceURL string) int {
	posts, err := item.LoadPosts(itemsFile)
	if err != nil {
		log.Errorf("Failed to load items: %v", err)
		return 1
	}
	for _, p := range posts {
		if p.SourceURL == "" {
			p.SourceURL = sourceURL
		}
	}

	report := processor.Run(ctx, session.Capture{Posts: posts, SourceURL: sourceURL})
	log.Infof("Done: %d artifact(s) from %d post(s)", report.Artifacts, len(posts))
	return 0
}

func serve(ctx context.Context, log *logger.ZerologLogger, cfg *config.Config, processor *session.Processor) int {
	sessionMgr := session.NewManager(log.With("session"), processor, cfg.SessionTTL)
	sessionMgr.Start()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(log.With("api"), sessionMgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Capture API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	exitCode := 0
	select {
	case err := <-errCh:
		log.Errorf("Could not listen on %s: %v", cfg.ListenAddr, err)
		exitCode = 1
	case <-ctx.Done():
		log.Infof("Server is shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		exitCode = 1
	}
	sessionMgr.Stop()

	if exitCode == 0 {
		log.Infof("Server exited gracefully")
	}
	return exitCode
}
