package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultMinTrackSize is the threshold below which a passively reassembled
// track is treated as noise.
const DefaultMinTrackSize = 10240

// Media filter values accepted by the passive combine step.
const (
	MediaAny        = "any"
	MediaVideo      = "video"
	MediaImage      = "image"
	MediaMP4Combine = "mp4combine"
)

// Config holds the fully processed application configuration.
type Config struct {
	OutputDir        string        `yaml:"output_dir" env:"MPDGRAB_OUTPUT_DIR" env-default:"."`
	TempDir          string        `yaml:"temp_dir" env:"MPDGRAB_TEMP_DIR"`
	UserAgent        string        `yaml:"user_agent" env:"MPDGRAB_USER_AGENT"`
	// RequestTimeout bounds the wait for response headers of a fetch.
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"MPDGRAB_REQUEST_TIMEOUT" env-default:"60s"`
	FetchConcurrency int           `yaml:"fetch_concurrency" env:"MPDGRAB_FETCH_CONCURRENCY" env-default:"4"`
	MinTrackSize     string        `yaml:"min_track_size" env:"MPDGRAB_MIN_TRACK_SIZE" env-default:"10k"`
	Media            string        `yaml:"media" env:"MPDGRAB_MEDIA" env-default:"any"`
	Passive          PassiveConfig `yaml:"passive"`
	FfmpegBin        string        `yaml:"ffmpeg_bin" env:"MPDGRAB_FFMPEG_BIN" env-default:"ffmpeg"`
	FfprobeBin       string        `yaml:"ffprobe_bin" env:"MPDGRAB_FFPROBE_BIN"`
	ListenAddr       string        `yaml:"listen_addr" env:"MPDGRAB_LISTEN_ADDR" env-default:":8080"`
	SessionTTL       time.Duration `yaml:"session_ttl" env:"MPDGRAB_SESSION_TTL" env-default:"15m"`
	LogLevel         string        `yaml:"log_level" env:"MPDGRAB_LOG_LEVEL" env-default:"info"`
}

// PassiveConfig controls the manifest-less fallback path.
type PassiveConfig struct {
	Disabled         bool    `yaml:"disabled" env:"MPDGRAB_PASSIVE_DISABLED"`
	MaxDurationDelta float64 `yaml:"max_duration_delta" env:"MPDGRAB_PASSIVE_MAX_DURATION_DELTA" env-default:"0.5"`
}

// LoadConfig reads the configuration file at path (when non-empty) and applies
// environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file at %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Media {
	case MediaAny, MediaVideo, MediaImage, MediaMP4Combine:
	default:
		return fmt.Errorf("invalid media filter %q: expected one of any, video, image, mp4combine", c.Media)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be at least 1, got %d", c.FetchConcurrency)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %v", c.SessionTTL)
	}
	if c.Passive.MaxDurationDelta <= 0 {
		return fmt.Errorf("passive.max_duration_delta must be positive, got %v", c.Passive.MaxDurationDelta)
	}
	return nil
}

// Threshold returns the parsed minimum passive track size in bytes.
func (c *Config) Threshold() int64 {
	return ParseThreshold(c.MinTrackSize)
}

// AllowsPassiveCombine reports whether the media filter admits combining
// passively captured mp4 fragments.
func (c *Config) AllowsPassiveCombine() bool {
	switch c.Media {
	case MediaVideo, MediaAny, MediaMP4Combine:
		return true
	}
	return false
}

// WorkDir returns the directory used for mux temporaries.
func (c *Config) WorkDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// ProbeBin returns the ffprobe binary to invoke.
func (c *Config) ProbeBin() string {
	if bin := ResolveFFprobeBin(c.FfprobeBin, c.FfmpegBin); bin != "" {
		return bin
	}
	return "ffprobe"
}

var thresholdPattern = regexp.MustCompile(`(?i)^(\d+)(k?)$`)

// ParseThreshold parses a size threshold: "N" is N bytes and "Nk" is N*1024.
// Empty or malformed input yields DefaultMinTrackSize.
func ParseThreshold(s string) int64 {
	m := thresholdPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return DefaultMinTrackSize
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return DefaultMinTrackSize
	}
	if m[2] != "" {
		if n > math.MaxInt64/1024 {
			return DefaultMinTrackSize
		}
		return n * 1024
	}
	return n
}

// ResolveFFprobeBin returns an effective ffprobe binary path.
//
// Resolution order:
// 1) Explicit ffprobeBin
// 2) Derive from ffmpegBin (.../ffmpeg -> .../ffprobe) if the derived binary exists
// 3) Empty string (caller falls back to PATH resolution)
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin != "" {
		return ffprobeBin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if ffmpegBin == "" || !strings.ContainsRune(ffmpegBin, '/') {
		return ""
	}
	if filepath.Base(ffmpegBin) != "ffmpeg" {
		return ""
	}

	candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return ""
}

var folderSanitizer = regexp.MustCompile(`[^\w-]`)

// FolderName derives an output folder from the last path segment of a source
// URL, keeping only word characters and dashes. It returns "output" when
// nothing usable remains.
func FolderName(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || sourceURL == "" {
		return "output"
	}
	p := strings.TrimRight(u.Path, "/")
	seg := p[strings.LastIndex(p, "/")+1:]
	if seg == "" {
		return "output"
	}
	return SanitizeFolder(seg)
}

// SanitizeFolder strips everything but word characters and dashes from name,
// returning "output" when nothing usable remains.
func SanitizeFolder(name string) string {
	if clean := folderSanitizer.ReplaceAllString(name, ""); clean != "" {
		return clean
	}
	return "output"
}
