package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/saviobatista/vatsim-replay/internal/cache"
	"github.com/saviobatista/vatsim-replay/internal/filter"
	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/parser"
	"github.com/saviobatista/vatsim-replay/internal/playback"
	"github.com/saviobatista/vatsim-replay/internal/tracing"
)

const (
	DefaultFPS         = 60
	DefaultConcurrency = 4
)

// Config holds the application configuration
type Config struct {
	ReplayFiles []string
	Concurrency int
	Resolver    string

	Speed float64
	FPS   int

	AirportFilter string
	FilterMode    filter.Mode
	MinAltitude   int
	MaxAltitude   int

	ShowTracks       bool
	TracksByAltitude bool
	ShowTrails       bool

	Log     logging.Config
	Tracing tracing.Config

	CacheDir  string
	CacheSize int

	RedisAddr   string
	DBConnStr   string
	NATSURL     string
	MetricsFile string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	files := splitList(os.Getenv("REPLAY_FILES"))
	if len(files) == 0 {
		return nil, fmt.Errorf("REPLAY_FILES environment variable is required")
	}

	cfg := &Config{
		ReplayFiles:   files,
		Resolver:      strings.TrimSpace(os.Getenv("TIMESTAMP_RESOLVER")),
		AirportFilter: os.Getenv("AIRPORT_FILTER"),
		Log:           logging.ConfigFromEnv(),
		Tracing:       tracing.ConfigFromEnv(),
		CacheDir:      os.Getenv("CACHE_DIR"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		DBConnStr:     os.Getenv("DB_CONN_STR"),
		NATSURL:       os.Getenv("NATS_URL"),
		MetricsFile:   os.Getenv("METRICS_FILE"),
	}

	var err error
	if cfg.Speed, err = floatEnv("SPEED", 1); err != nil {
		return nil, err
	}
	if cfg.Speed <= 0 {
		return nil, fmt.Errorf("invalid SPEED: must be positive, got %v", cfg.Speed)
	}
	if cfg.FPS, err = intEnv("FPS", DefaultFPS); err != nil {
		return nil, err
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid FPS: must be positive, got %d", cfg.FPS)
	}
	if cfg.Concurrency, err = intEnv("LOAD_CONCURRENCY", DefaultConcurrency); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = intEnv("CACHE_SIZE", cache.DefaultSize); err != nil {
		return nil, err
	}
	if cfg.MinAltitude, err = intEnv("MIN_ALTITUDE", playback.DefaultMinAltitude); err != nil {
		return nil, err
	}
	if cfg.MaxAltitude, err = intEnv("MAX_ALTITUDE", playback.DefaultMaxAltitude); err != nil {
		return nil, err
	}
	if cfg.MinAltitude > cfg.MaxAltitude {
		return nil, fmt.Errorf("invalid altitude range: MIN_ALTITUDE %d > MAX_ALTITUDE %d", cfg.MinAltitude, cfg.MaxAltitude)
	}
	if _, err = parser.ResolverByName(cfg.Resolver); err != nil {
		return nil, fmt.Errorf("invalid TIMESTAMP_RESOLVER: %w", err)
	}
	if cfg.FilterMode, err = filter.ParseMode(os.Getenv("FILTER_MODE")); err != nil {
		return nil, fmt.Errorf("invalid FILTER_MODE: %w", err)
	}
	if cfg.ShowTracks, err = boolEnv("SHOW_TRACKS"); err != nil {
		return nil, err
	}
	if cfg.TracksByAltitude, err = boolEnv("TRACKS_BY_ALTITUDE"); err != nil {
		return nil, err
	}
	if cfg.ShowTrails, err = boolEnv("SHOW_TRAILS"); err != nil {
		return nil, err
	}

	if cfg.CacheDir == "" {
		// no per-user cache directory just means no disk tier
		cfg.CacheDir, _ = cache.DefaultDir()
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
