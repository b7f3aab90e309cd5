package main

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/debriswatch/internal/auth"
	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/monitor"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/stream"
	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/tracing"
)

const envPrefix = "DEBRISWATCH_"

func getenv(name string) string {
	return os.Getenv(envPrefix + name)
}

// envInt reads a positive integer, warning and keeping def when the value is invalid.
func envInt(logger *slog.Logger, name string, def int) int {
	v := getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+envPrefix+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envFloat reads a positive float, warning and keeping def when the value is invalid.
func envFloat(logger *slog.Logger, name string, def float64) float64 {
	v := getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f > 0) {
		logger.Warn("invalid "+envPrefix+name+" value, using default", "value", v, "default", def)
		return def
	}
	return f
}

// envSeconds reads a whole number of seconds. Zero is accepted and disables the
// feature the value controls.
func envSeconds(logger *slog.Logger, name string, def time.Duration) time.Duration {
	v := getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logger.Warn("invalid "+envPrefix+name+" value, using default", "value", v, "default", def.Seconds())
		return def
	}
	return time.Duration(n) * time.Second
}

func envBool(logger *slog.Logger, name string, def bool) bool {
	v := getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+envPrefix+name+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func envList(name string) []string {
	var out []string
	for _, s := range strings.Split(getenv(name), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseLevel maps DEBRISWATCH_LOG_LEVEL to a slog level; unknown values mean info.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

type httpConfig struct {
	Addr        string
	TrustProxy  bool
	RateLimit   float64 // requests per second per IP; 0 disables
	RateBurst   int
	TLSDomains  []string
	TLSCacheDir string
}

func loadHTTPConfig(logger *slog.Logger) httpConfig {
	cfg := httpConfig{
		Addr:        ":8080",
		RateBurst:   20,
		TLSCacheDir: "/var/cache/debriswatch/certs",
	}
	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.TrustProxy = envBool(logger, "TRUST_PROXY", false)

	if v := getenv("RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			logger.Warn("invalid "+envPrefix+"RATE_LIMIT value, rate limiting disabled", "value", v)
		} else {
			cfg.RateLimit = f
		}
	}
	cfg.RateBurst = envInt(logger, "RATE_BURST", cfg.RateBurst)

	cfg.TLSDomains = envList("TLS_DOMAIN")
	if v := getenv("TLS_CACHE_DIR"); v != "" {
		cfg.TLSCacheDir = v
	}

	logger.Info("http config",
		"addr", cfg.Addr,
		"trust_proxy", cfg.TrustProxy,
		"rate_limit", cfg.RateLimit,
		"rate_burst", cfg.RateBurst,
		"tls_domains", cfg.TLSDomains,
	)
	return cfg
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := getenv("AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New(envPrefix + "AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = getenv("AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New(envPrefix + "AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}
	return cfg, nil
}

type catalogConfig struct {
	Source     string // mock | tle | file
	File       string
	MockCount  int
	MockSeed   uint64
	SourceURL  string
	ExtraURLs  []string
	CacheDir   string
	MaxFiles   int
	MaxObjects int
	Refresh    time.Duration // 0 disables periodic reloads
}

func loadCatalogConfig(logger *slog.Logger) (catalogConfig, error) {
	cfg := catalogConfig{
		Source:     "mock",
		MockCount:  40,
		MockSeed:   1,
		SourceURL:  tle.DefaultSourceURL,
		CacheDir:   "/tmp/debriswatch/tle",
		MaxFiles:   5,
		MaxObjects: 500,
	}

	if v := getenv("CATALOG_SOURCE"); v != "" {
		cfg.Source = strings.ToLower(v)
	}
	switch cfg.Source {
	case "mock", "tle", "file":
	default:
		return cfg, errors.New(envPrefix + "CATALOG_SOURCE must be one of mock, tle, file")
	}

	cfg.File = getenv("CATALOG_FILE")
	if cfg.Source == "file" && cfg.File == "" {
		return cfg, errors.New(envPrefix + "CATALOG_FILE is required when the catalog source is file")
	}

	cfg.MockCount = envInt(logger, "MOCK_COUNT", cfg.MockCount)
	if v := getenv("MOCK_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			logger.Warn("invalid "+envPrefix+"MOCK_SEED value, using default", "value", v, "default", cfg.MockSeed)
		} else {
			cfg.MockSeed = seed
		}
	}

	if v := getenv("TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	cfg.ExtraURLs = envList("TLE_EXTRA_URLS")
	if v := getenv("TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	cfg.MaxFiles = envInt(logger, "TLE_MAX_FILES", cfg.MaxFiles)
	cfg.MaxObjects = envInt(logger, "TLE_MAX_OBJECTS", cfg.MaxObjects)

	defRefresh := time.Duration(0)
	if cfg.Source == "tle" {
		defRefresh = 6 * time.Hour
	}
	cfg.Refresh = envSeconds(logger, "TLE_REFRESH", defRefresh)

	logger.Info("catalog config",
		"source", cfg.Source,
		"file", cfg.File,
		"mock_count", cfg.MockCount,
		"tle_source_url", cfg.SourceURL,
		"tle_extra_urls", cfg.ExtraURLs,
		"tle_cache_dir", cfg.CacheDir,
		"tle_max_objects", cfg.MaxObjects,
		"refresh_seconds", cfg.Refresh.Seconds(),
	)
	return cfg, nil
}

type estimatorConfig struct {
	conjunction.Config
	MaxVelocity  float64
	VelocitySeed *uint64 // nil seeds from entropy
}

func loadEstimatorConfig(logger *slog.Logger) estimatorConfig {
	def := conjunction.DefaultConfig()
	cfg := estimatorConfig{
		Config: conjunction.Config{
			ReferenceRadius: envFloat(logger, "REFERENCE_RADIUS", def.ReferenceRadius),
			Radii: conjunction.Radii{
				Satellite: envFloat(logger, "SATELLITE_RADIUS", def.Radii.Satellite),
				Debris:    envFloat(logger, "DEBRIS_RADIUS", def.Radii.Debris),
			},
			MaxPairs: envInt(logger, "MAX_PAIRS", def.MaxPairs),
		},
		MaxVelocity: envFloat(logger, "MAX_VELOCITY", 0.05),
	}

	if v := getenv("VELOCITY_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			logger.Warn("invalid "+envPrefix+"VELOCITY_SEED value, seeding from entropy", "value", v)
		} else {
			cfg.VelocitySeed = &seed
		}
	}

	logger.Info("estimator config",
		"reference_radius", cfg.ReferenceRadius,
		"satellite_radius", cfg.Radii.Satellite,
		"debris_radius", cfg.Radii.Debris,
		"max_pairs", cfg.MaxPairs,
		"max_velocity", cfg.MaxVelocity,
		"seeded", cfg.VelocitySeed != nil,
	)
	return cfg
}

func loadMonitorConfig(logger *slog.Logger) monitor.Config {
	cfg := monitor.Config{
		Interval:    envSeconds(logger, "REFRESH_INTERVAL", 10*time.Second),
		HistorySize: envInt(logger, "HISTORY_SIZE", 20),
	}
	if cfg.Interval <= 0 {
		logger.Warn(envPrefix+"REFRESH_INTERVAL must be positive, using default", "default", 10)
		cfg.Interval = 10 * time.Second
	}

	logger.Info("monitor config",
		"interval_seconds", cfg.Interval.Seconds(),
		"history_size", cfg.HistorySize,
	)
	return cfg
}

func loadPropConfig(logger *slog.Logger) propagation.Config {
	cfg := propagation.Config{
		Workers: envInt(logger, "PROP_WORKERS", runtime.NumCPU()),
	}
	logger.Info("propagation config", "workers", cfg.Workers)
	return cfg
}

func loadStreamConfig(logger *slog.Logger, trustProxy bool) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envInt(logger, "STREAM_MAX_CONCURRENT", 10),
		KeepaliveInterval:  envSeconds(logger, "STREAM_KEEPALIVE_INTERVAL", 30*time.Second),
		TrustProxy:         trustProxy,
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)
	return cfg
}

func loadTracingConfig(logger *slog.Logger) tracing.Config {
	cfg := tracing.Config{
		Enabled:     envBool(logger, "TRACING_ENABLED", false),
		ServiceName: "debriswatch",
		Exporter:    "stdout",
		Endpoint:    "localhost:4317",
		SampleRatio: 1.0,
	}
	if v := getenv("TRACING_EXPORTER"); v != "" {
		switch v {
		case "stdout", "otlp":
			cfg.Exporter = v
		default:
			logger.Warn("invalid "+envPrefix+"TRACING_EXPORTER value, using default", "value", v, "default", cfg.Exporter)
		}
	}
	if v := getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := getenv("TRACING_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			logger.Warn("invalid "+envPrefix+"TRACING_SAMPLE_RATIO value, using default", "value", v, "default", cfg.SampleRatio)
		} else {
			cfg.SampleRatio = f
		}
	}

	logger.Info("tracing config",
		"enabled", cfg.Enabled,
		"exporter", cfg.Exporter,
		"endpoint", cfg.Endpoint,
		"sample_ratio", cfg.SampleRatio,
	)
	return cfg
}
