package main

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  slog.Level
		valid bool
	}{
		{"", slog.LevelInfo, true},
		{"debug", slog.LevelDebug, true},
		{"WARN", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if got != tt.want || ok != tt.valid {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.valid)
		}
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv(envPrefix+"MAX_PAIRS", "-3")
	t.Setenv(envPrefix+"DEBRIS_RADIUS", "NaN")
	t.Setenv(envPrefix+"REFRESH_INTERVAL", "soon")

	est := loadEstimatorConfig(testLogger)
	if est.MaxPairs != 15 {
		t.Errorf("MaxPairs = %d, want default 15", est.MaxPairs)
	}
	if est.Radii.Debris != 0.04 {
		t.Errorf("Debris radius = %v, want default 0.04", est.Radii.Debris)
	}
	if est.VelocitySeed != nil {
		t.Error("VelocitySeed set without env")
	}

	mon := loadMonitorConfig(testLogger)
	if mon.Interval != 10*time.Second {
		t.Errorf("Interval = %v, want 10s", mon.Interval)
	}
}

func TestLoadEstimatorConfig(t *testing.T) {
	t.Setenv(envPrefix+"SATELLITE_RADIUS", "0.2")
	t.Setenv(envPrefix+"MAX_PAIRS", "30")
	t.Setenv(envPrefix+"VELOCITY_SEED", "99")

	cfg := loadEstimatorConfig(testLogger)
	if cfg.Radii.Satellite != 0.2 || cfg.MaxPairs != 30 {
		t.Errorf("cfg = %+v", cfg.Config)
	}
	if cfg.VelocitySeed == nil || *cfg.VelocitySeed != 99 {
		t.Errorf("VelocitySeed = %v, want 99", cfg.VelocitySeed)
	}
}

func TestLoadCatalogConfig(t *testing.T) {
	t.Run("defaults to mock without refresh", func(t *testing.T) {
		cfg, err := loadCatalogConfig(testLogger)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Source != "mock" || cfg.Refresh != 0 {
			t.Errorf("source = %q, refresh = %v", cfg.Source, cfg.Refresh)
		}
	})

	t.Run("tle refreshes by default", func(t *testing.T) {
		t.Setenv(envPrefix+"CATALOG_SOURCE", "TLE")
		t.Setenv(envPrefix+"TLE_EXTRA_URLS", " https://a.example/x , ,https://b.example/y")
		cfg, err := loadCatalogConfig(testLogger)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Refresh != 6*time.Hour {
			t.Errorf("refresh = %v, want 6h", cfg.Refresh)
		}
		if len(cfg.ExtraURLs) != 2 || cfg.ExtraURLs[1] != "https://b.example/y" {
			t.Errorf("extra urls = %q", cfg.ExtraURLs)
		}
	})

	t.Run("file requires a path", func(t *testing.T) {
		t.Setenv(envPrefix+"CATALOG_SOURCE", "file")
		if _, err := loadCatalogConfig(testLogger); err == nil {
			t.Error("file source without path accepted")
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		t.Setenv(envPrefix+"CATALOG_SOURCE", "carrier-pigeon")
		if _, err := loadCatalogConfig(testLogger); err == nil {
			t.Error("unknown source accepted")
		}
	})
}

func TestLoadAuthConfig(t *testing.T) {
	t.Setenv(envPrefix+"AUTH_ENABLED", "true")
	if _, err := loadAuthConfig(testLogger); err == nil {
		t.Error("auth enabled without token accepted")
	}
	t.Setenv(envPrefix+"AUTH_TOKEN", "tok")
	cfg, err := loadAuthConfig(testLogger)
	if err != nil || !cfg.Enabled || cfg.Token != "tok" {
		t.Errorf("cfg = %+v, err = %v", cfg, err)
	}
	t.Setenv(envPrefix+"AUTH_ENABLED", "maybe")
	if _, err := loadAuthConfig(testLogger); err == nil {
		t.Error("non-boolean AUTH_ENABLED accepted")
	}
}
