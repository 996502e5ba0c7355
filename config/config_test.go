package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.IsProd {
		t.Error("expected IsProd to default to false")
	}
	if cfg.Engine.WindowDuration != 24*time.Hour {
		t.Errorf("expected 24h window, got %v", cfg.Engine.WindowDuration)
	}
	if cfg.Engine.RefreshInterval != 15*time.Minute {
		t.Errorf("expected 15m refresh, got %v", cfg.Engine.RefreshInterval)
	}
	if cfg.Engine.CopyFactor != 0.25 {
		t.Errorf("expected copy factor 0.25, got %f", cfg.Engine.CopyFactor)
	}
	if cfg.Tiers.WhaleMinVolume != 50000 || cfg.Tiers.WhaleMinTrades != 20 || cfg.Tiers.WhaleMinMarkets != 3 {
		t.Errorf("unexpected whale thresholds: %+v", cfg.Tiers)
	}
	if cfg.Tiers.QualifiedMinVolume != 1000 || cfg.Tiers.QualifiedMinTrades != 5 || cfg.Tiers.QualifiedMinMarkets != 2 {
		t.Errorf("unexpected qualified thresholds: %+v", cfg.Tiers)
	}
	if len(cfg.Tiers.Categories) != 5 {
		t.Errorf("expected 5 allow-listed categories, got %d", len(cfg.Tiers.Categories))
	}
	if cfg.Polymarket.DataAPIURL != "https://data-api.polymarket.com" {
		t.Errorf("unexpected data API URL: %s", cfg.Polymarket.DataAPIURL)
	}
	if cfg.NATS.Subject != "polyleader.candidates" {
		t.Errorf("unexpected NATS subject: %s", cfg.NATS.Subject)
	}
	if cfg.NATS.URL != "" {
		t.Error("expected NATS publishing disabled by default")
	}
	if !cfg.HealthServer.Enabled || cfg.HealthServer.Port != 8080 {
		t.Errorf("unexpected health server defaults: %+v", cfg.HealthServer)
	}

	if err := cfg.Validate().Err(); err != nil {
		t.Errorf("expected defaults to validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("STAGE", "PROD")
	os.Setenv("WINDOW_DURATION", "12h")
	os.Setenv("WHALE_MIN_VOLUME", "75000.5")
	os.Setenv("WHALE_MIN_TRADES", "30")
	os.Setenv("CATEGORY_ALLOWLIST", "Politics, Crypto")
	os.Setenv("DEDUP_CAPACITY", "100000")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	os.Setenv("USE_WEBSOCKET", "false")
	defer func() {
		for _, k := range []string{
			"STAGE", "WINDOW_DURATION", "WHALE_MIN_VOLUME", "WHALE_MIN_TRADES",
			"CATEGORY_ALLOWLIST", "DEDUP_CAPACITY", "NATS_URL", "USE_WEBSOCKET",
		} {
			os.Unsetenv(k)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.IsProd {
		t.Error("expected STAGE=PROD to set IsProd")
	}
	if cfg.Engine.WindowDuration != 12*time.Hour {
		t.Errorf("expected 12h window, got %v", cfg.Engine.WindowDuration)
	}
	if cfg.Tiers.WhaleMinVolume != 75000.5 {
		t.Errorf("expected overridden whale volume, got %f", cfg.Tiers.WhaleMinVolume)
	}
	if cfg.Tiers.WhaleMinTrades != 30 {
		t.Errorf("expected overridden whale trades, got %d", cfg.Tiers.WhaleMinTrades)
	}
	want := []string{"Politics", "Crypto"}
	if len(cfg.Tiers.Categories) != len(want) || cfg.Tiers.Categories[0] != want[0] || cfg.Tiers.Categories[1] != want[1] {
		t.Errorf("expected trimmed category list %v, got %v", want, cfg.Tiers.Categories)
	}
	if cfg.Dedup.Capacity != 100000 {
		t.Errorf("expected overridden dedup capacity, got %d", cfg.Dedup.Capacity)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected NATS URL set, got %q", cfg.NATS.URL)
	}
	if cfg.Engine.UseWebSocket {
		t.Error("expected USE_WEBSOCKET=false to disable the stream")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
engine:
  window_duration: 6h
tiers:
  whale_min_volume: 99000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	os.Setenv("CONFIG_FILE", path)
	os.Setenv("WHALE_MIN_VOLUME", "123000")
	defer os.Unsetenv("CONFIG_FILE")
	defer os.Unsetenv("WHALE_MIN_VOLUME")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.WindowDuration != 6*time.Hour {
		t.Errorf("expected file override for window, got %v", cfg.Engine.WindowDuration)
	}
	// Env vars win over the file.
	if cfg.Tiers.WhaleMinVolume != 123000 {
		t.Errorf("expected env to beat file, got %f", cfg.Tiers.WhaleMinVolume)
	}
	// Untouched fields keep defaults.
	if cfg.Engine.RefreshInterval != 15*time.Minute {
		t.Errorf("expected default refresh, got %v", cfg.Engine.RefreshInterval)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	defer os.Unsetenv("CONFIG_FILE")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "refresh exceeds window",
			mutate: func(c *Config) { c.Engine.RefreshInterval = 48 * time.Hour },
			field:  "engine.refresh_interval",
		},
		{
			name:   "copy factor above one",
			mutate: func(c *Config) { c.Engine.CopyFactor = 1.5 },
			field:  "engine.copy_factor",
		},
		{
			name:   "copy factor zero",
			mutate: func(c *Config) { c.Engine.CopyFactor = 0 },
			field:  "engine.copy_factor",
		},
		{
			name:   "whale volume below qualified",
			mutate: func(c *Config) { c.Tiers.WhaleMinVolume = 500 },
			field:  "tiers.whale_min_volume",
		},
		{
			name:   "whale trades below qualified",
			mutate: func(c *Config) { c.Tiers.WhaleMinTrades = 1 },
			field:  "tiers.whale_min_trades",
		},
		{
			name:   "zero page size",
			mutate: func(c *Config) { c.Fetch.PageSize = 0 },
			field:  "fetch.page_size",
		},
		{
			name:   "zero dedup capacity",
			mutate: func(c *Config) { c.Dedup.Capacity = 0 },
			field:  "dedup.capacity",
		},
		{
			name:   "empty state dir",
			mutate: func(c *Config) { c.State.Dir = "" },
			field:  "state.dir",
		},
		{
			name:   "state file collision",
			mutate: func(c *Config) { c.State.ReportFileName = c.State.WindowFileName },
			field:  "collides",
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.HealthServer.Port = 70000 },
			field:  "health_server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			result := cfg.Validate()
			if result.Valid {
				t.Fatal("expected validation to fail")
			}
			err := result.Err()
			if err == nil {
				t.Fatal("expected Err() to be non-nil for invalid result")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error mentioning %q, got %q", tt.field, err.Error())
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.CopyFactor = -1
	cfg.Dedup.Capacity = 0
	cfg.HealthServer.Port = 0

	result := cfg.Validate()
	if result.Valid {
		t.Fatal("expected validation to fail")
	}
	if len(result.Errors) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Run("envString", func(t *testing.T) {
		os.Setenv("TEST_STR", "  value  ")
		defer os.Unsetenv("TEST_STR")
		if got := envString("TEST_STR", "fallback"); got != "value" {
			t.Errorf("expected trimmed value, got %q", got)
		}
		if got := envString("TEST_STR_MISSING", "fallback"); got != "fallback" {
			t.Errorf("expected fallback, got %q", got)
		}
	})

	t.Run("envInt", func(t *testing.T) {
		os.Setenv("TEST_INT", "42")
		defer os.Unsetenv("TEST_INT")
		if got := envInt("TEST_INT", 7); got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
		os.Setenv("TEST_INT", "not-a-number")
		if got := envInt("TEST_INT", 7); got != 7 {
			t.Errorf("expected fallback on parse failure, got %d", got)
		}
	})

	t.Run("envDuration", func(t *testing.T) {
		os.Setenv("TEST_DUR", "90s")
		defer os.Unsetenv("TEST_DUR")
		if got := envDuration("TEST_DUR", time.Minute); got != 90*time.Second {
			t.Errorf("expected 90s, got %v", got)
		}
	})

	t.Run("envBoolDefault", func(t *testing.T) {
		if got := envBoolDefault("TEST_BOOL_MISSING", true); !got {
			t.Error("expected default true")
		}
		os.Setenv("TEST_BOOL", "YES")
		defer os.Unsetenv("TEST_BOOL")
		if got := envBoolDefault("TEST_BOOL", false); !got {
			t.Error("expected YES to parse as true")
		}
		os.Setenv("TEST_BOOL", "off")
		if got := envBoolDefault("TEST_BOOL", true); got {
			t.Error("expected unrecognized value to parse as false")
		}
	})

	t.Run("envStringSlice", func(t *testing.T) {
		os.Setenv("TEST_SLICE", "a, b ,,c")
		defer os.Unsetenv("TEST_SLICE")
		got := envStringSlice("TEST_SLICE")
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("expected trimmed non-empty parts, got %v", got)
		}
		if envStringSlice("TEST_SLICE_MISSING") != nil {
			t.Error("expected nil for unset variable")
		}
	})
}
