package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "verbose"
	cfg.Game.DefaultPayout = "0.5"
	cfg.Vision.EpsilonRatio = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "verbose"`,
		"default_payout must be >= 1",
		"epsilon_ratio",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateStoreDriver(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		mode    string
		wantErr string
	}{
		{"memory server", "memory", "server", ""},
		{"memory migrate", "memory", "migrate", "migrate mode requires"},
		{"unknown driver", "sqlite", "server", `unknown driver "sqlite"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Store.Driver = tt.driver
			cfg.Mode = tt.mode
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateVisionZones(t *testing.T) {
	cfg := Defaults()
	cfg.Vision.Zones = append(cfg.Vision.Zones,
		ZoneConfig{Zone: "PURPLE", Ranges: []RangeConfig{{Lower: []int{0, 0, 0}, Upper: []int{1, 1, 1}}}},
		ZoneConfig{Zone: "green", Ranges: []RangeConfig{{Lower: []int{0, 0}, Upper: []int{1, 1, 300}}}},
	)
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`unknown zone "PURPLE"`,
		`zone "green" listed twice`,
		"lower must have 3 components",
		"out of range",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateVisionZoneOrder(t *testing.T) {
	tests := []struct {
		name    string
		zones   []string
		wantErr string
	}{
		{"innermost first", []string{"CENTER", "GREEN", "RED", "BLUE"}, ""},
		{"gap allowed", []string{"GREEN", "BLUE"}, ""},
		{"reversed", []string{"BLUE", "RED", "GREEN"}, "RED listed after BLUE"},
		{"center last", []string{"GREEN", "RED", "CENTER"}, "CENTER listed after RED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Store.Driver = "memory"
			cfg.Vision.Zones = nil
			for _, z := range tt.zones {
				cfg.Vision.Zones = append(cfg.Vision.Zones, ZoneConfig{
					Zone:   z,
					Ranges: []RangeConfig{{Lower: []int{0, 70, 70}, Upper: []int{10, 255, 255}}},
				})
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "classify"

[store]
driver = "memory"

[game]
default_payout = "3.5"
settle_lock_ttl = "45s"

[vision]
blur_sigma = 1.5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BIATHLONBET_SERVER_PORT", "9090")
	t.Setenv("BIATHLONBET_NOTIFY_EVENTS", "round_settled, ,wager_placed")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "classify" || cfg.Store.Driver != "memory" {
		t.Errorf("file values not applied: mode=%q driver=%q", cfg.Mode, cfg.Store.Driver)
	}
	if cfg.Game.DefaultPayout != "3.5" || cfg.Game.SettleLockTTL.Duration != 45*time.Second {
		t.Errorf("game = %+v", cfg.Game)
	}
	if cfg.Vision.BlurSigma != 1.5 {
		t.Errorf("blur sigma = %v", cfg.Vision.BlurSigma)
	}
	if len(cfg.Vision.Zones) != 3 {
		t.Errorf("default zones lost: %d", len(cfg.Vision.Zones))
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want env override 9090", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Notify.Events, "|"); got != "round_settled|wager_placed" {
		t.Errorf("events = %q", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != Defaults().Server.Port {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "host-key"

	out := RedactedConfig(&cfg)
	if out.Postgres.Password != redacted || out.S3.SecretKey != redacted || out.Server.APIKey != redacted {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if out.Redis.Password != "" {
		t.Errorf("empty secret should stay empty, got %q", out.Redis.Password)
	}
	if cfg.Server.APIKey != "host-key" {
		t.Error("original config was modified")
	}
	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] == "changed" {
		t.Error("redacted copy shares the events slice")
	}
}
