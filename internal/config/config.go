// Package config defines the top-level configuration for the biathlonbet
// referee and settlement service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BIATHLONBET_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Game     GameConfig     `toml:"game"`
	Vision   VisionConfig   `toml:"vision"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled, locks, rate
// limits and the event bus run in-process.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	KeyPrefix    string `toml:"key_prefix"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for the capture
// archive and settlement reports.
type S3Config struct {
	Enabled              bool   `toml:"enabled"`
	Endpoint             string `toml:"endpoint"`
	Region               string `toml:"region"`
	Bucket               string `toml:"bucket"`
	AccessKey            string `toml:"access_key"`
	SecretKey            string `toml:"secret_key"`
	UseSSL               bool   `toml:"use_ssl"`
	ForcePathStyle       bool   `toml:"force_path_style"`
	MultipartThresholdMB int    `toml:"multipart_threshold_mb"`
}

// GameConfig holds round and wager rules.
type GameConfig struct {
	// DefaultPayout is used when a round is created without one.
	DefaultPayout string `toml:"default_payout"`
	// MaxStake caps a single wager; empty means no cap.
	MaxStake        string   `toml:"max_stake"`
	SettleLockTTL   duration `toml:"settle_lock_ttl"`
	WagerRateLimit  int      `toml:"wager_rate_limit"`
	WagerRateWindow duration `toml:"wager_rate_window"`
}

// VisionConfig tunes the referee pipeline.
type VisionConfig struct {
	BlurSigma     float64 `toml:"blur_sigma"`
	ZoneMinArea   float64 `toml:"zone_min_area"`
	MarkerMinArea float64 `toml:"marker_min_area"`
	EpsilonRatio  float64 `toml:"epsilon_ratio"`
	// Marker lists the HSV ranges of the marker color.
	Marker []RangeConfig `toml:"marker"`
	// Zones must be listed innermost first.
	Zones []ZoneConfig `toml:"zones"`
}

// ZoneConfig binds a zone name to its HSV ranges.
type ZoneConfig struct {
	Zone   string        `toml:"zone"`
	Ranges []RangeConfig `toml:"ranges"`
}

// RangeConfig is an inclusive HSV box. Hue is 0-180, saturation and value
// 0-255. A lower hue above the upper hue wraps around red.
type RangeConfig struct {
	Lower []int `toml:"lower"`
	Upper []int `toml:"upper"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards the host routes. Empty disables the check.
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the configuration used for any key the TOML file and
// BIATHLONBET_* environment leave unset. The vision bands describe the
// reference board under even indoor lighting.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Driver: "postgres"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "biathlonbet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "biathlonbet",
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Enabled:              false,
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "biathlonbet",
			ForcePathStyle:       true,
			MultipartThresholdMB: 8,
		},
		Game: GameConfig{
			DefaultPayout:   "2.0",
			SettleLockTTL:   duration{30 * time.Second},
			WagerRateLimit:  10,
			WagerRateWindow: duration{time.Minute},
		},
		Vision: VisionConfig{
			BlurSigma:     2.0,
			ZoneMinArea:   500,
			MarkerMinArea: 300,
			EpsilonRatio:  0.04,
			Marker:        []RangeConfig{{Lower: []int{0, 0, 0}, Upper: []int{180, 255, 60}}},
			Zones: []ZoneConfig{
				{Zone: "GREEN", Ranges: []RangeConfig{{Lower: []int{40, 70, 70}, Upper: []int{80, 255, 255}}}},
				{Zone: "RED", Ranges: []RangeConfig{
					{Lower: []int{0, 70, 70}, Upper: []int{10, 255, 255}},
					{Lower: []int{170, 70, 70}, Upper: []int{180, 255, 255}},
				}},
				{Zone: "BLUE", Ranges: []RangeConfig{{Lower: []int{90, 70, 70}, Upper: []int{130, 255, 255}}}},
			},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"round_created", "betting_closed", "round_settled"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"classify": true,
	"migrate":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// zoneNesting ranks the known zones from innermost (0) outwards. Configured
// zones must appear in increasing rank; gaps are allowed.
var zoneNesting = map[string]int{
	"CENTER": 0,
	"GREEN":  1,
	"RED":    2,
	"BLUE":   3,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, classify, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	switch c.Store.Driver {
	case "postgres":
		errs = append(errs, c.validatePostgres()...)
	case "memory":
		if mode == "migrate" {
			errs = append(errs, "store: migrate mode requires driver \"postgres\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, memory)", c.Store.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	errs = append(errs, c.validateGame()...)
	errs = append(errs, c.validateVision()...)

	// Server
	if mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validatePostgres() []string {
	var errs []string
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}
	return errs
}

func (c *Config) validateGame() []string {
	var errs []string
	payout, err := decimal.NewFromString(c.Game.DefaultPayout)
	if err != nil {
		errs = append(errs, fmt.Sprintf("game: default_payout %q is not a number", c.Game.DefaultPayout))
	} else if payout.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, "game: default_payout must be >= 1")
	}
	if c.Game.MaxStake != "" {
		if max, err := decimal.NewFromString(c.Game.MaxStake); err != nil || !max.IsPositive() {
			errs = append(errs, fmt.Sprintf("game: max_stake %q must be a positive number", c.Game.MaxStake))
		}
	}
	if c.Game.SettleLockTTL.Duration <= 0 {
		errs = append(errs, "game: settle_lock_ttl must be > 0")
	}
	if c.Game.WagerRateLimit < 0 {
		errs = append(errs, "game: wager_rate_limit must be >= 0")
	}
	if c.Game.WagerRateLimit > 0 && c.Game.WagerRateWindow.Duration <= 0 {
		errs = append(errs, "game: wager_rate_window must be > 0 when wager_rate_limit is set")
	}
	return errs
}

func (c *Config) validateVision() []string {
	var errs []string
	v := c.Vision
	if v.BlurSigma < 0 {
		errs = append(errs, "vision: blur_sigma must be >= 0")
	}
	if v.ZoneMinArea < 0 || v.MarkerMinArea < 0 {
		errs = append(errs, "vision: min areas must be >= 0")
	}
	if v.EpsilonRatio <= 0 || v.EpsilonRatio >= 1 {
		errs = append(errs, "vision: epsilon_ratio must be in (0, 1)")
	}
	if len(v.Marker) == 0 {
		errs = append(errs, "vision: marker must list at least one range")
	}
	for i, r := range v.Marker {
		errs = append(errs, checkRange(fmt.Sprintf("vision: marker[%d]", i), r)...)
	}
	if len(v.Zones) == 0 {
		errs = append(errs, "vision: at least one zone must be configured")
	}
	seen := make(map[string]bool, len(v.Zones))
	prev, prevName := -1, ""
	for i, z := range v.Zones {
		name := strings.ToUpper(strings.TrimSpace(z.Zone))
		rank, known := zoneNesting[name]
		switch {
		case !known:
			errs = append(errs, fmt.Sprintf("vision: zones[%d]: unknown zone %q", i, z.Zone))
		case seen[name]:
			errs = append(errs, fmt.Sprintf("vision: zones[%d]: zone %q listed twice", i, z.Zone))
		case rank < prev:
			errs = append(errs, fmt.Sprintf("vision: zones[%d]: %s listed after %s; zones must run innermost first (CENTER, GREEN, RED, BLUE)", i, name, prevName))
		default:
			prev, prevName = rank, name
		}
		seen[name] = true
		if len(z.Ranges) == 0 {
			errs = append(errs, fmt.Sprintf("vision: zones[%d]: no ranges", i))
		}
		for j, r := range z.Ranges {
			errs = append(errs, checkRange(fmt.Sprintf("vision: zones[%d].ranges[%d]", i, j), r)...)
		}
	}
	return errs
}

func checkRange(where string, r RangeConfig) []string {
	var errs []string
	for _, b := range []struct {
		name string
		v    []int
	}{{"lower", r.Lower}, {"upper", r.Upper}} {
		if len(b.v) != 3 {
			errs = append(errs, fmt.Sprintf("%s: %s must have 3 components", where, b.name))
			continue
		}
		if b.v[0] < 0 || b.v[0] > 180 || b.v[1] < 0 || b.v[1] > 255 || b.v[2] < 0 || b.v[2] > 255 {
			errs = append(errs, fmt.Sprintf("%s: %s %v out of range", where, b.name, b.v))
		}
	}
	return errs
}
