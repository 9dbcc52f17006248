// Package config defines the configuration for the playmarket server and
// operator CLI and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/micros"
)

// Config is the root configuration structure. Fields are populated from
// Defaults, then an optional TOML file, then environment overrides.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Market   MarketConfig   `toml:"market"`
	Engine   EngineConfig   `toml:"engine"`
	Archive  ArchiveConfig  `toml:"archive"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty URL
// selects the in-memory store.
type DatabaseConfig struct {
	URL           string `toml:"url"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis parameters. An empty URL disables the read
// cache, the distributed market lock and the cross-instance event bus.
type RedisConfig struct {
	URL           string   `toml:"url"`
	CacheTTL      duration `toml:"cache_ttl"`
	EventsChannel string   `toml:"events_channel"`
}

// MarketConfig holds ledger defaults. Amounts are coin strings.
type MarketConfig struct {
	DefaultFeeBps    int    `toml:"default_fee_bps"`
	DefaultLiquidity string `toml:"default_liquidity"`
	StartingBalance  string `toml:"starting_balance"`
}

// EngineConfig tunes transaction retries and per-market locking.
type EngineConfig struct {
	MaxTxAttempts int      `toml:"max_tx_attempts"`
	LockTTL       duration `toml:"lock_ttl"`
	LockWait      duration `toml:"lock_wait"`
}

// ArchiveConfig holds S3-compatible object storage parameters for trade log
// exports. An empty bucket disables archiving.
type ArchiveConfig struct {
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ExportOnSettle bool   `toml:"export_on_settle"`
}

// Enabled reports whether an archive bucket is configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("5s", "250ms").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values the service runs
// with when nothing is configured.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns:      10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL:      duration{30 * time.Second},
			EventsChannel: "playmarket:events",
		},
		Market: MarketConfig{
			DefaultFeeBps:    100,
			DefaultLiquidity: "1000",
			StartingBalance:  "100",
		},
		Engine: EngineConfig{
			MaxTxAttempts: 3,
			LockTTL:       duration{10 * time.Second},
			LockWait:      duration{5 * time.Second},
		},
		Archive: ArchiveConfig{
			Prefix: "trades",
			Region: "us-east-1",
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured log level, or info if it is unknown.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// DefaultLiquidityMicros returns the seeded reserve size in micros.
func (m MarketConfig) DefaultLiquidityMicros() (decimal.Decimal, error) {
	return micros.ParseCoins(m.DefaultLiquidity)
}

// StartingBalanceMicros returns the balance new accounts receive, in micros.
func (m MarketConfig) StartingBalanceMicros() (decimal.Decimal, error) {
	return micros.ParseCoins(m.StartingBalance)
}

// Validate checks Config for invalid or missing values and returns every
// problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, errors.New("server: shutdown_timeout must be positive"))
	}

	if c.Database.URL != "" && c.Database.MaxConns < 1 {
		errs = append(errs, errors.New("database: max_conns must be >= 1"))
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, errors.New("redis: cache_ttl must be positive"))
	}

	if c.Market.DefaultFeeBps < 0 || c.Market.DefaultFeeBps > micros.BpsDenominator {
		errs = append(errs, fmt.Errorf("market: default_fee_bps must be 0-%d, got %d", micros.BpsDenominator, c.Market.DefaultFeeBps))
	}
	if l, err := c.Market.DefaultLiquidityMicros(); err != nil || !l.IsPositive() {
		errs = append(errs, fmt.Errorf("market: default_liquidity must be a positive coin amount, got %q", c.Market.DefaultLiquidity))
	}
	if b, err := c.Market.StartingBalanceMicros(); err != nil || b.IsNegative() {
		errs = append(errs, fmt.Errorf("market: starting_balance must be a non-negative coin amount, got %q", c.Market.StartingBalance))
	}

	if c.Engine.MaxTxAttempts < 1 {
		errs = append(errs, errors.New("engine: max_tx_attempts must be >= 1"))
	}
	if c.Engine.LockTTL.Duration <= 0 || c.Engine.LockWait.Duration <= 0 {
		errs = append(errs, errors.New("engine: lock_ttl and lock_wait must be positive"))
	}

	if c.Archive.Enabled() && c.Archive.Region == "" && c.Archive.Endpoint == "" {
		errs = append(errs, errors.New("archive: region or endpoint is required when bucket is set"))
	}
	if (c.Archive.AccessKey == "") != (c.Archive.SecretKey == "") {
		errs = append(errs, errors.New("archive: access_key and secret_key must be set together"))
	}

	return errors.Join(errs...)
}
