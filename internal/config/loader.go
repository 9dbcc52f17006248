package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds a Config from the defaults, the TOML file at path (skipped
// when path is empty), a .env file if one exists, and finally environment
// variables. The result has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the deploy-time variables. The bare names the
// service has always honoured (PORT, DATABASE_URL, REDIS_URL) are applied
// first so PLAYMARKET_* wins when both are set.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "PLAYMARKET_SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "PLAYMARKET_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "PLAYMARKET_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "PLAYMARKET_SERVER_SHUTDOWN_TIMEOUT")
	setStringSlice(&cfg.Server.CORSOrigins, "PLAYMARKET_SERVER_CORS_ORIGINS")

	// ── Database ──
	setStr(&cfg.Database.URL, "PLAYMARKET_DATABASE_URL")
	setInt(&cfg.Database.MaxConns, "PLAYMARKET_DATABASE_MAX_CONNS")
	setBool(&cfg.Database.RunMigrations, "PLAYMARKET_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "PLAYMARKET_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "PLAYMARKET_REDIS_CACHE_TTL")
	setStr(&cfg.Redis.EventsChannel, "PLAYMARKET_REDIS_EVENTS_CHANNEL")

	// ── Market ──
	setInt(&cfg.Market.DefaultFeeBps, "PLAYMARKET_MARKET_DEFAULT_FEE_BPS")
	setStr(&cfg.Market.DefaultLiquidity, "PLAYMARKET_MARKET_DEFAULT_LIQUIDITY")
	setStr(&cfg.Market.StartingBalance, "PLAYMARKET_MARKET_STARTING_BALANCE")

	// ── Engine ──
	setInt(&cfg.Engine.MaxTxAttempts, "PLAYMARKET_ENGINE_MAX_TX_ATTEMPTS")
	setDuration(&cfg.Engine.LockTTL, "PLAYMARKET_ENGINE_LOCK_TTL")
	setDuration(&cfg.Engine.LockWait, "PLAYMARKET_ENGINE_LOCK_WAIT")

	// ── Archive ──
	setStr(&cfg.Archive.Bucket, "PLAYMARKET_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.Prefix, "PLAYMARKET_ARCHIVE_PREFIX")
	setStr(&cfg.Archive.Region, "PLAYMARKET_ARCHIVE_REGION")
	setStr(&cfg.Archive.Endpoint, "PLAYMARKET_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.AccessKey, "PLAYMARKET_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "PLAYMARKET_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "PLAYMARKET_ARCHIVE_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.ExportOnSettle, "PLAYMARKET_ARCHIVE_EXPORT_ON_SETTLE")

	setStr(&cfg.LogLevel, "PLAYMARKET_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable
// is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
