package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atmx/playmarket/internal/micros"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	l, _ := cfg.Market.DefaultLiquidityMicros()
	if !l.Equal(micros.FromCoins(1000)) {
		t.Errorf("expected 1000 coins of liquidity, got %s", l)
	}
	b, _ := cfg.Market.StartingBalanceMicros()
	if !b.Equal(micros.FromCoins(100)) {
		t.Errorf("expected 100 coin starting balance, got %s", b)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playmarket.toml")
	body := `
log_level = "debug"

[server]
port = 9090
shutdown_timeout = "2s"

[market]
default_fee_bps = 250
default_liquidity = "500.5"

[engine]
lock_wait = "750ms"

[archive]
bucket = "ledger-archive"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.ShutdownTimeout.Duration != 2*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout.Duration != 10*time.Second {
		t.Errorf("unset keys should keep defaults, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Market.DefaultFeeBps != 250 || cfg.Engine.LockWait.Duration != 750*time.Millisecond {
		t.Errorf("unexpected market/engine config %+v %+v", cfg.Market, cfg.Engine)
	}
	l, err := cfg.Market.DefaultLiquidityMicros()
	if err != nil || !l.Equal(micros.FromInt(500_500_000)) {
		t.Errorf("expected 500.5 coins, got %s (%v)", l, err)
	}
	if !cfg.Archive.Enabled() || cfg.Archive.Prefix != "trades" {
		t.Errorf("unexpected archive config %+v", cfg.Archive)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", cfg.SlogLevel())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://legacy")
	t.Setenv("PLAYMARKET_DATABASE_URL", "postgres://preferred")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PLAYMARKET_ENGINE_MAX_TX_ATTEMPTS", "5")
	t.Setenv("PLAYMARKET_ENGINE_LOCK_TTL", "1m")
	t.Setenv("PLAYMARKET_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PLAYMARKET_ARCHIVE_FORCE_PATH_STYLE", "true")
	t.Setenv("PLAYMARKET_MARKET_DEFAULT_FEE_BPS", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("PORT not applied, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://preferred" {
		t.Errorf("PLAYMARKET_DATABASE_URL should win, got %q", cfg.Database.URL)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("REDIS_URL not applied, got %q", cfg.Redis.URL)
	}
	if cfg.Engine.MaxTxAttempts != 5 || cfg.Engine.LockTTL.Duration != time.Minute {
		t.Errorf("engine overrides not applied: %+v", cfg.Engine)
	}
	if strings.Join(cfg.Server.CORSOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("unexpected CORS origins %q", cfg.Server.CORSOrigins)
	}
	if !cfg.Archive.ForcePathStyle {
		t.Error("force path style not applied")
	}
	if cfg.Market.DefaultFeeBps != 100 {
		t.Errorf("unparseable values must be ignored, got %d", cfg.Market.DefaultFeeBps)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "chatty"
	cfg.Server.Port = 0
	cfg.Market.DefaultFeeBps = 10_001
	cfg.Market.DefaultLiquidity = "0"
	cfg.Market.StartingBalance = "-1"
	cfg.Engine.MaxTxAttempts = 0
	cfg.Archive.AccessKey = "AKIA"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "server: port", "default_fee_bps", "default_liquidity",
		"starting_balance", "max_tx_attempts", "access_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 7 {
		t.Errorf("expected 7 joined errors, got %v", err)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("unknown level should fall back to info")
	}
}
