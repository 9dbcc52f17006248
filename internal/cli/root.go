// Package cli implements playctl, the operator command line for the ledger.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/playmarket/internal/app"
	"github.com/atmx/playmarket/internal/config"
	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
)

// Global flags
var (
	configPath string
	outputJSON bool
)

// openApp builds the ledger for one command. Tests replace it to share
// one in-memory ledger across invocations.
var openApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

// RootCommand returns playctl with every subcommand registered.
func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "playctl",
		Short:         "Operate the play-money prediction market ledger",
		Long:          `playctl creates markets and accounts, executes and quotes trades, settles markets and archives trade logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	root.AddCommand(MigrateCommand())
	root.AddCommand(MarketCommand())
	root.AddCommand(AccountCommand())
	root.AddCommand(QuoteCommand())
	root.AddCommand(TradeCommand())
	root.AddCommand(SettleCommand())
	root.AddCommand(ExportCommand())
	root.AddCommand(TreasuryCommand())
	return root
}

// loadConfig reads and validates configuration and installs the logger.
// Logs go to stderr so stdout stays machine readable.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

// withApp runs fn against a freshly opened ledger and closes it after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// emit prints v as JSON with --json, otherwise runs text.
func emit(w io.Writer, v any, text func(w io.Writer)) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func parseOutcome(s string) (model.Outcome, error) {
	o := model.Outcome(strings.ToUpper(s))
	if !o.Valid() {
		return "", fmt.Errorf("outcome must be YES or NO, got %q", s)
	}
	return o, nil
}

// parseCoins reads a coin amount such as "12.5" into micros.
func parseCoins(what, s string) (decimal.Decimal, error) {
	m, err := micros.ParseCoins(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return m, nil
}

func fmtCoins(m decimal.Decimal) string { return micros.FormatCoins(m) }
