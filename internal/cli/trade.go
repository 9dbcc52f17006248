package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/atmx/playmarket/internal/app"
	"github.com/atmx/playmarket/internal/archive"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/settlement"
	"github.com/atmx/playmarket/internal/trade"
)

// Flags for trading commands
var (
	tradeAgent   string
	tradeUser    string
	settleExport bool
)

// QuoteCommand returns the quote command.
func QuoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <market-id> <YES|NO> <coins>",
		Short: "Price a buy without executing it",
		Args:  cobra.ExactArgs(3),
		RunE:  runQuote,
	}
}

// TradeCommand returns the trade command.
func TradeCommand() *cobra.Command {
	tradeCmd := &cobra.Command{
		Use:   "trade <market-id> <YES|NO> <coins>",
		Short: "Buy outcome shares for an agent or user",
		Example: `  playctl trade 3f1c... YES 10 --agent 9a0e...
  playctl trade 3f1c... NO 2.5 --user 77b2...`,
		Args: cobra.ExactArgs(3),
		RunE: runTrade,
	}
	tradeCmd.Flags().StringVar(&tradeAgent, "agent", "", "Trade as this agent account")
	tradeCmd.Flags().StringVar(&tradeUser, "user", "", "Trade as this user account")
	tradeCmd.MarkFlagsMutuallyExclusive("agent", "user")
	tradeCmd.MarkFlagsOneRequired("agent", "user")
	return tradeCmd
}

// SettleCommand returns the settle command.
func SettleCommand() *cobra.Command {
	settleCmd := &cobra.Command{
		Use:   "settle <market-id> <YES|NO>",
		Short: "Resolve a market and pay winning shares 1:1",
		Long: `Resolves an open market and credits every holder of the winning side one
micro per share, paying an agent's owner when it has one. Settling an
already resolved market with the same outcome is a no-op.`,
		Args: cobra.ExactArgs(2),
		RunE: runSettle,
	}
	settleCmd.Flags().BoolVar(&settleExport, "export", false, "Archive the trade log after settling")
	return settleCmd
}

// ExportCommand returns the export command.
func ExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <market-id>",
		Short: "Archive a market's trade log to object storage",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
}

// TreasuryCommand returns the treasury command.
func TreasuryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "treasury",
		Short: "Show fees collected by the house",
		Args:  cobra.NoArgs,
		RunE:  runTreasury,
	}
}

// MigrateCommand returns the migrate command.
func MigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runQuote(cmd *cobra.Command, args []string) error {
	outcome, err := parseOutcome(args[1])
	if err != nil {
		return err
	}
	amount, err := parseCoins("amount", args[2])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		p, err := a.Trades.Quote(ctx, args[0], outcome, amount)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), p, func(w io.Writer) {
			fmt.Fprintf(w, "Buy %s with %s\n", p.Outcome, fmtCoins(p.CollateralIn))
			fmt.Fprintf(w, "  fee:    %s\n", fmtCoins(p.Fee))
			fmt.Fprintf(w, "  shares: %s\n", fmtCoins(p.SharesOut))
			fmt.Fprintf(w, "  YES:    %.4f -> %.4f\n", p.PriceYesBefore, p.PriceYesAfter)
			fmt.Fprintf(w, "  NO:     %.4f -> %.4f\n", p.PriceNoBefore, p.PriceNoAfter)
		})
	})
}

func runTrade(cmd *cobra.Command, args []string) error {
	outcome, err := parseOutcome(args[1])
	if err != nil {
		return err
	}
	amount, err := parseCoins("amount", args[2])
	if err != nil {
		return err
	}
	ref := model.UserRef(tradeUser)
	if tradeAgent != "" {
		ref = model.AgentRef(tradeAgent)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		r, err := a.Trades.Execute(ctx, trade.Request{
			Account:      ref,
			MarketID:     args[0],
			Outcome:      outcome,
			CollateralIn: amount,
		})
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), r, func(w io.Writer) {
			fmt.Fprintf(w, "Trade %s: bought %s %s shares for %s (fee %s)\n",
				r.TradeID, fmtCoins(r.SharesOut), r.Outcome, fmtCoins(r.CollateralIn), fmtCoins(r.Fee))
			fmt.Fprintf(w, "  balance: %s\n", fmtCoins(r.Balance))
			fmt.Fprintf(w, "  price:   YES %.4f / NO %.4f\n", r.PriceYes, r.PriceNo)
		})
	})
}

func runSettle(cmd *cobra.Command, args []string) error {
	outcome, err := parseOutcome(args[1])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Settlement.Settle(ctx, args[0], outcome)
		if err != nil {
			return err
		}
		out := struct {
			*settlement.Result
			Archive *archive.Manifest `json:"archive,omitempty"`
		}{Result: res}

		if settleExport || a.Config.Archive.ExportOnSettle {
			// the market is settled either way; a failed upload can be retried with export
			man, err := exportMarket(ctx, a, res.MarketID)
			if err != nil {
				return fmt.Errorf("market settled but archive failed: %w", err)
			}
			out.Archive = man
		}

		return emit(cmd.OutOrStdout(), out, func(w io.Writer) {
			if res.AlreadyResolved {
				fmt.Fprintf(w, "Market %s was already resolved %s\n", res.MarketID, res.Outcome)
			} else {
				fmt.Fprintf(w, "Market %s resolved %s, paid %s to %d accounts\n",
					res.MarketID, res.Outcome, fmtCoins(res.Total), len(res.Payouts))
				for _, p := range res.Payouts {
					if p.HolderID != p.AccountID {
						fmt.Fprintf(w, "  %s  %s (held by %s)\n", p.AccountID, fmtCoins(p.Amount), p.HolderID)
					} else {
						fmt.Fprintf(w, "  %s  %s\n", p.AccountID, fmtCoins(p.Amount))
					}
				}
			}
			if out.Archive != nil {
				fmt.Fprintf(w, "Archived %d trades to %s\n", out.Archive.Trades, out.Archive.TradesKey)
			}
		})
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		man, err := exportMarket(ctx, a, args[0])
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), man, func(w io.Writer) {
			fmt.Fprintf(w, "Archived %d trades to %s\n", man.Trades, man.TradesKey)
		})
	})
}

func exportMarket(ctx context.Context, a *app.App, marketID string) (*archive.Manifest, error) {
	if a.Exporter == nil {
		return nil, errors.New("archive bucket not configured (set [archive] bucket or PLAYMARKET_ARCHIVE_BUCKET)")
	}
	return a.Exporter.ExportMarket(ctx, marketID)
}

func runTreasury(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		fees, err := a.Store.Treasury(ctx)
		if err != nil {
			return err
		}
		out := struct {
			Fees string `json:"fees"`
		}{fees.String()}
		return emit(cmd.OutOrStdout(), out, func(w io.Writer) {
			fmt.Fprintf(w, "Treasury: %s\n", fmtCoins(fees))
		})
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database url not set (set DATABASE_URL or [database] url)")
	}
	// migrate explicitly below, not as a side effect of opening
	cfg.Database.RunMigrations = false
	ctx := commandContext(cmd)
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Postgres.RunMigrations(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
	return nil
}
