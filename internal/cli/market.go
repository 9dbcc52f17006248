package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/playmarket/internal/app"
	"github.com/atmx/playmarket/internal/fpmm"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/trade"
)

// Flags for market commands
var (
	marketTitle       string
	marketDescription string
	marketLiquidity   string
	marketFeeBps      int
	marketStatus      string
	chartInterval     string
)

// MarketCommand returns the market command group.
func MarketCommand() *cobra.Command {
	marketCmd := &cobra.Command{
		Use:   "market",
		Short: "Create and list markets",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a market with a balanced pool",
		Args:  cobra.NoArgs,
		RunE:  runMarketCreate,
	}
	createCmd.Flags().StringVar(&marketTitle, "title", "", "Market question (required)")
	createCmd.Flags().StringVar(&marketDescription, "description", "", "Resolution criteria")
	createCmd.Flags().StringVar(&marketLiquidity, "liquidity", "", "Seed liquidity in coins (default from config)")
	createCmd.Flags().IntVar(&marketFeeBps, "fee-bps", -1, "Trading fee in basis points (default from config)")
	createCmd.MarkFlagRequired("title")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List markets, newest first",
		Args:  cobra.NoArgs,
		RunE:  runMarketList,
	}
	listCmd.Flags().StringVar(&marketStatus, "status", "", "Filter by status (OPEN or RESOLVED)")

	chartCmd := &cobra.Command{
		Use:   "chart <market-id>",
		Short: "Show YES price and volume history",
		Args:  cobra.ExactArgs(1),
		RunE:  runMarketChart,
	}
	chartCmd.Flags().StringVar(&chartInterval, "interval", trade.DefaultChartInterval, "Window: 1d, 1w, 1m or all")

	marketCmd.AddCommand(createCmd, listCmd, chartCmd)
	return marketCmd
}

func runMarketCreate(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		params := trade.MarketParams{
			Title:       marketTitle,
			Description: marketDescription,
			Liquidity:   a.Defaults.Liquidity,
			FeeBps:      a.Defaults.FeeBps,
		}
		if marketLiquidity != "" {
			liq, err := parseCoins("liquidity", marketLiquidity)
			if err != nil {
				return err
			}
			params.Liquidity = liq
		}
		if marketFeeBps >= 0 {
			params.FeeBps = marketFeeBps
		}

		m, err := a.Trades.CreateMarket(ctx, params)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), m, func(w io.Writer) {
			fmt.Fprintf(w, "Created market %s\n", m.ID)
			fmt.Fprintf(w, "  title:     %s\n", m.Title)
			fmt.Fprintf(w, "  liquidity: %s\n", fmtCoins(m.Pool.YesReserve))
			fmt.Fprintf(w, "  fee:       %d bps\n", m.Pool.FeeBps)
		})
	})
}

func runMarketList(cmd *cobra.Command, _ []string) error {
	status := model.MarketStatus(strings.ToUpper(marketStatus))
	if status != "" && status != model.StatusOpen && status != model.StatusResolved {
		return fmt.Errorf("status must be OPEN or RESOLVED, got %q", marketStatus)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		markets, err := a.Store.ListMarkets(ctx, status)
		if err != nil {
			return err
		}
		if markets == nil {
			markets = []model.Market{}
		}
		return emit(cmd.OutOrStdout(), markets, func(out io.Writer) {
			if len(markets) == 0 {
				fmt.Fprintln(out, "No markets.")
				return
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tOUTCOME\tYES\tNO\tTITLE")
			for i := range markets {
				m := &markets[i]
				yes, no := fpmm.MarketPrices(m)
				outcome := "-"
				if m.Status == model.StatusResolved {
					outcome = string(m.Outcome)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%s\n", m.ID, m.Status, outcome, yes, no, m.Title)
			}
			w.Flush()
		})
	})
}

func runMarketChart(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		c, err := a.Trades.Chart(ctx, args[0], chartInterval)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), c, func(out io.Writer) {
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tYES\tVOLUME\tTRADES")
			for _, p := range c.Points {
				ts := time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(w, "%s\t%.4f\t%s\t%d\n", ts, p.PriceYes, fmtCoins(p.Volume), p.Trades)
			}
			w.Flush()
		})
	})
}
