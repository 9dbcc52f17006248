package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/playmarket/internal/app"
	"github.com/atmx/playmarket/internal/model"
)

// Flags for account commands
var (
	accountKind string
	accountName string
)

// AccountCommand returns the account command group.
func AccountCommand() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage agent and user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register an account with the starting balance",
		Args:  cobra.NoArgs,
		RunE:  runAccountCreate,
	}
	createCmd.Flags().StringVar(&accountKind, "kind", "USER", "Account kind (AGENT or USER)")
	createCmd.Flags().StringVar(&accountName, "name", "", "Display name (required)")
	createCmd.MarkFlagRequired("name")

	showCmd := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show balance and positions",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountShow,
	}

	claimCmd := &cobra.Command{
		Use:   "claim <agent-id> <owner-id>",
		Short: "Link an agent to the user who owns it",
		Long:  `Once claimed, settlement proceeds for the agent's positions are paid to the owner.`,
		Args:  cobra.ExactArgs(2),
		RunE:  runAccountClaim,
	}

	depositCmd := &cobra.Command{
		Use:   "deposit <account-id> <coins>",
		Short: "Credit play money to an account",
		Args:  cobra.ExactArgs(2),
		RunE:  runAccountDeposit,
	}

	accountCmd.AddCommand(createCmd, showCmd, claimCmd, depositCmd)
	return accountCmd
}

func runAccountCreate(cmd *cobra.Command, _ []string) error {
	kind := model.AccountKind(strings.ToUpper(accountKind))
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		acct, err := a.Accounts.Register(ctx, kind, accountName)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), acct, func(w io.Writer) {
			fmt.Fprintf(w, "Created %s account %s (%s), balance %s\n",
				acct.Kind, acct.ID, acct.DisplayName, fmtCoins(acct.Balance))
		})
	})
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		h, err := a.Accounts.Holdings(ctx, args[0])
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), h, func(out io.Writer) {
			fmt.Fprintf(out, "%s %s (%s)\n", h.Account.Kind, h.Account.ID, h.Account.DisplayName)
			if h.Account.OwnerID != "" {
				fmt.Fprintf(out, "  owner:   %s\n", h.Account.OwnerID)
			}
			fmt.Fprintf(out, "  balance: %s\n", fmtCoins(h.Account.Balance))
			if len(h.Positions) == 0 {
				return
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MARKET\tYES\tNO")
			for _, p := range h.Positions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.MarketID, fmtCoins(p.YesShares), fmtCoins(p.NoShares))
			}
			w.Flush()
		})
	})
}

func runAccountClaim(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		agent, err := a.Accounts.Claim(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), agent, func(w io.Writer) {
			fmt.Fprintf(w, "Agent %s is now owned by %s\n", agent.ID, agent.OwnerID)
		})
	})
}

func runAccountDeposit(cmd *cobra.Command, args []string) error {
	amount, err := parseCoins("amount", args[1])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		balance, err := a.Accounts.Deposit(ctx, args[0], amount)
		if err != nil {
			return err
		}
		out := struct {
			AccountID string          `json:"account_id"`
			Amount    decimal.Decimal `json:"amount"`
			Balance   decimal.Decimal `json:"balance"`
		}{args[0], amount, balance}
		return emit(cmd.OutOrStdout(), out, func(w io.Writer) {
			fmt.Fprintf(w, "Deposited %s to %s, balance %s\n", fmtCoins(amount), args[0], fmtCoins(balance))
		})
	})
}
