// Package account manages agent and user accounts: registration with a
// starting balance, agent claiming by a human owner, and deposits.
package account

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
)

// Service owns account lifecycle operations.
type Service struct {
	store           store.Store
	startingBalance decimal.Decimal
	attempts        int
}

// NewService creates an account service. New accounts start with
// startingBalance micros.
func NewService(st store.Store, startingBalance decimal.Decimal, attempts int) *Service {
	if attempts <= 0 {
		attempts = 3
	}
	return &Service{store: st, startingBalance: startingBalance, attempts: attempts}
}

// Register creates an account of the given kind.
func (s *Service) Register(ctx context.Context, kind model.AccountKind, displayName string) (*model.Account, error) {
	const op = "account.register"
	if !kind.Valid() {
		return nil, model.NewError(model.ErrInvalidParameter, op, "kind must be AGENT or USER")
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, model.NewError(model.ErrInvalidParameter, op, "display name is required")
	}

	a := &model.Account{
		ID:          uuid.New().String(),
		Kind:        kind,
		DisplayName: name,
		Balance:     s.startingBalance,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, model.Wrap(err, op, "", a.ID)
	}
	slog.Info("account registered", "id", a.ID, "kind", a.Kind, "balance", a.Balance.String())
	return a, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, model.Wrap(err, "account.get", "", id)
	}
	return a, nil
}

// Holdings is an account with its positions.
type Holdings struct {
	Account   model.Account    `json:"account"`
	Positions []model.Position `json:"positions"`
}

// Holdings returns an account and every position it holds.
func (s *Service) Holdings(ctx context.Context, id string) (*Holdings, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.ListPositionsByAccount(ctx, id)
	if err != nil {
		return nil, model.Wrap(err, "account.holdings", "", id)
	}
	if positions == nil {
		positions = []model.Position{}
	}
	return &Holdings{Account: *a, Positions: positions}, nil
}

// Claim links an agent to the human user who owns it. An agent can be
// claimed once; settlement proceeds are paid to the owner from then on.
func (s *Service) Claim(ctx context.Context, agentID, ownerID string) (*model.Account, error) {
	const op = "account.claim"
	if agentID == "" || ownerID == "" {
		return nil, model.NewError(model.ErrInvalidParameter, op, "agent and owner ids are required")
	}

	var claimed *model.Account
	err := store.Retry(ctx, s.attempts, op, func() error {
		return s.store.InTx(ctx, func(tx store.Tx) error {
			agent, err := tx.AccountForUpdate(ctx, agentID)
			if err != nil {
				return err
			}
			if agent.Kind != model.KindAgent {
				return &model.Error{Kind: model.ErrInvalidParameter, Op: op, AccountID: agentID, Msg: "only agents can be claimed"}
			}
			owner, err := tx.AccountForUpdate(ctx, ownerID)
			if err != nil {
				return err
			}
			if owner.Kind != model.KindUser {
				return &model.Error{Kind: model.ErrInvalidParameter, Op: op, AccountID: ownerID, Msg: "owner must be a user"}
			}
			if err := tx.SetAccountOwner(ctx, agentID, ownerID); err != nil {
				return err
			}
			agent.OwnerID = ownerID
			claimed = agent
			return nil
		})
	})
	if err != nil {
		return nil, model.Wrap(err, op, "", agentID)
	}
	slog.Info("agent claimed", "agent", agentID, "owner", ownerID)
	return claimed, nil
}

// Deposit credits amount micros and returns the new balance.
func (s *Service) Deposit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "account.deposit"
	if err := micros.CheckNonNegative(amount); err != nil || amount.IsZero() {
		return decimal.Zero, &model.Error{Kind: model.ErrInvalidParameter, Op: op, AccountID: id, Amount: amount,
			Msg: "deposit must be a positive whole number of micros", Err: err}
	}

	var balance decimal.Decimal
	err := store.Retry(ctx, s.attempts, op, func() error {
		return s.store.InTx(ctx, func(tx store.Tx) error {
			b, err := tx.CreditAccount(ctx, id, amount)
			balance = b
			return err
		})
	})
	if err != nil {
		return decimal.Zero, model.Wrap(err, op, "", id)
	}
	slog.Info("deposit credited", "account", id, "amount", amount.String(), "balance", balance.String())
	return balance, nil
}
