// Package settlement resolves a market and pays out winning shares 1:1.
//
// Settlement is idempotent. Re-resolving a market with the outcome it
// already has succeeds with no payouts; resolving it with the other
// outcome is rejected. Within one run, every position is paid and zeroed
// and the market is flipped last, all in one transaction, so a failure
// leaves the market OPEN for a clean retry.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/events"
	"github.com/atmx/playmarket/internal/lock"
	"github.com/atmx/playmarket/internal/metrics"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
)

const opSettle = "settlement.settle"

// Config tunes retry and locking.
type Config struct {
	MaxTxAttempts int
	LockTTL       time.Duration
	LockWait      time.Duration
}

// Result describes a successful settlement.
type Result struct {
	MarketID        string          `json:"market_id"`
	Outcome         model.Outcome   `json:"outcome"`
	Payouts         []model.Payout  `json:"payouts"`
	Total           decimal.Decimal `json:"total"`
	AlreadyResolved bool            `json:"already_resolved"`
	ResolvedAt      time.Time       `json:"resolved_at"`
}

// Engine settles markets.
type Engine struct {
	store  store.Store
	locker lock.Locker
	events events.Publisher
	cfg    Config
}

// NewEngine creates a settlement engine. A nil locker or publisher is
// replaced by a no-op.
func NewEngine(st store.Store, locker lock.Locker, pub events.Publisher, cfg Config) *Engine {
	if locker == nil {
		locker = lock.Noop{}
	}
	if pub == nil {
		pub = events.Discard{}
	}
	if cfg.MaxTxAttempts <= 0 {
		cfg.MaxTxAttempts = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 10 * time.Second
	}
	return &Engine{store: st, locker: locker, events: pub, cfg: cfg}
}

// Settle resolves marketID with outcome and credits every winning holder.
func (e *Engine) Settle(ctx context.Context, marketID string, outcome model.Outcome) (*Result, error) {
	if marketID == "" {
		return nil, model.NewError(model.ErrInvalidParameter, opSettle, "market id is required")
	}
	if !outcome.Valid() {
		return nil, &model.Error{Kind: model.ErrInvalidParameter, Op: opSettle, MarketID: marketID,
			Msg: "outcome must be YES or NO"}
	}

	unlock, err := lock.WithTimeout(ctx, e.locker, lock.MarketKey(marketID), e.cfg.LockTTL, e.cfg.LockWait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		kind := model.ErrPersistence
		if errors.Is(err, lock.ErrLockHeld) {
			kind = model.ErrConcurrencyConflict
		}
		return nil, &model.Error{Kind: kind, Op: opSettle, MarketID: marketID, Msg: "market is busy", Err: err}
	}
	defer unlock()

	var res *Result
	attempt := 0
	err = store.Retry(ctx, e.cfg.MaxTxAttempts, opSettle, func() error {
		attempt++
		if attempt > 1 {
			metrics.TxRetries.WithLabelValues(opSettle).Inc()
		}
		return e.store.InTx(ctx, func(tx store.Tx) error {
			r, err := e.settle(ctx, tx, marketID, outcome)
			res = r
			return err
		})
	})
	if err != nil {
		err = model.Wrap(err, opSettle, marketID, "")
		slog.Error("settlement failed", "market", marketID, "outcome", outcome, "attempts", attempt, "err", err)
		return nil, err
	}

	if res.AlreadyResolved {
		slog.Info("market already settled", "market", marketID, "outcome", outcome)
		return res, nil
	}

	metrics.SettlementsTotal.WithLabelValues(string(outcome)).Inc()
	metrics.PayoutsTotal.Add(float64(len(res.Payouts)))
	metrics.ActiveMarkets.Dec()

	slog.Info("market settled",
		"market", marketID,
		"outcome", outcome,
		"payouts", len(res.Payouts),
		"total", res.Total.String(),
		"attempts", attempt,
	)

	yes, no := 0.0, 1.0
	if outcome == model.OutcomeYes {
		yes, no = 1, 0
	}
	e.events.Publish(ctx, events.Event{
		Type:     events.MarketResolved,
		MarketID: marketID,
		Outcome:  string(outcome),
		PriceYes: yes,
		PriceNo:  no,
		Payouts:  len(res.Payouts),
		At:       res.ResolvedAt,
	})
	return res, nil
}

func (e *Engine) settle(ctx context.Context, tx store.Tx, marketID string, outcome model.Outcome) (*Result, error) {
	m, err := tx.MarketForUpdate(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.Status == model.StatusResolved {
		if m.Outcome != outcome {
			return nil, &model.Error{Kind: model.ErrInvalidState, Op: opSettle, MarketID: marketID,
				Msg: "market already resolved to " + string(m.Outcome)}
		}
		res := &Result{MarketID: marketID, Outcome: outcome, Payouts: []model.Payout{},
			Total: decimal.Zero, AlreadyResolved: true}
		if m.ResolvedAt != nil {
			res.ResolvedAt = *m.ResolvedAt
		}
		return res, nil
	}

	positions, err := tx.PositionsForUpdate(ctx, marketID)
	if err != nil {
		return nil, err
	}

	payouts := []model.Payout{}
	total := decimal.Zero
	for _, p := range positions {
		winning := p.Shares(outcome)
		if winning.IsPositive() {
			recipient, err := e.recipient(ctx, tx, p.AccountID)
			if err != nil {
				return nil, err
			}
			if _, err := tx.CreditAccount(ctx, recipient, winning); err != nil {
				return nil, err
			}
			payouts = append(payouts, model.Payout{AccountID: recipient, HolderID: p.AccountID, Amount: winning})
			total = total.Add(winning)
		}
		if p.YesShares.IsZero() && p.NoShares.IsZero() {
			continue
		}
		if err := tx.ZeroPosition(ctx, p.AccountID, marketID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := tx.ResolveMarket(ctx, marketID, outcome, now); err != nil {
		return nil, err
	}
	return &Result{MarketID: marketID, Outcome: outcome, Payouts: payouts, Total: total, ResolvedAt: now}, nil
}

// recipient resolves who gets paid for holderID's shares: the owner if
// one is linked, otherwise the holder.
func (e *Engine) recipient(ctx context.Context, tx store.Tx, holderID string) (string, error) {
	holder, err := tx.AccountForUpdate(ctx, holderID)
	if err != nil {
		return "", err
	}
	if holder.OwnerID == "" {
		return holderID, nil
	}
	owner, err := tx.AccountForUpdate(ctx, holder.OwnerID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return "", err
	}
	if err != nil {
		return "", &model.Error{Kind: model.ErrNotFound, Op: opSettle, AccountID: holderID,
			Msg: "owner " + holder.OwnerID + " of holder not found", Err: err}
	}
	return owner.ID, nil
}
