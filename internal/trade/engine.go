package trade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/events"
	"github.com/atmx/playmarket/internal/fpmm"
	"github.com/atmx/playmarket/internal/lock"
	"github.com/atmx/playmarket/internal/metrics"
	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
)

// Config tunes retry and locking for the engine.
type Config struct {
	MaxTxAttempts int
	LockTTL       time.Duration
	LockWait      time.Duration
}

// DefaultConfig is used for zero fields.
var DefaultConfig = Config{
	MaxTxAttempts: 3,
	LockTTL:       10 * time.Second,
	LockWait:      5 * time.Second,
}

// Engine executes buys against a market's pool. Every trade is one store
// transaction: the account and market are re-read under row locks, the
// quote is computed from that snapshot, and all five writes commit
// together or not at all.
type Engine struct {
	store  store.Store
	locker lock.Locker
	events events.Publisher
	cfg    Config
}

// NewEngine creates a trade engine. A nil locker or publisher is replaced
// by a no-op.
func NewEngine(st store.Store, locker lock.Locker, pub events.Publisher, cfg Config) *Engine {
	if locker == nil {
		locker = lock.Noop{}
	}
	if pub == nil {
		pub = events.Discard{}
	}
	if cfg.MaxTxAttempts <= 0 {
		cfg.MaxTxAttempts = DefaultConfig.MaxTxAttempts
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig.LockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultConfig.LockWait
	}
	return &Engine{store: st, locker: locker, events: pub, cfg: cfg}
}

// Request is one buy. CollateralIn is in micros.
type Request struct {
	Account      model.AccountRef
	MarketID     string
	Outcome      model.Outcome
	CollateralIn decimal.Decimal
}

// Receipt reports exactly what the committed transaction wrote.
type Receipt struct {
	TradeID       string          `json:"trade_id"`
	MarketID      string          `json:"market_id"`
	AccountID     string          `json:"account_id"`
	Outcome       model.Outcome   `json:"outcome"`
	CollateralIn  decimal.Decimal `json:"collateral_in"`
	Fee           decimal.Decimal `json:"fee"`
	NetCollateral decimal.Decimal `json:"net_collateral"`
	SharesOut     decimal.Decimal `json:"shares_out"`
	Balance       decimal.Decimal `json:"balance"`
	Position      model.Position  `json:"position"`
	Pool          model.Pool      `json:"pool"`
	PriceYes      float64         `json:"price_yes"`
	PriceNo       float64         `json:"price_no"`
	CreatedAt     time.Time       `json:"created_at"`
}

const opExecute = "trade.execute"

// Execute runs one trade. Conflicts are retried up to MaxTxAttempts times,
// each attempt re-validating from scratch.
func (e *Engine) Execute(ctx context.Context, req Request) (*Receipt, error) {
	start := time.Now()

	accountID, err := e.validate(req)
	if err != nil {
		return nil, e.reject(err, req.MarketID, req.Account.ID)
	}

	unlock, err := lock.WithTimeout(ctx, e.locker, lock.MarketKey(req.MarketID), e.cfg.LockTTL, e.cfg.LockWait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, e.reject(lockError(opExecute, err), req.MarketID, accountID)
	}
	defer unlock()

	var receipt *Receipt
	attempt := 0
	err = store.Retry(ctx, e.cfg.MaxTxAttempts, opExecute, func() error {
		attempt++
		if attempt > 1 {
			metrics.TxRetries.WithLabelValues(opExecute).Inc()
		}
		return e.store.InTx(ctx, func(tx store.Tx) error {
			r, err := e.apply(ctx, tx, req, accountID)
			receipt = r
			return err
		})
	})
	if err != nil {
		return nil, e.reject(err, req.MarketID, accountID)
	}

	outcome := string(receipt.Outcome)
	metrics.TradesTotal.WithLabelValues(outcome).Inc()
	metrics.TradeLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	metrics.FeesCollected.Add(receipt.Fee.InexactFloat64())
	metrics.CollateralTraded.WithLabelValues(outcome).Add(receipt.CollateralIn.InexactFloat64())

	slog.Info("trade executed",
		"trade_id", receipt.TradeID,
		"market", receipt.MarketID,
		"account", receipt.AccountID,
		"outcome", outcome,
		"collateral_in", receipt.CollateralIn.String(),
		"fee", receipt.Fee.String(),
		"shares_out", receipt.SharesOut.String(),
		"price_yes", receipt.PriceYes,
		"attempts", attempt,
	)

	e.events.Publish(ctx, events.Event{
		Type:      events.TradeExecuted,
		MarketID:  receipt.MarketID,
		AccountID: receipt.AccountID,
		Outcome:   outcome,
		Amount:    micros.FormatCoins(receipt.CollateralIn),
		Shares:    micros.FormatCoins(receipt.SharesOut),
		PriceYes:  receipt.PriceYes,
		PriceNo:   receipt.PriceNo,
		At:        receipt.CreatedAt,
	})
	return receipt, nil
}

func (e *Engine) validate(req Request) (string, error) {
	accountID, err := req.Account.Canonical()
	if err != nil {
		return "", &model.Error{Kind: model.ErrInvalidParameter, Op: opExecute, Msg: "invalid account reference", Err: err}
	}
	if strings.TrimSpace(req.MarketID) == "" {
		return "", model.NewError(model.ErrInvalidParameter, opExecute, "market id is required")
	}
	if !req.Outcome.Valid() {
		return "", model.NewError(model.ErrInvalidParameter, opExecute, "outcome must be YES or NO")
	}
	if err := micros.CheckNonNegative(req.CollateralIn); err != nil {
		return "", &model.Error{Kind: model.ErrInvalidParameter, Op: opExecute,
			Msg: "collateral must be a non-negative whole number of micros", Amount: req.CollateralIn, Err: err}
	}
	return accountID, nil
}

// apply is Validate → Quote → Apply inside one transaction.
func (e *Engine) apply(ctx context.Context, tx store.Tx, req Request, accountID string) (*Receipt, error) {
	acct, err := tx.AccountForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Kind != req.Account.Kind {
		return nil, &model.Error{Kind: model.ErrNotFound, Op: opExecute, AccountID: accountID,
			Msg: strings.ToLower(string(req.Account.Kind)) + " account not found"}
	}

	m, err := tx.MarketForUpdate(ctx, req.MarketID)
	if err != nil {
		return nil, err
	}
	if m.Pool == nil {
		return nil, &model.Error{Kind: model.ErrNotFound, Op: opExecute, MarketID: m.ID, Msg: "market has no pool"}
	}
	if m.Status != model.StatusOpen {
		return nil, &model.Error{Kind: model.ErrInvalidState, Op: opExecute, MarketID: m.ID, Msg: "market not open"}
	}
	if acct.Balance.LessThan(req.CollateralIn) {
		return nil, &model.Error{Kind: model.ErrInsufficientFunds, Op: opExecute, AccountID: accountID,
			Amount: req.CollateralIn, Msg: "insufficient balance"}
	}

	q, err := fpmm.QuoteBuy(*m.Pool, req.Outcome, req.CollateralIn)
	if err != nil {
		return nil, err
	}

	if q.Fee.IsPositive() {
		if _, err := tx.AddTreasury(ctx, q.Fee); err != nil {
			return nil, err
		}
	}
	balance, err := tx.DebitAccount(ctx, accountID, req.CollateralIn)
	if err != nil {
		return nil, err
	}

	next := q.Next
	next.Collateral = m.Pool.Collateral.Add(q.NetCollateral)
	pool, err := tx.UpdatePool(ctx, m.ID, m.Pool.Version, next)
	if err != nil {
		return nil, err
	}

	pos, err := tx.IncrementPosition(ctx, accountID, m.ID, req.Outcome, q.SharesOut)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &model.Trade{
		ID:             uuid.New().String(),
		MarketID:       m.ID,
		AccountID:      accountID,
		Outcome:        req.Outcome,
		CollateralIn:   req.CollateralIn,
		Fee:            q.Fee,
		SharesOut:      q.SharesOut,
		PoolYes:        pool.YesReserve,
		PoolNo:         pool.NoReserve,
		PoolCollateral: pool.Collateral,
		CreatedAt:      now,
	}
	if err := tx.InsertTrade(ctx, t); err != nil {
		return nil, err
	}

	yes := fpmm.PriceYes(pool)
	return &Receipt{
		TradeID:       t.ID,
		MarketID:      m.ID,
		AccountID:     accountID,
		Outcome:       req.Outcome,
		CollateralIn:  req.CollateralIn,
		Fee:           q.Fee,
		NetCollateral: q.NetCollateral,
		SharesOut:     q.SharesOut,
		Balance:       balance,
		Position:      *pos,
		Pool:          pool,
		PriceYes:      yes,
		PriceNo:       1 - yes,
		CreatedAt:     now,
	}, nil
}

func (e *Engine) reject(err error, marketID, accountID string) error {
	err = model.Wrap(err, opExecute, marketID, accountID)
	metrics.TradeRejections.WithLabelValues(kindLabel(err)).Inc()
	slog.Debug("trade rejected", "market", marketID, "account", accountID, "err", err)
	return err
}

// Preview is a read-only quote with prices before and after the buy.
type Preview struct {
	MarketID       string          `json:"market_id"`
	Outcome        model.Outcome   `json:"outcome"`
	CollateralIn   decimal.Decimal `json:"collateral_in"`
	Fee            decimal.Decimal `json:"fee"`
	NetCollateral  decimal.Decimal `json:"net_collateral"`
	SharesOut      decimal.Decimal `json:"shares_out"`
	PriceYesBefore float64         `json:"price_yes_before"`
	PriceNoBefore  float64         `json:"price_no_before"`
	PriceYesAfter  float64         `json:"price_yes_after"`
	PriceNoAfter   float64         `json:"price_no_after"`
}

// Quote prices a buy without writing anything. The result can differ from
// a later Execute if other trades land in between.
func (e *Engine) Quote(ctx context.Context, marketID string, outcome model.Outcome, collateralIn decimal.Decimal) (*Preview, error) {
	const op = "trade.quote"
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, model.Wrap(err, op, marketID, "")
	}
	if m.Pool == nil {
		return nil, &model.Error{Kind: model.ErrNotFound, Op: op, MarketID: marketID, Msg: "market has no pool"}
	}
	if m.Status != model.StatusOpen {
		return nil, &model.Error{Kind: model.ErrInvalidState, Op: op, MarketID: marketID, Msg: "market not open"}
	}
	q, err := fpmm.QuoteBuy(*m.Pool, outcome, collateralIn)
	if err != nil {
		return nil, model.Wrap(err, op, marketID, "")
	}
	yesBefore, yesAfter := fpmm.PriceYes(*m.Pool), fpmm.PriceYes(q.Next)
	return &Preview{
		MarketID:       marketID,
		Outcome:        outcome,
		CollateralIn:   collateralIn,
		Fee:            q.Fee,
		NetCollateral:  q.NetCollateral,
		SharesOut:      q.SharesOut,
		PriceYesBefore: yesBefore,
		PriceNoBefore:  1 - yesBefore,
		PriceYesAfter:  yesAfter,
		PriceNoAfter:   1 - yesAfter,
	}, nil
}

// MarketParams describes a new market. Liquidity is in micros and seeds
// both reserves.
type MarketParams struct {
	Title       string
	Description string
	Liquidity   decimal.Decimal
	FeeBps      int
}

// CreateMarket opens a market with a balanced pool.
func (e *Engine) CreateMarket(ctx context.Context, p MarketParams) (*model.Market, error) {
	const op = "trade.create_market"
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, model.NewError(model.ErrInvalidParameter, op, "title is required")
	}
	pool, err := fpmm.SeedPool(p.Liquidity, p.FeeBps)
	if err != nil {
		return nil, model.Wrap(err, op, "", "")
	}

	m := &model.Market{
		ID:          uuid.New().String(),
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Status:      model.StatusOpen,
		Outcome:     model.OutcomeUnset,
		Pool:        &pool,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateMarket(ctx, m); err != nil {
		return nil, model.Wrap(err, op, m.ID, "")
	}
	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"id", m.ID,
		"title", m.Title,
		"liquidity", pool.YesReserve.String(),
		"fee_bps", pool.FeeBps,
	)
	e.events.Publish(ctx, events.Event{
		Type:     events.MarketCreated,
		MarketID: m.ID,
		PriceYes: 0.5,
		PriceNo:  0.5,
		At:       m.CreatedAt,
	})
	return m, nil
}

// lockError reports a timed-out wait as a conflict and anything else, such
// as an unreachable Redis, as a persistence failure.
func lockError(op string, err error) error {
	if errors.Is(err, lock.ErrLockHeld) {
		return &model.Error{Kind: model.ErrConcurrencyConflict, Op: op, Msg: "market is busy", Err: err}
	}
	return &model.Error{Kind: model.ErrPersistence, Op: op, Msg: "lock unavailable", Err: err}
}

// kindLabel turns an error into a short metric label.
func kindLabel(err error) string {
	switch k := model.KindOf(err); {
	case errors.Is(k, model.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(k, model.ErrNotFound):
		return "not_found"
	case errors.Is(k, model.ErrInvalidState):
		return "invalid_state"
	case errors.Is(k, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(k, model.ErrDegenerateTrade):
		return "degenerate_trade"
	case errors.Is(k, model.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "persistence"
	}
}
