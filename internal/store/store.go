// Package store defines the persistence interface for the ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and local runs).
//
// Everything that must be atomic goes through InTx. Reads outside a
// transaction are snapshots and may be stale by the time they are used;
// the engines never base a mutation on them.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/model"
)

// HouseAccountID is the id of the treasury row that collects trading fees.
const HouseAccountID = "house"

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// InTx runs fn inside one atomic transaction. If fn returns an error,
	// nothing it wrote is kept. Conflicts surface as
	// model.ErrConcurrencyConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Accounts ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount retrieves an account by its ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// --- Markets ---

	// CreateMarket persists a new market together with its pool.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market and its pool.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns markets with the given status, newest first.
	// An empty status lists all markets.
	ListMarkets(ctx context.Context, status model.MarketStatus) ([]model.Market, error)

	// --- Positions ---

	// GetPosition returns one holding. A missing position is a zero
	// position, not an error.
	GetPosition(ctx context.Context, accountID, marketID string) (*model.Position, error)

	// ListPositionsByAccount returns every position an account holds.
	ListPositionsByAccount(ctx context.Context, accountID string) ([]model.Position, error)

	// --- Immutable trade log ---

	// ListTradesByMarket returns a market's trades, newest first.
	// A limit <= 0 returns all of them.
	ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error)

	// ListTradesByAccount returns an account's trades, newest first.
	ListTradesByAccount(ctx context.Context, accountID string, limit int) ([]model.Trade, error)

	// Treasury returns the fees collected so far.
	Treasury(ctx context.Context) (decimal.Decimal, error)
}

// Tx is the set of operations available inside InTx. Every method that
// reads "ForUpdate" holds the row until the transaction ends.
type Tx interface {
	// AccountForUpdate reads and locks an account.
	AccountForUpdate(ctx context.Context, id string) (*model.Account, error)

	// DebitAccount subtracts amount if the balance covers it and returns
	// the new balance. Otherwise it fails with model.ErrInsufficientFunds.
	DebitAccount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)

	// CreditAccount adds amount and returns the new balance.
	CreditAccount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)

	// SetAccountOwner links an agent to its owner. An agent that already
	// has an owner fails with model.ErrInvalidState.
	SetAccountOwner(ctx context.Context, agentID, ownerID string) error

	// MarketForUpdate reads and locks a market and its pool.
	MarketForUpdate(ctx context.Context, id string) (*model.Market, error)

	// UpdatePool replaces the pool if its version still equals
	// expectedVersion, and returns the stored pool with its new version.
	UpdatePool(ctx context.Context, marketID string, expectedVersion int64, next model.Pool) (model.Pool, error)

	// ResolveMarket flips an OPEN market to RESOLVED with outcome.
	ResolveMarket(ctx context.Context, marketID string, outcome model.Outcome, at time.Time) error

	// IncrementPosition adds shares to one side, creating the position if
	// it does not exist, and returns the updated totals.
	IncrementPosition(ctx context.Context, accountID, marketID string, outcome model.Outcome, shares decimal.Decimal) (*model.Position, error)

	// PositionsForUpdate locks every position of a market, ordered by
	// account id.
	PositionsForUpdate(ctx context.Context, marketID string) ([]model.Position, error)

	// ZeroPosition clears both sides of a position.
	ZeroPosition(ctx context.Context, accountID, marketID string) error

	// AddTreasury credits the house account and returns its new balance.
	AddTreasury(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error
}

func notFound(op, what, id string) error {
	e := &model.Error{Kind: model.ErrNotFound, Op: op, Msg: what + " not found"}
	switch what {
	case "market":
		e.MarketID = id
	case "account":
		e.AccountID = id
	}
	return e
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedStore)(nil)
)
