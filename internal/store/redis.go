package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Transactions always run against the primary; every key a committed
// transaction touched is invalidated afterwards, and the next read
// re-populates it.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Transactions (primary, then invalidate) ---

func (s *CachedStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var touched []string
	err := s.primary.InTx(ctx, func(tx Tx) error {
		// Reset on every attempt so a rolled back attempt leaves nothing queued.
		touched = touched[:0]
		return fn(&recordingTx{Tx: tx, touched: &touched})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, touched...)
	return nil
}

// --- Write-through (write to primary, populate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cache(ctx, accountKey(a.ID), a)
	return nil
}

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cache(ctx, marketKey(m.ID), m)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	if s.lookup(ctx, accountKey(id), &a) {
		return &a, nil
	}
	fresh, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, accountKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	if s.lookup(ctx, marketKey(id), &m) {
		return &m, nil
	}
	fresh, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, marketKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) ListPositionsByAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	var positions []model.Position
	if s.lookup(ctx, positionsKey(accountID), &positions) {
		return positions, nil
	}
	positions, err := s.primary.ListPositionsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionsKey(accountID), positions)
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context, status model.MarketStatus) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx, status)
}

func (s *CachedStore) GetPosition(ctx context.Context, accountID, marketID string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, accountID, marketID)
}

func (s *CachedStore) ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTradesByMarket(ctx, marketID, limit)
}

func (s *CachedStore) ListTradesByAccount(ctx context.Context, accountID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTradesByAccount(ctx, accountID, limit)
}

func (s *CachedStore) Treasury(ctx context.Context) (decimal.Decimal, error) {
	return s.primary.Treasury(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		slog.Debug("cache set failed", "key", key, "err", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		// The TTL bounds how long a stale entry can survive.
		slog.Warn("cache invalidate failed", "keys", keys, "err", err)
	}
}

func marketKey(id string) string     { return fmt.Sprintf("market:%s", id) }
func accountKey(id string) string    { return fmt.Sprintf("account:%s", id) }
func positionsKey(aid string) string { return fmt.Sprintf("positions:%s", aid) }

// recordingTx notes the cache keys each write affects.
type recordingTx struct {
	Tx
	touched *[]string
}

func (t *recordingTx) touch(keys ...string) {
	*t.touched = append(*t.touched, keys...)
}

func (t *recordingTx) DebitAccount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	t.touch(accountKey(id))
	return t.Tx.DebitAccount(ctx, id, amount)
}

func (t *recordingTx) CreditAccount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	t.touch(accountKey(id))
	return t.Tx.CreditAccount(ctx, id, amount)
}

func (t *recordingTx) SetAccountOwner(ctx context.Context, agentID, ownerID string) error {
	t.touch(accountKey(agentID))
	return t.Tx.SetAccountOwner(ctx, agentID, ownerID)
}

func (t *recordingTx) UpdatePool(ctx context.Context, marketID string, expectedVersion int64, next model.Pool) (model.Pool, error) {
	t.touch(marketKey(marketID))
	return t.Tx.UpdatePool(ctx, marketID, expectedVersion, next)
}

func (t *recordingTx) ResolveMarket(ctx context.Context, marketID string, outcome model.Outcome, at time.Time) error {
	t.touch(marketKey(marketID))
	return t.Tx.ResolveMarket(ctx, marketID, outcome, at)
}

func (t *recordingTx) IncrementPosition(ctx context.Context, accountID, marketID string, outcome model.Outcome, shares decimal.Decimal) (*model.Position, error) {
	t.touch(positionsKey(accountID))
	return t.Tx.IncrementPosition(ctx, accountID, marketID, outcome, shares)
}

func (t *recordingTx) ZeroPosition(ctx context.Context, accountID, marketID string) error {
	t.touch(positionsKey(accountID))
	return t.Tx.ZeroPosition(ctx, accountID, marketID)
}
