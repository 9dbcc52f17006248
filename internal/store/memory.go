package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/model"
)

type posKey struct{ account, market string }

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions hold the write lock for their whole duration and stage
// their writes in an overlay that is applied only when fn succeeds.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	markets   map[string]*model.Market
	positions map[posKey]*model.Position
	trades    []model.Trade
	treasury  decimal.Decimal
	faults    map[string]error
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		markets:   make(map[string]*model.Market),
		positions: make(map[posKey]*model.Position),
		faults:    make(map[string]error),
	}
}

// FailNext makes the next call of the named Tx method (or "commit") fail
// with err. Used to prove that a failing transaction leaves no trace.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *MemoryStore) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:         s,
		accounts:  make(map[string]*model.Account),
		markets:   make(map[string]*model.Market),
		positions: make(map[posKey]*model.Position),
		treasury:  s.treasury,
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.fault("commit"); err != nil {
		return err
	}

	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for id, m := range tx.markets {
		s.markets[id] = m
	}
	for k, p := range tx.positions {
		s.positions[k] = p
	}
	s.trades = append(s.trades, tx.trades...)
	s.treasury = tx.treasury
	return nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return &model.Error{Kind: model.ErrInvalidState, Op: "store.create_account", AccountID: a.ID, Msg: "account already exists"}
	}
	c := *a
	s.accounts[a.ID] = &c
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, notFound("store.get_account", "account", id)
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return &model.Error{Kind: model.ErrInvalidState, Op: "store.create_market", MarketID: m.ID, Msg: "market already exists"}
	}
	s.markets[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, notFound("store.get_market", "market", id)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ListMarkets(_ context.Context, status model.MarketStatus) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if status != "" && m.Status != status {
			continue
		}
		markets = append(markets, *m.Clone())
	}
	sort.Slice(markets, func(i, j int) bool {
		if !markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		}
		return markets[i].ID < markets[j].ID
	})
	return markets, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, accountID, marketID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.positions[posKey{accountID, marketID}]; ok {
		c := *p
		return &c, nil
	}
	return &model.Position{AccountID: accountID, MarketID: marketID}, nil
}

func (s *MemoryStore) ListPositionsByAccount(_ context.Context, accountID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for k, p := range s.positions {
		if k.account == accountID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MarketID < result[j].MarketID })
	return result, nil
}

func (s *MemoryStore) ListTradesByMarket(_ context.Context, marketID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestTrades(func(t *model.Trade) bool { return t.MarketID == marketID }, limit), nil
}

func (s *MemoryStore) ListTradesByAccount(_ context.Context, accountID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestTrades(func(t *model.Trade) bool { return t.AccountID == accountID }, limit), nil
}

// newestTrades walks the log backwards. Must be called under the lock.
func (s *MemoryStore) newestTrades(match func(*model.Trade) bool, limit int) []model.Trade {
	var result []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if !match(&s.trades[i]) {
			continue
		}
		result = append(result, s.trades[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

func (s *MemoryStore) Treasury(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treasury, nil
}

// memTx stages copies of every row it touches.
type memTx struct {
	s         *MemoryStore
	accounts  map[string]*model.Account
	markets   map[string]*model.Market
	positions map[posKey]*model.Position
	trades    []model.Trade
	treasury  decimal.Decimal
}

func (tx *memTx) account(op, id string) (*model.Account, error) {
	if err := tx.s.fault(op); err != nil {
		return nil, err
	}
	if a, ok := tx.accounts[id]; ok {
		return a, nil
	}
	a, ok := tx.s.accounts[id]
	if !ok {
		return nil, notFound("store."+op, "account", id)
	}
	c := *a
	tx.accounts[id] = &c
	return &c, nil
}

func (tx *memTx) market(op, id string) (*model.Market, error) {
	if err := tx.s.fault(op); err != nil {
		return nil, err
	}
	if m, ok := tx.markets[id]; ok {
		return m, nil
	}
	m, ok := tx.s.markets[id]
	if !ok {
		return nil, notFound("store."+op, "market", id)
	}
	c := m.Clone()
	tx.markets[id] = c
	return c, nil
}

func (tx *memTx) position(k posKey) (*model.Position, bool) {
	if p, ok := tx.positions[k]; ok {
		return p, true
	}
	p, ok := tx.s.positions[k]
	if !ok {
		return nil, false
	}
	c := *p
	tx.positions[k] = &c
	return &c, true
}

func (tx *memTx) AccountForUpdate(_ context.Context, id string) (*model.Account, error) {
	a, err := tx.account("AccountForUpdate", id)
	if err != nil {
		return nil, err
	}
	c := *a
	return &c, nil
}

func (tx *memTx) DebitAccount(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount("store.debit_account", amount); err != nil {
		return decimal.Zero, err
	}
	a, err := tx.account("DebitAccount", id)
	if err != nil {
		return decimal.Zero, err
	}
	if a.Balance.LessThan(amount) {
		return decimal.Zero, &model.Error{Kind: model.ErrInsufficientFunds, Op: "store.debit_account",
			AccountID: id, Amount: amount, Msg: "insufficient balance"}
	}
	a.Balance = a.Balance.Sub(amount)
	return a.Balance, nil
}

func (tx *memTx) CreditAccount(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount("store.credit_account", amount); err != nil {
		return decimal.Zero, err
	}
	a, err := tx.account("CreditAccount", id)
	if err != nil {
		return decimal.Zero, err
	}
	a.Balance = a.Balance.Add(amount)
	return a.Balance, nil
}

func (tx *memTx) SetAccountOwner(_ context.Context, agentID, ownerID string) error {
	a, err := tx.account("SetAccountOwner", agentID)
	if err != nil {
		return err
	}
	if a.OwnerID != "" {
		return &model.Error{Kind: model.ErrInvalidState, Op: "store.set_account_owner",
			AccountID: agentID, Msg: "account already has an owner"}
	}
	a.OwnerID = ownerID
	return nil
}

func (tx *memTx) MarketForUpdate(_ context.Context, id string) (*model.Market, error) {
	m, err := tx.market("MarketForUpdate", id)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (tx *memTx) UpdatePool(_ context.Context, marketID string, expectedVersion int64, next model.Pool) (model.Pool, error) {
	m, err := tx.market("UpdatePool", marketID)
	if err != nil {
		return model.Pool{}, err
	}
	if m.Pool == nil {
		return model.Pool{}, notFound("store.update_pool", "market", marketID)
	}
	if m.Pool.Version != expectedVersion {
		return model.Pool{}, &model.Error{Kind: model.ErrConcurrencyConflict, Op: "store.update_pool",
			MarketID: marketID, Msg: "pool version changed"}
	}
	next.Version = expectedVersion + 1
	*m.Pool = next
	return next, nil
}

func (tx *memTx) ResolveMarket(_ context.Context, marketID string, outcome model.Outcome, at time.Time) error {
	m, err := tx.market("ResolveMarket", marketID)
	if err != nil {
		return err
	}
	if m.Status != model.StatusOpen {
		return &model.Error{Kind: model.ErrConcurrencyConflict, Op: "store.resolve_market",
			MarketID: marketID, Msg: "market is no longer open"}
	}
	m.Status = model.StatusResolved
	m.Outcome = outcome
	m.ResolvedAt = &at
	return nil
}

func (tx *memTx) IncrementPosition(_ context.Context, accountID, marketID string, outcome model.Outcome, shares decimal.Decimal) (*model.Position, error) {
	if err := tx.s.fault("IncrementPosition"); err != nil {
		return nil, err
	}
	if err := checkAmount("store.increment_position", shares); err != nil {
		return nil, err
	}
	k := posKey{accountID, marketID}
	p, ok := tx.position(k)
	if !ok {
		p = &model.Position{AccountID: accountID, MarketID: marketID}
		tx.positions[k] = p
	}
	if outcome == model.OutcomeYes {
		p.YesShares = p.YesShares.Add(shares)
	} else {
		p.NoShares = p.NoShares.Add(shares)
	}
	p.UpdatedAt = time.Now().UTC()
	c := *p
	return &c, nil
}

func (tx *memTx) PositionsForUpdate(_ context.Context, marketID string) ([]model.Position, error) {
	if err := tx.s.fault("PositionsForUpdate"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var result []model.Position
	for k, p := range tx.positions {
		if k.market == marketID {
			seen[k.account] = true
			result = append(result, *p)
		}
	}
	for k, p := range tx.s.positions {
		if k.market == marketID && !seen[k.account] {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

func (tx *memTx) ZeroPosition(_ context.Context, accountID, marketID string) error {
	if err := tx.s.fault("ZeroPosition"); err != nil {
		return err
	}
	p, ok := tx.position(posKey{accountID, marketID})
	if !ok {
		return &model.Error{Kind: model.ErrNotFound, Op: "store.zero_position",
			AccountID: accountID, MarketID: marketID, Msg: "position not found"}
	}
	p.YesShares = decimal.Zero
	p.NoShares = decimal.Zero
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (tx *memTx) AddTreasury(_ context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := tx.s.fault("AddTreasury"); err != nil {
		return decimal.Zero, err
	}
	if err := checkAmount("store.add_treasury", amount); err != nil {
		return decimal.Zero, err
	}
	tx.treasury = tx.treasury.Add(amount)
	return tx.treasury, nil
}

func (tx *memTx) InsertTrade(_ context.Context, t *model.Trade) error {
	if err := tx.s.fault("InsertTrade"); err != nil {
		return err
	}
	tx.trades = append(tx.trades, *t)
	return nil
}

func checkAmount(op string, amount decimal.Decimal) error {
	if !amount.IsInteger() || amount.IsNegative() {
		return &model.Error{Kind: model.ErrInvalidParameter, Op: op, Amount: amount,
			Msg: "amount must be a non-negative whole number of micros"}
	}
	return nil
}
