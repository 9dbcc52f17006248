package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/model"
)

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func seed(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateAccount(ctx, &model.Account{ID: "alice", Kind: model.KindUser, Balance: d(1_000)}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateMarket(ctx, &model.Market{
		ID: "m1", Title: "Will it rain?", Status: model.StatusOpen, Outcome: model.OutcomeUnset,
		Pool: &model.Pool{YesReserve: d(1_000_000), NoReserve: d(1_000_000), FeeBps: 100},
	}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMemoryStore_CommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	s := seed(t)

	err := s.InTx(ctx, func(tx Tx) error {
		bal, err := tx.DebitAccount(ctx, "alice", d(400))
		if err != nil {
			return err
		}
		if !bal.Equal(d(600)) {
			t.Errorf("expected balance 600 inside tx, got %s", bal)
		}
		if _, err := tx.IncrementPosition(ctx, "alice", "m1", model.OutcomeYes, d(10)); err != nil {
			return err
		}
		if _, err := tx.AddTreasury(ctx, d(4)); err != nil {
			return err
		}
		return tx.InsertTrade(ctx, &model.Trade{ID: "t1", MarketID: "m1", AccountID: "alice"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := s.GetAccount(ctx, "alice")
	if !a.Balance.Equal(d(600)) {
		t.Errorf("expected committed balance 600, got %s", a.Balance)
	}
	p, _ := s.GetPosition(ctx, "alice", "m1")
	if !p.YesShares.Equal(d(10)) {
		t.Errorf("expected 10 yes shares, got %s", p.YesShares)
	}
	tr, _ := s.Treasury(ctx)
	if !tr.Equal(d(4)) {
		t.Errorf("expected treasury 4, got %s", tr)
	}
	trades, _ := s.ListTradesByMarket(ctx, "m1", 0)
	if len(trades) != 1 {
		t.Errorf("expected 1 trade, got %d", len(trades))
	}
}

func TestMemoryStore_FailedTxLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.DebitAccount(ctx, "alice", d(400)); err != nil {
			return err
		}
		if _, err := tx.IncrementPosition(ctx, "alice", "m1", model.OutcomeNo, d(10)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	a, _ := s.GetAccount(ctx, "alice")
	if !a.Balance.Equal(d(1_000)) {
		t.Errorf("balance changed after rollback: %s", a.Balance)
	}
	p, _ := s.GetPosition(ctx, "alice", "m1")
	if !p.NoShares.IsZero() {
		t.Errorf("position changed after rollback: %s", p.NoShares)
	}
}

func TestMemoryStore_FailNext(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	injected := &model.Error{Kind: model.ErrPersistence, Msg: "disk full"}
	s.FailNext("InsertTrade", injected)

	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.DebitAccount(ctx, "alice", d(1)); err != nil {
			return err
		}
		return tx.InsertTrade(ctx, &model.Trade{ID: "t1", MarketID: "m1"})
	})
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	a, _ := s.GetAccount(ctx, "alice")
	if !a.Balance.Equal(d(1_000)) {
		t.Errorf("balance changed: %s", a.Balance)
	}

	// the fault is one-shot
	if err := s.InTx(ctx, func(tx Tx) error {
		return tx.InsertTrade(ctx, &model.Trade{ID: "t2", MarketID: "m1"})
	}); err != nil {
		t.Errorf("second insert should succeed, got %v", err)
	}
}

func TestMemoryStore_DebitInsufficient(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.DebitAccount(ctx, "alice", d(1_001))
		return err
	})
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	if _, err := s.GetMarket(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetMarket: expected ErrNotFound, got %v", err)
	}
	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.AccountForUpdate(ctx, "nobody")
		return err
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("AccountForUpdate: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdatePoolVersion(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	next := model.Pool{YesReserve: d(900), NoReserve: d(1_100), FeeBps: 100}

	err := s.InTx(ctx, func(tx Tx) error {
		stored, err := tx.UpdatePool(ctx, "m1", 0, next)
		if err != nil {
			return err
		}
		if stored.Version != 1 {
			t.Errorf("expected version 1, got %d", stored.Version)
		}
		_, err = tx.UpdatePool(ctx, "m1", 0, next)
		return err
	})
	if !errors.Is(err, model.ErrConcurrencyConflict) {
		t.Errorf("expected conflict on stale version, got %v", err)
	}
	m, _ := s.GetMarket(ctx, "m1")
	if m.Pool.Version != 0 {
		t.Errorf("rolled back pool should keep version 0, got %d", m.Pool.Version)
	}
}

func TestMemoryStore_ResolveOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	now := time.Now()
	if err := s.InTx(ctx, func(tx Tx) error {
		return tx.ResolveMarket(ctx, "m1", model.OutcomeYes, now)
	}); err != nil {
		t.Fatal(err)
	}
	err := s.InTx(ctx, func(tx Tx) error {
		return tx.ResolveMarket(ctx, "m1", model.OutcomeNo, now)
	})
	if !errors.Is(err, model.ErrConcurrencyConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	m, _ := s.GetMarket(ctx, "m1")
	if m.Status != model.StatusResolved || m.Outcome != model.OutcomeYes {
		t.Errorf("unexpected market state %s/%s", m.Status, m.Outcome)
	}
}

func TestMemoryStore_PositionsForUpdateOrdered(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	for _, id := range []string{"zed", "bob", "amy"} {
		_ = s.CreateAccount(ctx, &model.Account{ID: id, Kind: model.KindAgent})
	}
	_ = s.InTx(ctx, func(tx Tx) error {
		for _, id := range []string{"zed", "bob"} {
			if _, err := tx.IncrementPosition(ctx, id, "m1", model.OutcomeYes, d(1)); err != nil {
				return err
			}
		}
		return nil
	})
	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.IncrementPosition(ctx, "amy", "m1", model.OutcomeNo, d(1)); err != nil {
			return err
		}
		ps, err := tx.PositionsForUpdate(ctx, "m1")
		if err != nil {
			return err
		}
		var ids []string
		for _, p := range ps {
			ids = append(ids, p.AccountID)
		}
		if len(ids) != 3 || ids[0] != "amy" || ids[1] != "bob" || ids[2] != "zed" {
			t.Errorf("unexpected order %v", ids)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStore_SetAccountOwnerOnce(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	_ = s.CreateAccount(ctx, &model.Account{ID: "bot", Kind: model.KindAgent})

	if err := s.InTx(ctx, func(tx Tx) error { return tx.SetAccountOwner(ctx, "bot", "alice") }); err != nil {
		t.Fatal(err)
	}
	err := s.InTx(ctx, func(tx Tx) error { return tx.SetAccountOwner(ctx, "bot", "alice") })
	if !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestMemoryStore_TradesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	for _, id := range []string{"t1", "t2", "t3"} {
		id := id
		_ = s.InTx(ctx, func(tx Tx) error {
			return tx.InsertTrade(ctx, &model.Trade{ID: id, MarketID: "m1", AccountID: "alice"})
		})
	}
	trades, _ := s.ListTradesByMarket(ctx, "m1", 2)
	if len(trades) != 2 || trades[0].ID != "t3" || trades[1].ID != "t2" {
		t.Errorf("unexpected trades %+v", trades)
	}
	byAcct, _ := s.ListTradesByAccount(ctx, "alice", 0)
	if len(byAcct) != 3 {
		t.Errorf("expected 3 trades, got %d", len(byAcct))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	m, _ := s.GetMarket(ctx, "m1")
	m.Pool.YesReserve = d(1)
	again, _ := s.GetMarket(ctx, "m1")
	if !again.Pool.YesReserve.Equal(d(1_000_000)) {
		t.Error("mutating a returned market changed stored state")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	conflict := &model.Error{Kind: model.ErrConcurrencyConflict}

	calls := 0
	err := Retry(ctx, 3, "test", func() error {
		calls++
		if calls < 3 {
			return conflict
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 2, "test", func() error { calls++; return conflict })
	if !errors.Is(err, model.ErrConcurrencyConflict) || calls != 2 {
		t.Errorf("expected exhausted conflict after 2 calls, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 5, "test", func() error { calls++; return model.ErrInsufficientFunds })
	if !errors.Is(err, model.ErrInsufficientFunds) || calls != 1 {
		t.Errorf("non-conflict errors must not retry, got err=%v calls=%d", err, calls)
	}
}

func TestBackoff(t *testing.T) {
	if Backoff(0) != retryBaseDelay {
		t.Errorf("Backoff(0) = %s", Backoff(0))
	}
	if Backoff(1) != 2*retryBaseDelay {
		t.Errorf("Backoff(1) = %s", Backoff(1))
	}
	if Backoff(40) != retryMaxDelay {
		t.Errorf("Backoff(40) = %s", Backoff(40))
	}
}
