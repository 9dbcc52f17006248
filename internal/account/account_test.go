package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
)

func newService() (*Service, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	return NewService(ms, micros.FromCoins(100), 3), ms
}

func TestRegister(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	a, err := svc.Register(ctx, model.KindAgent, "  weather-bot ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == "" || a.DisplayName != "weather-bot" || a.Kind != model.KindAgent {
		t.Errorf("unexpected account %+v", a)
	}
	if !a.Balance.Equal(micros.FromCoins(100)) {
		t.Errorf("expected starting balance 100 coins, got %s", a.Balance)
	}

	got, err := svc.Get(ctx, a.ID)
	if err != nil || got.ID != a.ID {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestRegister_Invalid(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "ROBOT", "x"); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("bad kind: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := svc.Register(ctx, model.KindUser, "   "); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("blank name: expected ErrInvalidParameter, got %v", err)
	}
}

func TestClaim(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	agent, _ := svc.Register(ctx, model.KindAgent, "bot")
	user, _ := svc.Register(ctx, model.KindUser, "alice")

	claimed, err := svc.Claim(ctx, agent.ID, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed.OwnerID != user.ID {
		t.Errorf("expected owner %s, got %q", user.ID, claimed.OwnerID)
	}
	stored, _ := svc.Get(ctx, agent.ID)
	if stored.OwnerID != user.ID {
		t.Errorf("owner not persisted: %+v", stored)
	}

	other, _ := svc.Register(ctx, model.KindUser, "bob")
	if _, err := svc.Claim(ctx, agent.ID, other.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("second claim: expected ErrInvalidState, got %v", err)
	}
}

func TestClaim_Rules(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	agent, _ := svc.Register(ctx, model.KindAgent, "bot")
	agent2, _ := svc.Register(ctx, model.KindAgent, "bot2")
	user, _ := svc.Register(ctx, model.KindUser, "alice")

	tests := []struct {
		name         string
		agent, owner string
		want         error
	}{
		{"owner is an agent", agent.ID, agent2.ID, model.ErrInvalidParameter},
		{"claiming a user", user.ID, user.ID, model.ErrInvalidParameter},
		{"missing agent", "nope", user.ID, model.ErrNotFound},
		{"missing owner", agent.ID, "nope", model.ErrNotFound},
		{"empty ids", "", "", model.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Claim(ctx, tt.agent, tt.owner); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	stored, _ := svc.Get(ctx, agent.ID)
	if stored.OwnerID != "" {
		t.Errorf("failed claims must not link an owner, got %q", stored.OwnerID)
	}
}

func TestDeposit(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	a, _ := svc.Register(ctx, model.KindUser, "alice")

	bal, err := svc.Deposit(ctx, a.ID, micros.FromCoins(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bal.Equal(micros.FromCoins(105)) {
		t.Errorf("expected 105 coins, got %s", bal)
	}

	for _, amt := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-1), decimal.RequireFromString("0.5")} {
		if _, err := svc.Deposit(ctx, a.ID, amt); !errors.Is(err, model.ErrInvalidParameter) {
			t.Errorf("deposit %s: expected ErrInvalidParameter, got %v", amt, err)
		}
	}
	if _, err := svc.Deposit(ctx, "nobody", decimal.NewFromInt(1)); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHoldings(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	a, _ := svc.Register(ctx, model.KindUser, "alice")

	h, err := svc.Holdings(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Account.ID != a.ID || h.Positions == nil || len(h.Positions) != 0 {
		t.Errorf("unexpected holdings %+v", h)
	}
}
