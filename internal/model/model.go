// Package model defines the core domain types shared across the ledger.
// All monetary and share values are integer micros held in shopspring/decimal
// (see internal/micros), never float64.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes   Outcome = "YES"
	OutcomeNo    Outcome = "NO"
	OutcomeUnset Outcome = "UNSET"
)

// Valid reports whether o is a tradable side (YES or NO).
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "OPEN"
	StatusResolved MarketStatus = "RESOLVED"
)

// AccountKind distinguishes autonomous agents from human users.
type AccountKind string

const (
	KindAgent AccountKind = "AGENT"
	KindUser  AccountKind = "USER"
)

// Valid reports whether k is one of the two known account kinds.
func (k AccountKind) Valid() bool {
	return k == KindAgent || k == KindUser
}

// Pool is the constant-product liquidity state of one market.
// Reserves are strictly positive while the market exists.
type Pool struct {
	YesReserve decimal.Decimal `json:"yes_reserve" db:"yes_reserve"`
	NoReserve  decimal.Decimal `json:"no_reserve" db:"no_reserve"`
	Collateral decimal.Decimal `json:"collateral" db:"collateral"` // net collateral paid in
	FeeBps     int             `json:"fee_bps" db:"fee_bps"`
	Version    int64           `json:"version" db:"version"` // bumped on every replace
}

// K returns the constant product yes * no.
func (p Pool) K() decimal.Decimal {
	return p.YesReserve.Mul(p.NoReserve)
}

// Market is a binary prediction market and its pool.
type Market struct {
	ID          string       `json:"id" db:"id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Status      MarketStatus `json:"status" db:"status"`
	Outcome     Outcome      `json:"outcome" db:"outcome"` // meaningful only when RESOLVED
	Pool        *Pool        `json:"pool,omitempty"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Clone returns a deep copy, so callers can't mutate stored state.
func (m *Market) Clone() *Market {
	c := *m
	if m.Pool != nil {
		p := *m.Pool
		c.Pool = &p
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// Account holds a spendable balance. An agent may be owned by a user, in
// which case settlement proceeds are paid to the owner.
type Account struct {
	ID          string          `json:"id" db:"id"`
	Kind        AccountKind     `json:"kind" db:"kind"`
	OwnerID     string          `json:"owner_id,omitempty" db:"owner_id"`
	DisplayName string          `json:"display_name" db:"display_name"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AccountRef names the principal behind a request. It has exactly two
// cases, agent and user, and resolves to one canonical account id.
type AccountRef struct {
	Kind AccountKind `json:"kind"`
	ID   string      `json:"id"`
}

// AgentRef refers to an agent account.
func AgentRef(id string) AccountRef { return AccountRef{Kind: KindAgent, ID: id} }

// UserRef refers to a user account.
func UserRef(id string) AccountRef { return AccountRef{Kind: KindUser, ID: id} }

// Canonical validates the reference and returns the account id the ledger
// keys everything on.
func (r AccountRef) Canonical() (string, error) {
	if !r.Kind.Valid() {
		return "", fmt.Errorf("unknown account kind %q", r.Kind)
	}
	if r.ID == "" {
		return "", fmt.Errorf("empty %s account id", r.Kind)
	}
	return r.ID, nil
}

// Position is one account's running share holdings in one market.
// Settlement zeroes it; it is never deleted.
type Position struct {
	AccountID string          `json:"account_id" db:"account_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	YesShares decimal.Decimal `json:"yes_shares" db:"yes_shares"`
	NoShares  decimal.Decimal `json:"no_shares" db:"no_shares"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Shares returns the holding on one side.
func (p Position) Shares(o Outcome) decimal.Decimal {
	if o == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// Trade is an immutable record of one executed buy.
// Once created, these are never modified or deleted.
type Trade struct {
	ID             string          `json:"id" db:"id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	AccountID      string          `json:"account_id" db:"account_id"`
	Outcome        Outcome         `json:"side" db:"side"`
	CollateralIn   decimal.Decimal `json:"collateral_in" db:"collateral_in"`
	Fee            decimal.Decimal `json:"fee" db:"fee"`
	SharesOut      decimal.Decimal `json:"shares_out" db:"shares_out"`
	PoolYes        decimal.Decimal `json:"pool_yes" db:"pool_yes"` // post-trade snapshot
	PoolNo         decimal.Decimal `json:"pool_no" db:"pool_no"`
	PoolCollateral decimal.Decimal `json:"pool_collateral" db:"pool_collateral"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Payout is one settlement credit. HolderID held the position; AccountID
// received the money (the holder's owner when one is linked).
type Payout struct {
	AccountID string          `json:"account_id"`
	HolderID  string          `json:"holder_id"`
	Amount    decimal.Decimal `json:"amount"`
}
