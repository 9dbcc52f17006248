// Package events carries post-commit notifications (trades, resolutions,
// new markets) to live subscribers. Delivery is best effort: a dropped
// event never affects the ledger.
package events

import (
	"context"
	"sync"
	"time"
)

// Type names an event.
type Type string

const (
	TradeExecuted  Type = "trade_executed"
	MarketResolved Type = "market_resolved"
	MarketCreated  Type = "market_created"
)

// Event is the JSON message pushed to subscribers. Amounts are coin
// strings so clients never see raw micros.
type Event struct {
	Type      Type      `json:"type"`
	MarketID  string    `json:"market_id"`
	AccountID string    `json:"account_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Shares    string    `json:"shares,omitempty"`
	PriceYes  float64   `json:"price_yes"`
	PriceNo   float64   `json:"price_no"`
	Payouts   int       `json:"payouts,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher accepts events. Implementations must not block the caller for
// long; the engines publish after their transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout publishes to every publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		p.Publish(ctx, e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
