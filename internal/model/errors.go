package model

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Error kinds. Every failure leaving the ledger matches exactly one of
// these with errors.Is.
var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDegenerateTrade     = errors.New("degenerate trade")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrPersistence         = errors.New("persistence failure")
)

var kinds = []error{
	ErrInvalidParameter,
	ErrNotFound,
	ErrInvalidState,
	ErrInsufficientFunds,
	ErrDegenerateTrade,
	ErrConcurrencyConflict,
	ErrPersistence,
}

// Error carries a kind plus the context a caller needs to decide between
// retry and abort.
type Error struct {
	Kind      error
	Op        string
	MarketID  string
	AccountID string
	Amount    decimal.Decimal
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.MarketID != "" {
		b.WriteString(" market=")
		b.WriteString(e.MarketID)
	}
	if e.AccountID != "" {
		b.WriteString(" account=")
		b.WriteString(e.AccountID)
	}
	if !e.Amount.IsZero() {
		b.WriteString(" amount=")
		b.WriteString(e.Amount.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewError builds an *Error of the given kind.
func NewError(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// KindOf maps err onto the taxonomy. Errors that match no kind are treated
// as persistence failures. A nil error has no kind.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrPersistence
}

// Retryable reports whether the failed operation left no trace and may be
// attempted again as-is. A caller that cancelled its own context is not
// retried.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	k := KindOf(err)
	return k == ErrConcurrencyConflict || k == ErrPersistence
}

// Wrap attaches op and identifiers to err, keeping an existing *Error's kind
// and filling in only the context it is missing.
func Wrap(err error, op, marketID, accountID string) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		c := *me
		if c.Op == "" {
			c.Op = op
		}
		if c.MarketID == "" {
			c.MarketID = marketID
		}
		if c.AccountID == "" {
			c.AccountID = accountID
		}
		return &c
	}
	return &Error{Kind: KindOf(err), Op: op, MarketID: marketID, AccountID: accountID, Err: err}
}
