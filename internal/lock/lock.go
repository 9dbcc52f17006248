// Package lock serializes work per market. The in-process Local locker is
// enough for a single server; Redis is used when several instances share
// one database. Neither replaces the store's row locks; they only keep
// contending writers from piling into the database at once.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld is returned when the wait for a lock times out before the
// holder lets go.
var ErrLockHeld = errors.New("lock: lock is held by another party")

// waitErr reports why a wait on ctx ended. Only a deadline counts as
// contention; a cancelled caller gets context.Canceled back unchanged.
func waitErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrLockHeld, err)
	}
	return err
}

// Locker acquires named locks. The returned release function is safe to
// call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Local is a keyed mutex for a single process. The ttl is ignored.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Acquire blocks until key is free or ctx is done. A deadline yields
// ErrLockHeld; cancellation yields ctx.Err().
func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, waitErr(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Noop never blocks. Used by tools that run a single operation.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// WithTimeout acquires key, giving up after wait.
func WithTimeout(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (func(), error) {
	if wait <= 0 {
		return l.Acquire(ctx, key, ttl)
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return l.Acquire(wctx, key, ttl)
}

// MarketKey is the lock key that trades and settlement of one market share.
func MarketKey(marketID string) string {
	return "market:" + marketID
}
