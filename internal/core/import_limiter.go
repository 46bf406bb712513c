package core

// Imports write to the store one row at a time. Two imports at once would
// interleave their writes and make the "exists" decision of one batch stale
// for the other, so the default is a single slot.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when no import slot frees up in time.
var ErrTooManyImports = errors.New("too many imports in progress, please try again later")

// DefaultMaxConcurrentImports is the default number of import slots.
const DefaultMaxConcurrentImports = 1

// DefaultMaxWaitTime is how long Acquire waits for a slot.
const DefaultMaxWaitTime = 30 * time.Second

// ImportLimiter hands out a fixed number of import slots.
type ImportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu   sync.Mutex
	busy int
	idle chan struct{} // closed while busy == 0
}

// NewImportLimiter creates a limiter with maxConcurrent slots. Values below
// one use the defaults.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	idle := make(chan struct{})
	close(idle)
	return &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire takes a slot, waiting at most the configured time. Every
// successful Acquire must be paired with Release.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyImports
	}

	l.mu.Lock()
	if l.busy == 0 {
		l.idle = make(chan struct{})
	}
	l.busy++
	l.mu.Unlock()
	return nil
}

// Release returns a slot.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.busy--
	if l.busy == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
	<-l.slots
}

// ActiveCount returns the number of imports holding a slot.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// WaitForDrain blocks until no import holds a slot or ctx is done. Shutdown
// uses it so a batch is not cut off between rows.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
