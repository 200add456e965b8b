// Package ratelimit bounds outbound calls to remote services.
//
// Two flavours exist: window counters (FixedWindow, RedisWindow) which reject
// calls over a cap inside a time window, and Pacer which delays calls to keep
// a steady request rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Acquirer is a fixed window counter keyed by operation name.
type Acquirer interface {
	// TryAcquire increments the counter for key and returns true if the count
	// was below max. When the cap is reached it returns false and leaves the
	// counter untouched.
	TryAcquire(ctx context.Context, key string, max int, window time.Duration) (bool, error)
	// Usage returns the number of acquisitions in the current window.
	Usage(ctx context.Context, key string) (int, error)
}

type windowState struct {
	start  time.Time
	window time.Duration
	count  int
}

func (w *windowState) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.window))
}

// FixedWindow is an in-process Acquirer. A window opens on the first
// acquisition for a key and lasts for the window passed to that call.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*windowState
	now     func() time.Time
}

// NewFixedWindow creates an empty in-process window counter.
func NewFixedWindow() *FixedWindow {
	return &FixedWindow{
		windows: make(map[string]*windowState),
		now:     time.Now,
	}
}

// NewFixedWindowWithClock creates a window counter driven by the given clock.
func NewFixedWindowWithClock(now func() time.Time) *FixedWindow {
	f := NewFixedWindow()
	if now != nil {
		f.now = now
	}
	return f
}

var _ Acquirer = (*FixedWindow)(nil)

// TryAcquire implements Acquirer.
func (f *FixedWindow) TryAcquire(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	state, ok := f.windows[key]
	if !ok || state.expired(now) {
		state = &windowState{start: now, window: window}
		f.windows[key] = state
	}

	if state.count >= max {
		return false, nil
	}
	state.count++
	return true, nil
}

// Usage implements Acquirer.
func (f *FixedWindow) Usage(_ context.Context, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.windows[key]
	if !ok || state.expired(f.now()) {
		return 0, nil
	}
	return state.count, nil
}
