// Package ledger owns the deferral counters. Session deferrals live in
// memory for one process; quit deferrals persist per enforcement timeline
// and survive restarts. The ledger is the only writer of either count.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/nudge-project/nudge/pkg/clock"
	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/model"
)

// DefaultBackoff bounds persistence retries to four attempts spread over
// roughly 350ms.
var DefaultBackoff = wait.Backoff{
	Duration: 50 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    4,
}

// Options tunes a Ledger.
type Options struct {
	// Backoff bounds RecordQuitDeferral retries. Zero Steps uses DefaultBackoff.
	Backoff wait.Backoff
	// Clock stamps UpdatedAt. Nil uses the real clock.
	Clock clock.Clock
	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Ledger tracks deferral counts for one timeline.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	timeline string
	opts     Options

	session       int
	quit          int
	deferredUntil time.Time
	degraded      error
}

// Open loads the persisted quit count for timeline. An unreadable record
// does not fail Open: the ledger comes up degraded, shows zero quit
// deferrals and refuses to record new ones until Reset.
func Open(store Store, timeline string, opts Options) (*Ledger, error) {
	if opts.Backoff.Steps == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	l := &Ledger{store: store, timeline: timeline, opts: opts}
	if _, err := l.Load(); err != nil && !errors.Is(err, errclass.ErrLedgerCorrupt) {
		return nil, err
	}
	return l, nil
}

// Timeline returns the timeline this ledger counts for.
func (l *Ledger) Timeline() string { return l.timeline }

// Degraded returns the corruption error that disabled persistence, if any.
func (l *Ledger) Degraded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// Load re-reads the quit count from the store, picking up increments made
// by other processes.
func (l *Ledger) Load() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Ledger) load() (int, error) {
	rec, err := l.store.Load(l.timeline)
	if err != nil {
		if errors.Is(err, errclass.ErrLedgerCorrupt) {
			l.degraded = err
		}
		return l.quit, fmt.Errorf("load ledger: %w", err)
	}
	l.degraded = nil
	l.quit = rec.QuitCount
	l.deferredUntil = rec.DeferredUntil
	return l.quit, nil
}

// RecordQuitDeferral persists one more quit deferral and returns the new
// count. The in-memory count changes only after the store commits.
//
// A positive allowed caps session plus quit deferrals. The quit part of the
// cap is checked by the store under its writer lock, so deferrals recorded
// by another process count against it. At the cap it returns
// ErrLimitReached with the freshly loaded count.
func (l *Ledger) RecordQuitDeferral(until time.Time, allowed int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.degraded != nil {
		return l.quit, errclass.ErrPersistenceFailure.WithMessagef("ledger unreadable: %v", l.degraded)
	}
	limit := 0
	if allowed > 0 {
		if limit = allowed - l.session; limit <= 0 {
			return l.quit, ErrLimitReached
		}
	}

	var (
		rec     model.LedgerRecord
		lastErr error
		attempt int
	)
	err := wait.ExponentialBackoff(l.opts.Backoff, func() (bool, error) {
		attempt++
		var err error
		rec, err = l.store.Increment(l.timeline, until, l.opts.Clock.Now(), limit)
		if err == nil {
			return true, nil
		}
		lastErr = err
		if errors.Is(err, ErrLimitReached) {
			return false, err
		}
		if errors.Is(err, errclass.ErrLedgerCorrupt) {
			l.degraded = err
			return false, err
		}
		if attempt < l.opts.Backoff.Steps && l.opts.OnRetry != nil {
			l.opts.OnRetry(attempt, err)
		}
		return false, nil
	})
	if errors.Is(err, ErrLimitReached) {
		l.load()
		return l.quit, ErrLimitReached
	}
	if err != nil {
		return l.quit, errclass.ErrPersistenceFailure.WithMessagef("after %d attempts: %v", attempt, lastErr)
	}

	l.quit = rec.QuitCount
	l.deferredUntil = rec.DeferredUntil
	return l.quit, nil
}

// RecordSessionDeferral counts an in-session deferral. Never persisted.
func (l *Ledger) RecordSessionDeferral() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session++
	return l.session
}

// Counters returns the current counts.
func (l *Ledger) Counters() model.DeferralCounters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.DeferralCounters{Session: l.session, Quit: l.quit}
}

// DeferredUntil returns the reminder time of the last quit deferral.
func (l *Ledger) DeferredUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deferredUntil
}

// Reset zeroes the persisted count for this timeline and clears a degraded
// state. Session deferrals are untouched.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Reset(l.timeline, l.opts.Clock.Now()); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	l.quit = 0
	l.deferredUntil = time.Time{}
	l.degraded = nil
	return nil
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
