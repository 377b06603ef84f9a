// Package enforce holds the enforcement state machine. The Controller is
// the single place where deferrals are accepted or refused; presentation
// layers render its EnforcementState and route every user action through it.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nudge-project/nudge/internal/events"
	"github.com/nudge-project/nudge/internal/ledger"
	"github.com/nudge-project/nudge/internal/policy"
	"github.com/nudge-project/nudge/internal/updater"
	"github.com/nudge-project/nudge/pkg/clock"
	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/model"
)

// DeferralRequest asks for one deferral. A zero Until records the deferral
// without a reminder time.
type DeferralRequest struct {
	Kind  model.DeferralKind
	Until time.Time
}

// Controller evaluates the deadline, validates deferrals against it and
// records accepted ones in the ledger. Methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	settings Settings
	clock    clock.Clock
	ledger   *ledger.Ledger
	updater  updater.Updater
	sink     events.Sink
	state    model.EnforcementState
}

// New validates settings and returns a Controller evaluated at clk.Now().
// The ledger must be open on the timeline of settings.Deadline. A nil sink
// discards events.
func New(settings Settings, clk clock.Clock, l *ledger.Ledger, u updater.Updater, sink events.Sink) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.Rounding == "" {
		settings.Rounding = policy.RoundFloor
	}
	if clk == nil {
		clk = clock.Real()
	}
	if l == nil {
		return nil, errclass.ErrConfigurationInvalid.WithMessage("ledger is required")
	}
	if want := model.TimelineKey(settings.Deadline); l.Timeline() != want {
		return nil, errclass.ErrConfigurationInvalid.WithMessagef("ledger timeline %s does not match deadline %s", l.Timeline(), want)
	}
	if u == nil {
		u = updater.Func(func(context.Context) error { return updater.ErrNoCommand })
	}
	if sink == nil {
		sink = events.Discard
	}

	c := &Controller{
		settings: settings,
		clock:    clk,
		ledger:   l,
		updater:  u,
		sink:     sink,
	}
	c.state = c.evaluate(clk.Now())
	return c, nil
}

// Settings returns the settings the controller enforces.
func (c *Controller) Settings() Settings { return c.settings }

// State returns the last computed snapshot.
func (c *Controller) State() model.EnforcementState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnTick reloads the persisted counts and recomputes the state at now.
// Calling it twice with the same now and no new deferrals yields the same
// state. A failed reload keeps the last loaded counts.
func (c *Controller) OnTick(now time.Time) model.EnforcementState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.Load()
	c.state = c.evaluate(now)
	return c.state
}

// RecordDeferral validates req against the state at the current time and
// records it. A refused or unpersisted deferral leaves the counters as
// they were and returns an error matching errclass.ErrInvalidDeferral.
func (c *Controller) RecordDeferral(req DeferralRequest) (model.EnforcementState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	_, loadErr := c.ledger.Load()
	c.state = c.evaluate(now)
	st := c.state

	if !req.Kind.Valid() {
		return st, errclass.ErrInvalidDeferral.WithMessagef("unknown deferral kind %q", req.Kind)
	}
	if loadErr != nil {
		c.block(now, st, req.Kind, "ledger unreadable")
		return st, fmt.Errorf("%w: %w", errclass.ErrInvalidDeferral.WithMessage("deferral not recorded"),
			errclass.ErrPersistenceFailure.WithMessagef("%v", loadErr))
	}
	if !st.QuitExposed {
		reason := blockedReason(st)
		c.block(now, st, req.Kind, reason)
		return st, errclass.ErrInvalidDeferral.WithMessage(reason)
	}
	if !req.Until.IsZero() && !st.DeferralRange.Contains(req.Until) {
		c.block(now, st, req.Kind, "reminder out of range")
		return st, errclass.ErrInvalidDeferral.WithMessagef("reminder %s outside %s..%s",
			req.Until.UTC().Format(time.RFC3339),
			st.DeferralRange.Earliest.UTC().Format(time.RFC3339),
			st.DeferralRange.Latest.UTC().Format(time.RFC3339))
	}

	var count int
	switch req.Kind {
	case model.DeferralSession:
		count = c.ledger.RecordSessionDeferral()
	case model.DeferralQuit:
		allowed := c.settings.AllowedDeferrals
		if c.settings.DemoOverride {
			allowed = 0
		}
		n, err := c.ledger.RecordQuitDeferral(req.Until, allowed)
		if errors.Is(err, ledger.ErrLimitReached) {
			// Another process used up the allowance since the reload.
			c.state = c.evaluate(now)
			c.block(now, c.state, req.Kind, "deferrals exhausted")
			return c.state, errclass.ErrInvalidDeferral.WithMessage("deferrals exhausted")
		}
		if err != nil {
			c.block(now, st, req.Kind, "persistence failure")
			return st, fmt.Errorf("%w: %w", errclass.ErrInvalidDeferral.WithMessage("deferral not recorded"), err)
		}
		count = n
	}

	c.state = c.evaluate(now)
	c.emit(model.Event{Type: model.EventDeferralRecorded, At: now, Mode: c.state.Mode, Kind: req.Kind, Count: count})
	return c.state, nil
}

// RecordUpdateNow launches the updater. It is permitted in every mode and
// never touches the counters. The launch runs outside the controller lock
// so ticks continue while the updater starts.
func (c *Controller) RecordUpdateNow(ctx context.Context) error {
	err := c.updater.LaunchUpdate(ctx)
	st := c.State()
	now := c.clock.Now()
	if err != nil {
		c.emit(model.Event{Type: model.EventUpdateLaunchFailed, At: now, Mode: st.Mode, Detail: err.Error()})
		return fmt.Errorf("%w: %w", errclass.ErrUpdateLaunchFailed.WithMessage("launch update"), err)
	}
	c.emit(model.Event{Type: model.EventUpdateLaunched, At: now, Mode: st.Mode})
	return nil
}

// Run re-evaluates the state every interval and passes each snapshot to
// observe, starting with one taken immediately. It returns ctx.Err() when
// ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration, observe func(model.EnforcementState)) error {
	if interval <= 0 {
		return errclass.ErrConfigurationInvalid.WithMessagef("tick interval must be positive, got %s", interval)
	}
	if observe == nil {
		observe = func(model.EnforcementState) {}
	}
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	observe(c.OnTick(c.clock.Now()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			observe(c.OnTick(now))
		}
	}
}

func (c *Controller) evaluate(now time.Time) model.EnforcementState {
	s := c.settings
	d := policy.Evaluate(now, s.Deadline, s.DemoOverride)
	counters := c.ledger.Counters()
	total := counters.Total()
	exhausted := policy.DeferralsExhausted(total, s.AllowedDeferrals)

	mode := model.ModeActive
	switch {
	case s.DemoOverride:
		mode = model.ModeDemo
	case d.UpdateRequired:
		mode = model.ModeOverdue
	}

	return model.EnforcementState{
		EvaluatedAt:        now,
		Deadline:           s.Deadline,
		Mode:               mode,
		DaysRemaining:      d.DaysRemaining,
		Counters:           counters,
		TotalDeferrals:     total,
		QuitAllowed:        d.QuitAllowed,
		UpdateRequired:     d.UpdateRequired,
		Imminent:           policy.Imminent(now, s.Deadline, s.ImminentWindowHours),
		QuitExposed:        s.DemoOverride || (s.AllowButtons && d.QuitAllowed && !exhausted),
		DeferralsExhausted: exhausted,
		DeferralRange:      policy.LegalDeferralRange(now, d.DaysRemaining, s.ImminentWindowHours, s.Rounding),
		DeferredUntil:      c.ledger.DeferredUntil(),
	}
}

func blockedReason(st model.EnforcementState) string {
	switch {
	case !st.QuitAllowed:
		return "update required"
	case st.DeferralsExhausted:
		return "deferrals exhausted"
	}
	return "deferral controls disabled"
}

func (c *Controller) block(now time.Time, st model.EnforcementState, kind model.DeferralKind, reason string) {
	c.emit(model.Event{Type: model.EventEnforcementBlocked, At: now, Mode: st.Mode, Kind: kind, Count: st.TotalDeferrals, Detail: reason})
}

func (c *Controller) emit(ev model.Event) {
	ev.Timeline = c.ledger.Timeline()
	c.sink.Emit(ev)
}

// IsBlocked reports whether err is a refusal at the enforcement boundary
// rather than a storage failure.
func IsBlocked(err error) bool {
	return errors.Is(err, errclass.ErrInvalidDeferral) && !errors.Is(err, errclass.ErrPersistenceFailure)
}
