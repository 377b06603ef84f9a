package enforce_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/nudge-project/nudge/internal/enforce"
	"github.com/nudge-project/nudge/internal/ledger"
	"github.com/nudge-project/nudge/internal/policy"
	"github.com/nudge-project/nudge/internal/updater"
	"github.com/nudge-project/nudge/pkg/clock"
	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/model"
)

var start = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Emit(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) last() model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// brokenStore loads empty records and never commits an increment.
type brokenStore struct{ calls int }

func (s *brokenStore) Load(tl string) (model.LedgerRecord, error) {
	return model.LedgerRecord{Timeline: tl}, nil
}

func (s *brokenStore) Increment(string, time.Time, time.Time, int) (model.LedgerRecord, error) {
	s.calls++
	return model.LedgerRecord{}, errors.New("disk full")
}

func (s *brokenStore) Reset(string, time.Time) error { return nil }
func (s *brokenStore) Close() error                  { return nil }

// racingStore lets a second writer commit one quit deferral just before
// the first increment goes through.
type racingStore struct {
	ledger.Store
	other ledger.Store
	raced bool
}

func (s *racingStore) Increment(tl string, until, at time.Time, limit int) (model.LedgerRecord, error) {
	if !s.raced {
		s.raced = true
		if _, err := s.other.Increment(tl, until, at, 0); err != nil {
			return model.LedgerRecord{}, err
		}
	}
	return s.Store.Increment(tl, until, at, limit)
}

type harness struct {
	clock  *clock.FakeClock
	ledger *ledger.Ledger
	sink   *recorder
	ctrl   *enforce.Controller
}

func settings(deadline time.Time) enforce.Settings {
	return enforce.Settings{
		Deadline:            deadline,
		ImminentWindowHours: 24,
		AllowButtons:        true,
		Rounding:            policy.RoundFloor,
	}
}

func openLedger(t *testing.T, store ledger.Store, deadline time.Time, clk clock.Clock) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(store, model.TimelineKey(deadline), ledger.Options{
		Clock:   clk,
		Backoff: wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 3},
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func newHarness(t *testing.T, s enforce.Settings, store ledger.Store, u updater.Updater) *harness {
	t.Helper()
	if store == nil {
		fs, err := ledger.NewFileStore(t.TempDir())
		require.NoError(t, err)
		store = fs
	}
	h := &harness{clock: clock.Fake(start), sink: &recorder{}}
	h.ledger = openLedger(t, store, s.Deadline, h.clock)
	ctrl, err := enforce.New(s, h.clock, h.ledger, u, h.sink)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func TestController_FiveDaysOut(t *testing.T) {
	h := newHarness(t, settings(start.Add(5*clock.Day)), nil, nil)

	st := h.ctrl.State()
	assert.Equal(t, model.ModeActive, st.Mode)
	assert.Equal(t, 5, st.DaysRemaining)
	assert.True(t, st.QuitAllowed)
	assert.True(t, st.QuitExposed)
	assert.False(t, st.Imminent)
	assert.Equal(t, start, st.DeferralRange.Earliest)
	assert.Equal(t, start.Add(4*clock.Day), st.DeferralRange.Latest)

	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralSession, Until: start.Add(4 * clock.Day)})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counters.Session)
	assert.Equal(t, 1, st.TotalDeferrals)
	assert.Equal(t, model.EventDeferralRecorded, h.sink.last().Type)
	assert.Equal(t, 1, h.sink.last().Count)
}

func TestController_ReminderPastRangeRefused(t *testing.T) {
	h := newHarness(t, settings(start.Add(5*clock.Day)), nil, nil)

	_, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{
		Kind:  model.DeferralQuit,
		Until: start.Add(4*clock.Day + time.Second),
	})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.True(t, enforce.IsBlocked(err))
	assert.Zero(t, h.ctrl.State().TotalDeferrals)
	assert.Equal(t, []model.EventType{model.EventEnforcementBlocked}, h.sink.types())
	assert.Equal(t, "reminder out of range", h.sink.last().Detail)
	assert.Equal(t, model.DeferralQuit, h.sink.last().Kind)
}

func TestController_OverdueRefusesDeferral(t *testing.T) {
	h := newHarness(t, settings(start.Add(-clock.Day)), nil, nil)

	st := h.ctrl.State()
	assert.Equal(t, model.ModeOverdue, st.Mode)
	assert.Equal(t, -1, st.DaysRemaining)
	assert.True(t, st.UpdateRequired)
	assert.False(t, st.QuitExposed)
	assert.Equal(t, st.DeferralRange.Earliest, st.DeferralRange.Latest)

	for _, kind := range []model.DeferralKind{model.DeferralSession, model.DeferralQuit} {
		st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: kind})
		require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
		assert.Zero(t, st.TotalDeferrals)
	}
	assert.Equal(t, []model.EventType{model.EventEnforcementBlocked, model.EventEnforcementBlocked}, h.sink.types())
	assert.Equal(t, "update required", h.sink.last().Detail)
}

func TestController_DemoOverrideWhileOverdue(t *testing.T) {
	s := settings(start.Add(-10 * clock.Day))
	s.DemoOverride = true
	h := newHarness(t, s, nil, nil)

	st := h.ctrl.State()
	assert.Equal(t, model.ModeDemo, st.Mode)
	assert.Equal(t, -10, st.DaysRemaining)
	assert.False(t, st.UpdateRequired)
	assert.True(t, st.QuitAllowed)

	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralSession})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counters.Session)
}

func TestController_OnTickIsIdempotent(t *testing.T) {
	h := newHarness(t, settings(start.Add(3*clock.Day)), nil, nil)
	at := start.Add(17 * time.Hour)

	first := h.ctrl.OnTick(at)
	second := h.ctrl.OnTick(at)
	assert.Equal(t, first, second)
	assert.Equal(t, second, h.ctrl.State())
}

func TestController_DaysRemainingIsMonotonic(t *testing.T) {
	h := newHarness(t, settings(start.Add(3*clock.Day)), nil, nil)

	prev := h.ctrl.State()
	for i := 0; i < 5*24; i++ {
		h.clock.Advance(time.Hour)
		st := h.ctrl.OnTick(h.clock.Now())
		assert.LessOrEqual(t, st.DaysRemaining, prev.DaysRemaining)
		if prev.UpdateRequired {
			assert.True(t, st.UpdateRequired, "update required must not revert at %s", st.EvaluatedAt)
		}
		prev = st
	}
	assert.True(t, prev.UpdateRequired)
}

func TestController_DeadlinePassingEndsDeferrals(t *testing.T) {
	h := newHarness(t, settings(start.Add(2*clock.Day)), nil, nil)

	_, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
	require.NoError(t, err)

	h.clock.Advance(2 * clock.Day)
	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.Equal(t, model.ModeOverdue, st.Mode)
	assert.Equal(t, 1, st.Counters.Quit)
}

func TestController_ImminentCollapsesRange(t *testing.T) {
	h := newHarness(t, settings(start.Add(20*time.Hour)), nil, nil)

	st := h.ctrl.State()
	assert.True(t, st.Imminent)
	assert.True(t, st.UpdateRequired, "a partial last day rounds down to zero days")
	assert.Equal(t, start, st.DeferralRange.Latest)
}

func TestController_QuitDeferralPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	deadline := start.Add(6 * clock.Day)
	until := start.Add(2 * clock.Day)

	store, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	h := newHarness(t, settings(deadline), store, nil)
	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit, Until: until})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counters.Quit)
	assert.True(t, st.Deferred())

	store2, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	h2 := newHarness(t, settings(deadline), store2, nil)
	st = h2.ctrl.State()
	assert.Equal(t, 1, st.Counters.Quit)
	assert.Zero(t, st.Counters.Session)
	assert.True(t, st.DeferredUntil.Equal(until))
	assert.True(t, st.Deferred())
}

func TestController_PersistenceFailure(t *testing.T) {
	store := &brokenStore{}
	h := newHarness(t, settings(start.Add(5*clock.Day)), store, nil)

	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.ErrorIs(t, err, errclass.ErrPersistenceFailure)
	assert.False(t, enforce.IsBlocked(err))
	assert.Equal(t, 3, store.calls)
	assert.Zero(t, st.Counters.Quit)
	assert.Zero(t, h.ctrl.State().TotalDeferrals)
	assert.Equal(t, []model.EventType{model.EventEnforcementBlocked}, h.sink.types())
	assert.Equal(t, "persistence failure", h.sink.last().Detail)
}

func TestController_AllowedDeferralsExhausted(t *testing.T) {
	s := settings(start.Add(5 * clock.Day))
	s.AllowedDeferrals = 2
	h := newHarness(t, s, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralSession})
		require.NoError(t, err)
	}
	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralSession})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.True(t, st.DeferralsExhausted)
	assert.False(t, st.QuitExposed)
	assert.True(t, st.QuitAllowed)
	assert.Equal(t, 2, st.TotalDeferrals)
	assert.Equal(t, "deferrals exhausted", h.sink.last().Detail)
}

func TestController_AllowedDeferralsSharedBetweenControllers(t *testing.T) {
	dir := t.TempDir()
	s := settings(start.Add(5 * clock.Day))
	s.AllowedDeferrals = 2

	storeA, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	storeB, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	a := newHarness(t, s, storeA, nil)
	b := newHarness(t, s, storeB, nil)

	for i := 0; i < 2; i++ {
		_, err := a.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
		require.NoError(t, err)
	}

	st := b.ctrl.OnTick(start)
	assert.Equal(t, 2, st.TotalDeferrals)
	assert.True(t, st.DeferralsExhausted)
	assert.False(t, st.QuitExposed)

	st, err = b.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.True(t, enforce.IsBlocked(err))
	assert.Equal(t, 2, st.Counters.Quit)
	assert.Equal(t, "deferrals exhausted", b.sink.last().Detail)

	rec, err := storeA.Load(model.TimelineKey(s.Deadline))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.QuitCount)
}

func TestController_AllowanceUsedUpBetweenReloadAndWrite(t *testing.T) {
	dir := t.TempDir()
	s := settings(start.Add(5 * clock.Day))
	s.AllowedDeferrals = 1

	inner, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	other, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	h := newHarness(t, s, &racingStore{Store: inner, other: other}, nil)
	require.True(t, h.ctrl.State().QuitExposed)

	st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.True(t, enforce.IsBlocked(err))
	assert.Equal(t, 1, st.Counters.Quit, "the other writer's deferral is visible")
	assert.True(t, st.DeferralsExhausted)
	assert.Equal(t, "deferrals exhausted", h.sink.last().Detail)

	rec, err := inner.Load(model.TimelineKey(s.Deadline))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.QuitCount)
}

func TestController_DemoIgnoresAllowance(t *testing.T) {
	s := settings(start.Add(5 * clock.Day))
	s.AllowedDeferrals = 1
	s.DemoOverride = true
	h := newHarness(t, s, nil, nil)

	for i := 1; i <= 3; i++ {
		st, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralQuit})
		require.NoError(t, err)
		assert.Equal(t, i, st.Counters.Quit)
	}
}

func TestController_ButtonsDisabled(t *testing.T) {
	s := settings(start.Add(5 * clock.Day))
	s.AllowButtons = false
	h := newHarness(t, s, nil, nil)

	assert.False(t, h.ctrl.State().QuitExposed)
	_, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: model.DeferralSession})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
}

func TestController_UnknownKind(t *testing.T) {
	h := newHarness(t, settings(start.Add(5*clock.Day)), nil, nil)

	_, err := h.ctrl.RecordDeferral(enforce.DeferralRequest{Kind: "forever"})
	require.ErrorIs(t, err, errclass.ErrInvalidDeferral)
	assert.Empty(t, h.sink.types())
}

func TestController_RecordUpdateNow(t *testing.T) {
	launches := 0
	ok := updater.Func(func(context.Context) error { launches++; return nil })
	h := newHarness(t, settings(start.Add(-clock.Day)), nil, ok)

	require.NoError(t, h.ctrl.RecordUpdateNow(context.Background()))
	assert.Equal(t, 1, launches)
	assert.Equal(t, model.EventUpdateLaunched, h.sink.last().Type)
	assert.Equal(t, model.ModeOverdue, h.sink.last().Mode)
	assert.Zero(t, h.ctrl.State().TotalDeferrals)
}

func TestController_RecordUpdateNowFailure(t *testing.T) {
	cause := errors.New("pane missing")
	bad := updater.Func(func(context.Context) error { return cause })
	h := newHarness(t, settings(start.Add(5*clock.Day)), nil, bad)

	err := h.ctrl.RecordUpdateNow(context.Background())
	require.ErrorIs(t, err, errclass.ErrUpdateLaunchFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, model.EventUpdateLaunchFailed, h.sink.last().Type)
	assert.Equal(t, "pane missing", h.sink.last().Detail)
}

func TestController_RecordUpdateNowWithoutUpdater(t *testing.T) {
	h := newHarness(t, settings(start.Add(5*clock.Day)), nil, nil)
	err := h.ctrl.RecordUpdateNow(context.Background())
	require.ErrorIs(t, err, errclass.ErrUpdateLaunchFailed)
	assert.ErrorIs(t, err, updater.ErrNoCommand)
}

func TestController_Run(t *testing.T) {
	h := newHarness(t, settings(start.Add(2*clock.Day)), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := make(chan model.EnforcementState, 4)
	done := make(chan error, 1)
	go func() {
		done <- h.ctrl.Run(ctx, time.Hour, func(st model.EnforcementState) { states <- st })
	}()

	first := <-states
	assert.Equal(t, 2, first.DaysRemaining)

	h.clock.Advance(time.Hour)
	second := <-states
	assert.Equal(t, start.Add(time.Hour), second.EvaluatedAt)
	assert.Equal(t, 1, second.DaysRemaining)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestController_RunRejectsNonPositiveInterval(t *testing.T) {
	h := newHarness(t, settings(start.Add(2*clock.Day)), nil, nil)
	err := h.ctrl.Run(context.Background(), 0, nil)
	assert.ErrorIs(t, err, errclass.ErrConfigurationInvalid)
}

func TestNew_Validation(t *testing.T) {
	clk := clock.Fake(start)
	deadline := start.Add(clock.Day)
	fs, err := ledger.NewFileStore(t.TempDir())
	require.NoError(t, err)
	l := openLedger(t, fs, deadline, clk)

	cases := map[string]enforce.Settings{
		"zero deadline":      {ImminentWindowHours: 24},
		"negative window":    {Deadline: deadline, ImminentWindowHours: -1},
		"negative deferrals": {Deadline: deadline, AllowedDeferrals: -3},
		"unknown rounding":   {Deadline: deadline, Rounding: "nearest"},
		"timeline mismatch":  {Deadline: deadline.Add(time.Hour)},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := enforce.New(s, clk, l, nil, nil)
			assert.ErrorIs(t, err, errclass.ErrConfigurationInvalid)
		})
	}

	_, err = enforce.New(enforce.Settings{Deadline: deadline}, clk, nil, nil, nil)
	assert.ErrorIs(t, err, errclass.ErrConfigurationInvalid)
}
