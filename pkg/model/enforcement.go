package model

import "time"

// Mode is the controller's enforcement state.
type Mode string

const (
	// ModeActive: the deadline is in the future and deferrals are possible.
	ModeActive Mode = "active"
	// ModeOverdue: the deadline has passed; quitting and deferring are refused.
	ModeOverdue Mode = "overdue"
	// ModeDemo: enforcement is suspended by the demo override.
	ModeDemo Mode = "demo"
)

// DeferralKind distinguishes in-session deferrals from deferrals that
// dismiss the prompt until a later launch.
type DeferralKind string

const (
	DeferralSession DeferralKind = "session"
	DeferralQuit    DeferralKind = "quit"
)

// Valid reports whether k is a known deferral kind.
func (k DeferralKind) Valid() bool {
	return k == DeferralSession || k == DeferralQuit
}

// DeferralCounters holds the two deferral counts. Session resets with each
// process; Quit is loaded from the ledger.
type DeferralCounters struct {
	Session int `json:"session"`
	Quit    int `json:"quit"`
}

// Total is the user-visible deferral count.
func (c DeferralCounters) Total() int {
	return c.Session + c.Quit
}

// DeferralRange is the closed interval of reminder times a user may pick.
type DeferralRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// Contains reports whether t falls inside the range, inclusive at both ends.
func (r DeferralRange) Contains(t time.Time) bool {
	return !t.Before(r.Earliest) && !t.After(r.Latest)
}

// EnforcementState is an immutable snapshot rendered by presentation layers.
// It is always recomputed as a whole, never patched.
type EnforcementState struct {
	EvaluatedAt        time.Time        `json:"evaluated_at"`
	Deadline           time.Time        `json:"deadline"`
	Mode               Mode             `json:"mode"`
	DaysRemaining      int              `json:"days_remaining"`
	Counters           DeferralCounters `json:"counters"`
	TotalDeferrals     int              `json:"total_deferrals"`
	QuitAllowed        bool             `json:"quit_allowed"`
	UpdateRequired     bool             `json:"update_required"`
	Imminent           bool             `json:"imminent"`
	QuitExposed        bool             `json:"quit_exposed"`
	DeferralsExhausted bool             `json:"deferrals_exhausted"`
	DeferralRange      DeferralRange    `json:"deferral_range"`
	DeferredUntil      time.Time        `json:"deferred_until,omitempty"`
}

// Deferred reports whether a recorded quit deferral still covers EvaluatedAt.
// An overdue timeline is never deferred.
func (s EnforcementState) Deferred() bool {
	if s.Mode == ModeOverdue || s.DeferredUntil.IsZero() {
		return false
	}
	return s.EvaluatedAt.Before(s.DeferredUntil)
}
