package enforce

import (
	"time"

	"github.com/nudge-project/nudge/internal/policy"
	"github.com/nudge-project/nudge/pkg/errclass"
)

// Settings are the enforcement inputs taken from configuration. They are
// fixed for the lifetime of a Controller; a new deadline means a new
// Controller on a new ledger timeline.
type Settings struct {
	Deadline            time.Time
	ImminentWindowHours int
	DemoOverride        bool
	// AllowButtons exposes the quit and defer controls. When false only
	// the update path is available, even with time remaining.
	AllowButtons bool
	// AllowedDeferrals hides the quit path once this many deferrals were
	// recorded. Zero means unlimited.
	AllowedDeferrals int
	Rounding         policy.Rounding
}

// Validate rejects settings the controller cannot evaluate.
func (s Settings) Validate() error {
	if s.Deadline.IsZero() {
		return errclass.ErrConfigurationInvalid.WithMessage("deadline is required")
	}
	if s.ImminentWindowHours < 0 {
		return errclass.ErrConfigurationInvalid.WithMessagef("imminent window must not be negative, got %d", s.ImminentWindowHours)
	}
	if s.AllowedDeferrals < 0 {
		return errclass.ErrConfigurationInvalid.WithMessagef("allowed deferrals must not be negative, got %d", s.AllowedDeferrals)
	}
	if _, err := policy.ParseRounding(string(s.Rounding)); err != nil {
		return errclass.ErrConfigurationInvalid.WithMessage(err.Error())
	}
	return nil
}
