package policy

import (
	"time"

	"github.com/nudge-project/nudge/pkg/clock"
)

// Decision is the output of Evaluate.
type Decision struct {
	DaysRemaining  int
	UpdateRequired bool
	QuitAllowed    bool
}

// Evaluate computes the enforcement decision at now for the given deadline.
// The demo override never requires an update and always allows quitting.
func Evaluate(now, deadline time.Time, demoOverride bool) Decision {
	days := clock.FloorDays(deadline.Sub(now))
	required := days <= 0 && !demoOverride
	return Decision{
		DaysRemaining:  days,
		UpdateRequired: required,
		QuitAllowed:    !required || demoOverride,
	}
}

// Imminent reports whether the deadline is still ahead but within the
// imminent window.
func Imminent(now, deadline time.Time, imminentWindowHours int) bool {
	left := deadline.Sub(now)
	return left > 0 && left <= time.Duration(imminentWindowHours)*time.Hour
}

// DeferralsExhausted reports whether the user has used up the configured
// number of deferrals. allowed <= 0 means unlimited.
func DeferralsExhausted(total, allowed int) bool {
	return allowed > 0 && total >= allowed
}
