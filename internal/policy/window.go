package policy

import (
	"fmt"
	"time"

	"github.com/nudge-project/nudge/pkg/clock"
	"github.com/nudge-project/nudge/pkg/model"
)

// Rounding selects how the imminent window is converted from hours to days
// when shrinking the deferral range.
type Rounding string

const (
	// RoundFloor truncates partial days (36h counts as 1 day).
	RoundFloor Rounding = "floor"
	// RoundCeil counts any partial day as a whole one (36h counts as 2 days).
	RoundCeil Rounding = "ceil"
)

// ParseRounding maps a config value to a Rounding. Empty means floor.
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(s) {
	case "", RoundFloor:
		return RoundFloor, nil
	case RoundCeil:
		return RoundCeil, nil
	}
	return "", fmt.Errorf("unknown rounding %q (want floor or ceil)", s)
}

// ImminentDays converts the imminent window to whole days.
func (r Rounding) ImminentDays(imminentWindowHours int) int {
	days := imminentWindowHours / 24
	if r == RoundCeil && imminentWindowHours%24 != 0 {
		days++
	}
	return days
}

// LegalDeferralRange returns the reminder times a user may pick at now.
// A user can never defer into the imminent window, and once overdue the
// range collapses to now. The range is never inverted.
func LegalDeferralRange(now time.Time, daysRemaining, imminentWindowHours int, rounding Rounding) model.DeferralRange {
	r := model.DeferralRange{Earliest: now, Latest: now}
	if daysRemaining <= 0 {
		return r
	}
	r.Latest = clock.AddDays(now, daysRemaining-rounding.ImminentDays(imminentWindowHours))
	if r.Latest.Before(r.Earliest) {
		r.Latest = r.Earliest
	}
	return r
}
