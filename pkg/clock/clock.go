// Package clock abstracts time for the enforcement scheduler.
//
// Production code injects Real(); tests inject Fake() and move time
// forward explicitly with Advance or Set. Nothing in the enforcement path
// calls time.Now directly.
package clock

import "time"

// Day is the unit used for deadline arithmetic. Days are fixed 24 hour
// spans measured from the current instant, not calendar days.
const Day = 24 * time.Hour

// Clock supplies the current time and periodic ticks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C and call Stop when done.
// C has capacity 1; ticks are dropped if the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// AddDays returns t shifted by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * Day)
}

// FloorDays returns floor(d / 24h). Negative durations round toward
// negative infinity, so 1ns overdue is -1 day.
func FloorDays(d time.Duration) int {
	days := d / Day
	if d < 0 && d%Day != 0 {
		days--
	}
	return int(days)
}
