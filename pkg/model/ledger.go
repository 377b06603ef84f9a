package model

import "time"

// LedgerRecord is the persisted cross-session deferral counter for one
// enforcement timeline.
type LedgerRecord struct {
	Timeline      string    `json:"timeline"`
	QuitCount     int       `json:"quit_count"`
	DeferredUntil time.Time `json:"deferred_until,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// TimelineKey identifies the enforcement timeline a ledger record belongs to.
func TimelineKey(deadline time.Time) string {
	return deadline.UTC().Format(time.RFC3339)
}
