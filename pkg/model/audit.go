package model

import "time"

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// AuditRecord is a single line in the audit log (JSONL format).
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	Timeline   string         `json:"timeline,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
