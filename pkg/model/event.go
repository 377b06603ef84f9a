package model

import "time"

// EventType identifies an enforcement event.
type EventType string

const (
	EventDeferralRecorded   EventType = "deferral_recorded"
	EventUpdateLaunched     EventType = "update_launched"
	EventUpdateLaunchFailed EventType = "update_launch_failed"
	EventEnforcementBlocked EventType = "enforcement_blocked"
	EventPersistenceRetry   EventType = "persistence_retry"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventDeferralRecorded, EventUpdateLaunched, EventUpdateLaunchFailed,
		EventEnforcementBlocked, EventPersistenceRetry:
		return true
	}
	return false
}

// Event is emitted by the controller to the configured sinks.
type Event struct {
	Type     EventType    `json:"type"`
	At       time.Time    `json:"at"`
	Mode     Mode         `json:"mode,omitempty"`
	Kind     DeferralKind `json:"kind,omitempty"`
	Count    int          `json:"count,omitempty"`
	Timeline string       `json:"timeline,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

// Fields flattens the event into structured log fields.
func (e Event) Fields() map[string]any {
	fields := map[string]any{"event": string(e.Type)}
	if e.Mode != "" {
		fields["mode"] = string(e.Mode)
	}
	if e.Kind != "" {
		fields["kind"] = string(e.Kind)
		fields["count"] = e.Count
	}
	if e.Timeline != "" {
		fields["timeline"] = e.Timeline
	}
	if e.Detail != "" {
		fields["detail"] = e.Detail
	}
	return fields
}
