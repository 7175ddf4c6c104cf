// Package events defines the typed messages carried by the engine's event
// bus. Every trigger the coordinator sends and every reaction the store
// fires is one of these structs; there are no string-keyed payload bags.
//
// The BaseEvent struct is embedded in every concrete event type.
package events

import "time"

// EventType represents the type of bus event.
type EventType string

const (
	// EventTypeFindingRecorded indicates a finding was committed to the store.
	EventTypeFindingRecorded EventType = "finding.recorded"
	// EventTypeCorrelationFound indicates a correlation pattern matched.
	EventTypeCorrelationFound EventType = "correlation.found"
	// EventTypeWebTest asks web-testing adapters to test a URL.
	EventTypeWebTest EventType = "trigger.web_test"
	// EventTypeCredentialTest asks credential adapters to try candidates.
	EventTypeCredentialTest EventType = "trigger.credential_test"
	// EventTypeDatabaseTest asks database adapters to test a service.
	EventTypeDatabaseTest EventType = "trigger.database_test"
	// EventTypeExploitSuggestion suggests an exploit for a CVE.
	EventTypeExploitSuggestion EventType = "trigger.exploit_suggestion"
	// EventTypeCoordinatedAttack suggests attacking two targets together.
	EventTypeCoordinatedAttack EventType = "trigger.coordinated_attack"
	// EventTypePrivilegeEscalation suggests privilege escalation on a foothold.
	EventTypePrivilegeEscalation EventType = "trigger.privilege_escalation"
	// EventTypeLookupFailed indicates an external lookup failed and was
	// treated as an empty result.
	EventTypeLookupFailed EventType = "lookup.failed"
)

// TriggerTypes returns the event types produced by the module coordinator.
func TriggerTypes() []EventType {
	return []EventType{
		EventTypeWebTest,
		EventTypeCredentialTest,
		EventTypeDatabaseTest,
		EventTypeExploitSuggestion,
		EventTypeCoordinatedAttack,
		EventTypePrivilegeEscalation,
	}
}

// Event is the base interface for all events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	Target() string
}

// BaseEvent contains common fields for all events.
// It is designed to be embedded in specific event types.
type BaseEvent struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"timestamp"`
	Address string    `json:"target"`
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// Target returns the network address the event is about.
func (e BaseEvent) Target() string { return e.Address }

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType, target string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now(), Address: target}
}
