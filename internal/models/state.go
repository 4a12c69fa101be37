package models

import "time"

// StatePhase tags the variant of EngineState.
type StatePhase string

const (
	PhaseIdle      StatePhase = "idle"
	PhaseCountdown StatePhase = "countdown"
	PhaseActive    StatePhase = "active"
	PhaseResolving StatePhase = "resolving"
)

// EngineState is the single mutable value owned by the engine. Fields outside the
// current phase are zero.
type EngineState struct {
	Phase StatePhase `json:"phase"`

	// Countdown
	Remaining int       `json:"remaining,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`

	// Active
	EventID      int64     `json:"event_id,omitempty"`
	UpdatesSent  int       `json:"updates_sent,omitempty"`
	LastUpdateAt time.Time `json:"last_update_at,omitempty"`
	Silent       bool      `json:"silent,omitempty"`

	// Trigger that started the current session.
	Trigger TriggerKind `json:"trigger,omitempty"`
}

// IdleState returns the rest state.
func IdleState() EngineState {
	return EngineState{Phase: PhaseIdle}
}

// ContactOutcome records the delivery result for one contact.
type ContactOutcome struct {
	ContactID string        `json:"contact_id"`
	Status    MessageStatus `json:"status"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// DispatchResult is the aggregate outcome of sending one message to a contact list.
type DispatchResult struct {
	Sent             int              `json:"sent"`
	Failed           int              `json:"failed"`
	FailedContactIDs []string         `json:"failed_contact_ids,omitempty"`
	Outcomes         []ContactOutcome `json:"outcomes,omitempty"`
}

// Partial reports whether at least one contact was not reached.
func (r DispatchResult) Partial() bool {
	return r.Failed > 0
}

// ActivationReport is returned when the engine enters Active.
type ActivationReport struct {
	EventID  int64          `json:"event_id"`
	Snapshot DeviceSnapshot `json:"snapshot"`
	Message  string         `json:"message"`
	Dispatch DispatchResult `json:"dispatch"`
	Calls    DispatchResult `json:"calls"`
	Warnings []string       `json:"warnings,omitempty"`
}

// TriggerResult describes what a Trigger request did. Activation is nil when
// the engine entered Countdown instead of Active.
type TriggerResult struct {
	State      EngineState       `json:"state"`
	Activation *ActivationReport `json:"activation,omitempty"`
}
