package events

import "time"

// Event is an immutable, append-only operational log record tracking what
// happened to a lead across calls, appointments and reminders.
//
// Invariants:
// - Events are never updated or deleted.
// - Logging is best-effort; callers must not block critical flows on it.

type Event struct {
	ID     string `json:"id" db:"id"`
	LeadID string `json:"lead_id" db:"lead_id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	CallAttemptID  string `json:"call_attempt_id,omitempty" db:"call_attempt_id"`
	AppointmentID  string `json:"appointment_id,omitempty" db:"appointment_id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated     EventType = "call_initiated"
	EventTypeCallFinalized     EventType = "call_finalized"
	EventTypeAppointmentBooked EventType = "appointment_booked"
	EventTypeReminderSent      EventType = "reminder_sent"
	EventTypeInboundSMS        EventType = "inbound_sms"
)
