package leads

import "time"

// Lead is a contact who requested service.
//
// Invariants:
// - Phone is unique (E.164). Creation rejects duplicates.
// - Status transitions are driven only by the call lifecycle reconciler and
//   the reminder scheduler; leads are never deleted by this service.
// - Notes are append-only in practice.

type Lead struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Phone  string `json:"phone" db:"phone"`
	Email  string `json:"email,omitempty" db:"email"`
	Source string `json:"source,omitempty" db:"source"`

	Status LeadStatus `json:"status" db:"status"`

	Notes string `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type LeadStatus string

const (
	LeadStatusPending        LeadStatus = "pending"
	LeadStatusInProgress     LeadStatus = "in_progress"
	LeadStatusAppointmentSet LeadStatus = "appointment_set"
	LeadStatusFailed         LeadStatus = "failed"
	LeadStatusNoAnswer       LeadStatus = "no_answer"
)

// Valid reports whether s is a known lead status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusPending, LeadStatusInProgress, LeadStatusAppointmentSet,
		LeadStatusFailed, LeadStatusNoAnswer:
		return true
	default:
		return false
	}
}
