package appointments

import "time"

// Appointment is a scheduled visit resulting from a successful call, or
// created directly through the API.
//
// Invariants:
// - ScheduledTime must be in the future at creation time. It is not
//   re-validated afterwards.
// - ReminderSent flips true exactly once, by the reminder scheduler, via a
//   conditional update. It is the sole guard against duplicate reminders.
// - Appointments are cancelled, never hard-deleted.

type Appointment struct {
	ID            string `json:"id" db:"id"`
	LeadID        string `json:"lead_id" db:"lead_id"`
	CallAttemptID string `json:"call_attempt_id,omitempty" db:"call_attempt_id"`

	ScheduledTime   time.Time `json:"scheduled_time" db:"scheduled_time"`
	DurationMinutes int       `json:"duration" db:"duration"`

	Status Status `json:"status" db:"status"`

	Notes        string `json:"notes,omitempty" db:"notes"`
	ReminderSent bool   `json:"reminder_sent" db:"reminder_sent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// End returns the scheduled end of the visit.
func (a Appointment) End() time.Time {
	d := a.DurationMinutes
	if d <= 0 {
		d = DefaultDurationMinutes
	}
	return a.ScheduledTime.Add(time.Duration(d) * time.Minute)
}

const DefaultDurationMinutes = 60

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Upcoming reports whether s still counts as a live booking for reminders
// and inbound SMS actions.
func (s Status) Upcoming() bool {
	return s == StatusScheduled || s == StatusConfirmed
}
