package appointments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("appointments: not found")
	ErrInvalidArgument = errors.New("appointments: invalid argument")
	ErrConflict        = errors.New("appointments: slot already booked")
)

// Store is the persistence contract for appointments.
type Store interface {
	Create(ctx context.Context, a Appointment) (Appointment, error)
	GetByID(ctx context.Context, id string) (Appointment, error)
	ListByLead(ctx context.Context, leadID string) ([]Appointment, error)

	// NearestUpcoming returns the lead's soonest appointment at or after
	// `after` with status in {scheduled, confirmed}.
	NearestUpcoming(ctx context.Context, leadID string, after time.Time) (Appointment, error)

	// ListDueReminders returns appointments starting in (now, now+window]
	// with status in {scheduled, confirmed} and reminder_sent = false.
	ListDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error)

	// MarkReminderSent flips reminder_sent exactly once; false means another
	// sweep already claimed it.
	MarkReminderSent(ctx context.Context, id string) (bool, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
	AppendNote(ctx context.Context, id string, note string) error

	// ListOverlapping returns live appointments whose [scheduled, end) window
	// intersects [start, end).
	ListOverlapping(ctx context.Context, start, end time.Time) ([]Appointment, error)
}
