package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for lifecycle events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByLead(ctx context.Context, leadID string, limit int) ([]Event, error)
}

var ErrInvalidEvent = errors.New("events: invalid event")

// Service records lifecycle events.
//
// Callers should treat event logging as best-effort: a failed append is
// logged and swallowed at the call site, never surfaced to the caller of
// the business operation.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("events: repository not configured")
	}
	if e.LeadID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// ListByLead returns the most recent events for a lead, newest first.
func (s *Service) ListByLead(ctx context.Context, leadID string, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("events: repository not configured")
	}
	if leadID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByLead(ctx, leadID, limit)
}

// LogCallInitiated records an outbound call being placed.
func (s *Service) LogCallInitiated(ctx context.Context, leadID, callAttemptID, providerCallID string) error {
	return s.Append(ctx, Event{
		LeadID:         leadID,
		Type:           EventTypeCallInitiated,
		CallAttemptID:  callAttemptID,
		ProviderCallID: providerCallID,
		Message:        "outbound call placed",
	})
}

// LogCallFinalized records a call reaching a terminal status.
func (s *Service) LogCallFinalized(ctx context.Context, leadID, callAttemptID, status, result string) error {
	return s.Append(ctx, Event{
		LeadID:        leadID,
		Type:          EventTypeCallFinalized,
		CallAttemptID: callAttemptID,
		Message:       "call finalized: " + status + " (" + result + ")",
	})
}

// LogAppointmentBooked records a new appointment.
func (s *Service) LogAppointmentBooked(ctx context.Context, leadID, callAttemptID, appointmentID string, scheduled time.Time) error {
	return s.Append(ctx, Event{
		LeadID:        leadID,
		Type:          EventTypeAppointmentBooked,
		CallAttemptID: callAttemptID,
		AppointmentID: appointmentID,
		Message:       "appointment booked for " + scheduled.UTC().Format(time.RFC3339),
	})
}

// LogReminderSent records an outbound reminder SMS.
func (s *Service) LogReminderSent(ctx context.Context, leadID, appointmentID string) error {
	return s.Append(ctx, Event{
		LeadID:        leadID,
		Type:          EventTypeReminderSent,
		AppointmentID: appointmentID,
		Message:       "reminder SMS sent",
	})
}

// LogInboundSMS records a received SMS and the action taken for it.
func (s *Service) LogInboundSMS(ctx context.Context, leadID, action string) error {
	return s.Append(ctx, Event{
		LeadID:  leadID,
		Type:    EventTypeInboundSMS,
		Message: "inbound SMS handled: " + action,
	})
}
