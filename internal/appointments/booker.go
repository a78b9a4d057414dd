package appointments

import (
	"context"
	"fmt"
	"time"
)

// Booker is the single creation path for appointments (end-of-call analysis
// and the direct API both go through it).
//
// Double-booking enforcement is a policy switch rather than a hard
// invariant: overlapping visits are legitimate for businesses that run
// multiple crews, so the conflict check only rejects when explicitly
// enabled.
type Booker struct {
	store Store

	enforceConflicts bool
	clock            func() time.Time
}

func NewBooker(store Store, enforceConflicts bool) *Booker {
	return &Booker{store: store, enforceConflicts: enforceConflicts, clock: time.Now}
}

// SetClock overrides the clock for deterministic tests.
func (b *Booker) SetClock(clock func() time.Time) { b.clock = clock }

// Book validates and persists a new appointment.
// ScheduledTime must be in the future at creation time; this is the only
// moment the rule is checked.
func (b *Booker) Book(ctx context.Context, a Appointment) (Appointment, error) {
	if a.LeadID == "" {
		return Appointment{}, fmt.Errorf("%w: lead_id required", ErrInvalidArgument)
	}
	if a.ScheduledTime.IsZero() {
		return Appointment{}, fmt.Errorf("%w: scheduled_time required", ErrInvalidArgument)
	}
	now := b.clock().UTC()
	if !a.ScheduledTime.After(now) {
		return Appointment{}, fmt.Errorf("%w: scheduled_time must be in the future", ErrInvalidArgument)
	}
	if a.DurationMinutes <= 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}

	if b.enforceConflicts {
		overlapping, err := b.store.ListOverlapping(ctx, a.ScheduledTime, a.End())
		if err != nil {
			return Appointment{}, err
		}
		if len(overlapping) > 0 {
			return Appointment{}, fmt.Errorf("%w: %s", ErrConflict, overlapping[0].ScheduledTime.Format(time.RFC3339))
		}
	}

	return b.store.Create(ctx, a)
}
