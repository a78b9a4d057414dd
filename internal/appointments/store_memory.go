package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory appointment store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]Appointment
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Appointment{}, clock: time.Now}
}

func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, a Appointment) (Appointment, error) {
	if a.LeadID == "" || a.ScheduledTime.IsZero() {
		return Appointment{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !a.Status.Valid() {
		return Appointment{}, ErrInvalidArgument
	}
	if a.DurationMinutes <= 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}
	now := s.clock().UTC()
	a.ScheduledTime = a.ScheduledTime.UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.rows[a.ID] = a
	return a, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListByLead(ctx context.Context, leadID string) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Appointment, 0)
	for _, a := range s.rows {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	sortBySchedule(out)
	return out, nil
}

func (s *MemoryStore) NearestUpcoming(ctx context.Context, leadID string, after time.Time) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Appointment
	for _, a := range s.rows {
		if a.LeadID != leadID || !a.Status.Upcoming() || a.ScheduledTime.Before(after) {
			continue
		}
		a := a
		if best == nil || a.ScheduledTime.Before(best.ScheduledTime) {
			best = &a
		}
	}
	if best == nil {
		return Appointment{}, ErrNotFound
	}
	return *best, nil
}

func (s *MemoryStore) ListDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error) {
	if window <= 0 {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(window)
	out := make([]Appointment, 0)
	for _, a := range s.rows {
		if !a.Status.Upcoming() || a.ReminderSent {
			continue
		}
		if a.ScheduledTime.After(now) && !a.ScheduledTime.After(cutoff) {
			out = append(out, a)
		}
	}
	sortBySchedule(out)
	return out, nil
}

func (s *MemoryStore) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.ReminderSent {
		return false, nil
	}
	a.ReminderSent = true
	a.UpdatedAt = s.clock().UTC()
	s.rows[id] = a
	return true, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = s.clock().UTC()
	s.rows[id] = a
	return nil
}

func (s *MemoryStore) AppendNote(ctx context.Context, id string, note string) error {
	if note == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if a.Notes == "" {
		a.Notes = note
	} else {
		a.Notes += "\n" + note
	}
	a.UpdatedAt = s.clock().UTC()
	s.rows[id] = a
	return nil
}

func (s *MemoryStore) ListOverlapping(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	if !end.After(start) {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Appointment, 0)
	for _, a := range s.rows {
		if !a.Status.Upcoming() {
			continue
		}
		if a.ScheduledTime.Before(end) && a.End().After(start) {
			out = append(out, a)
		}
	}
	sortBySchedule(out)
	return out, nil
}

func sortBySchedule(list []Appointment) {
	sort.Slice(list, func(i, j int) bool { return list[i].ScheduledTime.Before(list[j].ScheduledTime) })
}
