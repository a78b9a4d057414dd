package events

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) ListByLead(ctx context.Context, leadID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].LeadID == leadID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

// Events returns a copy of everything appended so far.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
