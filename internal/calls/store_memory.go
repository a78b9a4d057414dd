package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory call attempt store for tests. It enforces the
// same status machine as the Postgres store.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]CallAttempt
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]CallAttempt{}, clock: time.Now}
}

func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, a CallAttempt) (CallAttempt, error) {
	if a.LeadID == "" {
		return CallAttempt{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.clock().UTC()
	if a.Status == "" {
		a.Status = CallStatusPending
	}
	if !a.Status.Valid() {
		return CallAttempt{}, ErrInvalidArgument
	}
	if a.Result == "" {
		a.Result = CallResultUndetermined
	}
	if a.StartTime.IsZero() {
		a.StartTime = now
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	s.rows[a.ID] = a
	return a, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (CallAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return CallAttempt{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (CallAttempt, error) {
	if providerCallID == "" {
		return CallAttempt{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.ProviderCallID == providerCallID {
			return a, nil
		}
	}
	return CallAttempt{}, ErrNotFound
}

func (s *MemoryStore) ListByLead(ctx context.Context, leadID string, limit, offset int) ([]CallAttempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]CallAttempt, 0)
	for _, a := range s.rows {
		if a.LeadID == leadID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []CallAttempt{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	if providerCallID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	a.ProviderCallID = providerCallID
	a.UpdatedAt = s.clock().UTC()
	s.rows[id] = a
	return nil
}

func (s *MemoryStore) MarkInProgress(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != CallStatusPending {
		return nil
	}
	a.Status = CallStatusInProgress
	a.UpdatedAt = s.clock().UTC()
	s.rows[id] = a
	return nil
}

func (s *MemoryStore) Finalize(ctx context.Context, id string, p FinalizeParams) (bool, error) {
	if !p.Status.Terminal() {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status.Terminal() {
		return false, nil
	}
	end := p.EndTime
	if end.IsZero() {
		end = s.clock().UTC()
	}
	a.Status = p.Status
	a.EndTime = &end
	if p.DurationSeconds > 0 {
		a.DurationSeconds = p.DurationSeconds
	}
	a.UpdatedAt = s.clock().UTC()
	s.rows[id] = a
	return true, nil
}

func (s *MemoryStore) SetOutcome(ctx context.Context, id string, result CallResult, transcript string) error {
	if !result.Valid() {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	a.Result = result
	a.Transcript = transcript
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
