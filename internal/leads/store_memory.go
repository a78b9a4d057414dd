package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory lead store for tests and early development.
// It mirrors the PostgresStore constraints, including phone uniqueness.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]Lead
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Lead{}, clock: time.Now}
}

// SetClock overrides the clock for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, l Lead) (Lead, error) {
	if l.Name == "" || l.Phone == "" {
		return Lead{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rows {
		if existing.Phone == l.Phone {
			return Lead{}, ErrDuplicatePhone
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = LeadStatusPending
	}
	if !l.Status.Valid() {
		return Lead{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.rows[l.ID] = l
	return l, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) GetByPhone(ctx context.Context, phone string) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.rows {
		if l.Phone == phone {
			return l, nil
		}
	}
	return Lead{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context, status LeadStatus, limit, offset int) ([]Lead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Lead, 0, len(s.rows))
	for _, l := range s.rows {
		if status != "" && l.Status != status {
			continue
		}
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return []Lead{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status LeadStatus) error {
	if !status.Valid() {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = s.clock().UTC()
	s.rows[id] = l
	return nil
}

func (s *MemoryStore) AppendNote(ctx context.Context, id string, note string) error {
	if note == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if l.Notes == "" {
		l.Notes = note
	} else {
		l.Notes += "\n" + note
	}
	l.UpdatedAt = s.clock().UTC()
	s.rows[id] = l
	return nil
}
