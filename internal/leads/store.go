package leads

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("leads: not found")
	ErrDuplicatePhone  = errors.New("leads: phone already registered")
	ErrInvalidArgument = errors.New("leads: invalid argument")
)

// Store is the persistence contract for leads.
//
// Implementations must stamp UpdatedAt on every mutation and must enforce
// phone uniqueness at the storage layer (not just in application code).
type Store interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	GetByID(ctx context.Context, id string) (Lead, error)
	GetByPhone(ctx context.Context, phone string) (Lead, error)
	List(ctx context.Context, status LeadStatus, limit, offset int) ([]Lead, error)

	UpdateStatus(ctx context.Context, id string, status LeadStatus) error
	AppendNote(ctx context.Context, id string, note string) error
}
