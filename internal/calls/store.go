package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// FinalizeParams carries the terminal transition written exactly once per
// call attempt.
type FinalizeParams struct {
	Status          CallStatus // must be terminal
	EndTime         time.Time
	DurationSeconds int // <= 0 means "provider did not report"
}

// Store is the persistence contract for call attempts.
//
// Finalize is the idempotency guard for the reconciler: it transitions to a
// terminal status only when the stored status is still non-terminal, and
// reports whether this invocation performed the transition. A false return
// with nil error means another event already finalized the attempt; callers
// must treat that as success and skip outcome work.
type Store interface {
	Create(ctx context.Context, a CallAttempt) (CallAttempt, error)
	GetByID(ctx context.Context, id string) (CallAttempt, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (CallAttempt, error)
	ListByLead(ctx context.Context, leadID string, limit, offset int) ([]CallAttempt, error)

	SetProviderCallID(ctx context.Context, id, providerCallID string) error
	MarkInProgress(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, p FinalizeParams) (bool, error)

	// SetOutcome writes the analysis-derived fields after finalization.
	SetOutcome(ctx context.Context, id string, result CallResult, transcript string) error
	AppendNote(ctx context.Context, id string, note string) error
}
