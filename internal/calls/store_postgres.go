package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This store assumes the `call_attempts` table from scripts/schema.sql.
// The status machine is enforced here with conditional UPDATEs rather than
// application-side checks, so concurrent webhook deliveries serialize on the
// row.

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const selectColumns = `
id, lead_id, provider_call_id, start_time, end_time, duration, recording_url,
transcript, status, result, notes, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, a CallAttempt) (CallAttempt, error) {
	if a.LeadID == "" {
		return CallAttempt{}, ErrInvalidArgument
	}
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

	const q = `
INSERT INTO call_attempts
  (id, lead_id, provider_call_id, start_time, end_time, duration, recording_url,
   transcript, status, result, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.LeadID, a.ProviderCallID, a.StartTime, a.EndTime, a.DurationSeconds,
		a.RecordingURL, a.Transcript, a.Status, a.Result, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return CallAttempt{}, err
	}
	return a, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (CallAttempt, error) {
	const q = `SELECT ` + selectColumns + ` FROM call_attempts WHERE id = $1`
	return scanAttempt(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (CallAttempt, error) {
	if providerCallID == "" {
		return CallAttempt{}, ErrInvalidArgument
	}
	const q = `SELECT ` + selectColumns + ` FROM call_attempts WHERE provider_call_id = $1`
	return scanAttempt(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) ListByLead(ctx context.Context, leadID string, limit, offset int) ([]CallAttempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
SELECT ` + selectColumns + `
FROM call_attempts
WHERE lead_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := s.db.QueryContext(ctx, q, leadID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallAttempt, 0, limit)
	for rows.Next() {
		a, err := scanAttemptRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	if providerCallID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE call_attempts
SET provider_call_id = $2, updated_at = $3
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, providerCallID, s.clock().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) MarkInProgress(ctx context.Context, id string) error {
	// Only pending moves to in_progress; a repeated in-progress event or a
	// late event after finalization is a no-op, not an error.
	const q = `
UPDATE call_attempts
SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
`
	res, err := s.db.ExecContext(ctx, q, id, CallStatusInProgress, s.clock().UTC(), CallStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish "row missing" from "already past pending".
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Finalize(ctx context.Context, id string, p FinalizeParams) (bool, error) {
	if !p.Status.Terminal() {
		return false, ErrInvalidArgument
	}
	end := p.EndTime
	if end.IsZero() {
		end = s.clock().UTC()
	}
	const q = `
UPDATE call_attempts
SET status = $2,
    end_time = $3,
    duration = CASE WHEN $4 > 0 THEN $4 ELSE duration END,
    updated_at = $5
WHERE id = $1 AND status IN ($6, $7)
`
	res, err := s.db.ExecContext(ctx, q,
		id, p.Status, end, p.DurationSeconds, s.clock().UTC(),
		CallStatusPending, CallStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Either already terminal (idempotent no-op) or missing.
		if _, err := s.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) SetOutcome(ctx context.Context, id string, result CallResult, transcript string) error {
	if !result.Valid() {
		return ErrInvalidArgument
	}
	const q = `
UPDATE call_attempts
SET result = $2, transcript = $3, updated_at = $4
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, result, transcript, s.clock().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) AppendNote(ctx context.Context, id string, note string) error {
	if note == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE call_attempts
SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
    updated_at = $3
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, note, s.clock().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanAttempt(row *sql.Row) (CallAttempt, error) {
	var a CallAttempt
	if err := row.Scan(
		&a.ID, &a.LeadID, &a.ProviderCallID, &a.StartTime, &a.EndTime, &a.DurationSeconds,
		&a.RecordingURL, &a.Transcript, &a.Status, &a.Result, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallAttempt{}, ErrNotFound
		}
		return CallAttempt{}, err
	}
	return a, nil
}

func scanAttemptRows(rows *sql.Rows) (CallAttempt, error) {
	var a CallAttempt
	err := rows.Scan(
		&a.ID, &a.LeadID, &a.ProviderCallID, &a.StartTime, &a.EndTime, &a.DurationSeconds,
		&a.RecordingURL, &a.Transcript, &a.Status, &a.Result, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
