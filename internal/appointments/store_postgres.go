package appointments

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This store assumes the `appointments` table from scripts/schema.sql.
// scheduled_time is stored as timestamptz; times round-trip in UTC with
// their instant preserved exactly.

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const selectColumns = `
id, lead_id, call_attempt_id, scheduled_time, duration, status, notes,
reminder_sent, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, a Appointment) (Appointment, error) {
	if a.LeadID == "" || a.ScheduledTime.IsZero() {
		return Appointment{}, ErrInvalidArgument
	}
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

	const q = `
INSERT INTO appointments
  (id, lead_id, call_attempt_id, scheduled_time, duration, status, notes,
   reminder_sent, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.LeadID, a.CallAttemptID, a.ScheduledTime, a.DurationMinutes,
		a.Status, a.Notes, a.ReminderSent, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return Appointment{}, err
	}
	return a, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Appointment, error) {
	const q = `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`
	return scanAppointment(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListByLead(ctx context.Context, leadID string) ([]Appointment, error) {
	const q = `
SELECT ` + selectColumns + `
FROM appointments
WHERE lead_id = $1
ORDER BY scheduled_time ASC
`
	return s.queryMany(ctx, q, leadID)
}

func (s *PostgresStore) NearestUpcoming(ctx context.Context, leadID string, after time.Time) (Appointment, error) {
	const q = `
SELECT ` + selectColumns + `
FROM appointments
WHERE lead_id = $1
  AND scheduled_time >= $2
  AND status IN ($3, $4)
ORDER BY scheduled_time ASC
LIMIT 1
`
	return scanAppointment(s.db.QueryRowContext(ctx, q, leadID, after.UTC(), StatusScheduled, StatusConfirmed))
}

func (s *PostgresStore) ListDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error) {
	if window <= 0 {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + selectColumns + `
FROM appointments
WHERE scheduled_time > $1
  AND scheduled_time <= $2
  AND status IN ($3, $4)
  AND reminder_sent = FALSE
ORDER BY scheduled_time ASC
`
	return s.queryMany(ctx, q, now.UTC(), now.Add(window).UTC(), StatusScheduled, StatusConfirmed)
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE appointments
SET reminder_sent = TRUE, updated_at = $2
WHERE id = $1 AND reminder_sent = FALSE
`
	res, err := s.db.ExecContext(ctx, q, id, s.clock().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return ErrInvalidArgument
	}
	const q = `
UPDATE appointments
SET status = $2, updated_at = $3
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, status, s.clock().UTC())
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
UPDATE appointments
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

func (s *PostgresStore) ListOverlapping(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	if !end.After(start) {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + selectColumns + `
FROM appointments
WHERE status IN ($3, $4)
  AND scheduled_time < $2
  AND scheduled_time + (duration * INTERVAL '1 minute') > $1
ORDER BY scheduled_time ASC
`
	return s.queryMany(ctx, q, start.UTC(), end.UTC(), StatusScheduled, StatusConfirmed)
}

func (s *PostgresStore) queryMany(ctx context.Context, q string, args ...any) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Appointment, 0)
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(
			&a.ID, &a.LeadID, &a.CallAttemptID, &a.ScheduledTime, &a.DurationMinutes,
			&a.Status, &a.Notes, &a.ReminderSent, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.ScheduledTime = a.ScheduledTime.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppointment(row *sql.Row) (Appointment, error) {
	var a Appointment
	if err := row.Scan(
		&a.ID, &a.LeadID, &a.CallAttemptID, &a.ScheduledTime, &a.DurationMinutes,
		&a.Status, &a.Notes, &a.ReminderSent, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	a.ScheduledTime = a.ScheduledTime.UTC()
	return a, nil
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
