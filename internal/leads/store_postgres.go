package leads

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This store assumes the `leads` table from scripts/schema.sql exists,
// including:
// UNIQUE (phone)

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const pgUniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, l Lead) (Lead, error) {
	if l.Name == "" || l.Phone == "" {
		return Lead{}, ErrInvalidArgument
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

	const q = `
INSERT INTO leads (id, name, phone, email, source, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := s.db.ExecContext(ctx, q,
		l.ID, l.Name, l.Phone, l.Email, l.Source, l.Status, l.Notes, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Lead{}, ErrDuplicatePhone
		}
		return Lead{}, err
	}
	return l, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Lead, error) {
	const q = `
SELECT id, name, phone, email, source, status, notes, created_at, updated_at
FROM leads
WHERE id = $1
`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetByPhone(ctx context.Context, phone string) (Lead, error) {
	const q = `
SELECT id, name, phone, email, source, status, notes, created_at, updated_at
FROM leads
WHERE phone = $1
`
	return s.scanOne(s.db.QueryRowContext(ctx, q, phone))
}

func (s *PostgresStore) List(ctx context.Context, status LeadStatus, limit, offset int) ([]Lead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
SELECT id, name, phone, email, source, status, notes, created_at, updated_at
FROM leads
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := s.db.QueryContext(ctx, q, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Lead, 0, limit)
	for rows.Next() {
		var l Lead
		if err := rows.Scan(
			&l.ID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status LeadStatus) error {
	if !status.Valid() {
		return ErrInvalidArgument
	}
	const q = `
UPDATE leads
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
UPDATE leads
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

func (s *PostgresStore) scanOne(row *sql.Row) (Lead, error) {
	var l Lead
	if err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
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
