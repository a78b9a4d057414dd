package events

import (
	"context"
	"database/sql"
)

// PostgresRepo persists events in the `lifecycle_events` table from
// scripts/schema.sql. The table is INSERT-only.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO lifecycle_events (id, lead_id, type, call_attempt_id, appointment_id, provider_call_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.LeadID, e.Type, e.CallAttemptID, e.AppointmentID, e.ProviderCallID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByLead(ctx context.Context, leadID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
SELECT id, lead_id, type, call_attempt_id, appointment_id, provider_call_id, message, metadata, created_at
FROM lifecycle_events
WHERE lead_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.LeadID, &e.Type, &e.CallAttemptID, &e.AppointmentID, &e.ProviderCallID, &e.Message, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
