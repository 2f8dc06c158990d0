package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/db"
)

type PgOutbox struct {
	pool db.DBTX
}

func NewPgOutbox(pool db.DBTX) *PgOutbox {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PgOutbox{pool: pool}
}

func (s *PgOutbox) Append(ctx context.Context, evt Event) error {
	_, err := db.Executor(ctx, s.pool).Exec(ctx, `
		INSERT INTO outbox (id, aggregate, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.ID, evt.Aggregate, evt.AggregateID, string(evt.Type), []byte(evt.Payload), evt.CreatedAt)
	if err != nil {
		return db.Unavailable("events: insert outbox", err)
	}
	return nil
}

func (s *PgOutbox) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, db.Unavailable("events: fetch pending", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var evt Event
		var typ string
		var payload []byte
		if err := rows.Scan(&evt.ID, &evt.Aggregate, &evt.AggregateID, &typ, &payload, &evt.CreatedAt); err != nil {
			return nil, db.Unavailable("events: scan outbox", err)
		}
		evt.Type = Type(typ)
		evt.Payload = append([]byte(nil), payload...)
		result = append(result, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("events: fetch pending", err)
	}
	return result, nil
}

func (s *PgOutbox) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET delivered_at = $2
		WHERE id = $1 AND delivered_at IS NULL
	`, id, at)
	if err != nil {
		return false, db.Unavailable("events: mark delivered", err)
	}
	return ct.RowsAffected() == 1, nil
}
