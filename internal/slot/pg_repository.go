package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telemed-scheduling/internal/db"
)

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) q(ctx context.Context) db.DBTX {
	return db.Executor(ctx, r.pool)
}

const slotColumns = `id, physician_id, slot_date, start_at, end_at, available, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.PhysicianID,
		&s.Date,
		&s.StartAt,
		&s.EndAt,
		&s.Available,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, db.Unavailable("scan slot", err)
	}

	return &s, nil
}

func collectSlots(rows pgx.Rows, op string) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable(op, err)
	}
	return result, nil
}

func (r *PgRepository) LockPhysician(ctx context.Context, physicianID uuid.UUID) error {
	var id uuid.UUID
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id
		FROM physicians
		WHERE id = $1
		FOR UPDATE
	`, physicianID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPhysicianNotFound
		}
		return db.Unavailable("lock physician", err)
	}
	return nil
}

func (r *PgRepository) FindOverlapping(ctx context.Context, physicianID uuid.UUID, start, end time.Time) ([]Slot, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE physician_id = $1
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, physicianID, start, end)
	if err != nil {
		return nil, db.Unavailable("find overlapping slots", err)
	}
	return collectSlots(rows, "find overlapping slots")
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) error {
	q := r.q(ctx)
	for _, s := range slots {
		_, err := q.Exec(ctx, `
			INSERT INTO slots (id, physician_id, slot_date, start_at, end_at, available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, s.ID, s.PhysicianID, s.Date, s.StartAt, s.EndAt, s.Available, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return db.Unavailable("insert slot", err)
		}
	}
	return nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListByPhysician(ctx context.Context, physicianID uuid.UUID, availableAfter *time.Time) ([]Slot, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if availableAfter != nil {
		rows, err = r.q(ctx).Query(ctx, `
			SELECT `+slotColumns+`
			FROM slots
			WHERE physician_id = $1
			  AND available
			  AND start_at > $2
			ORDER BY slot_date, start_at
		`, physicianID, *availableAfter)
	} else {
		rows, err = r.q(ctx).Query(ctx, `
			SELECT `+slotColumns+`
			FROM slots
			WHERE physician_id = $1
			ORDER BY slot_date, start_at
		`, physicianID)
	}
	if err != nil {
		return nil, db.Unavailable("list slots", err)
	}
	return collectSlots(rows, "list slots")
}

func (r *PgRepository) Reserve(ctx context.Context, id, physicianID uuid.UUID, now time.Time) (*Slot, error) {
	row := r.q(ctx).QueryRow(ctx, `
		UPDATE slots
		SET available = false,
		    updated_at = $3
		WHERE id = $1
		  AND physician_id = $2
		  AND available
		  AND start_at > $3
		RETURNING `+slotColumns,
		id, physicianID, now)

	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrSlotUnavailable
	}
	return s, err
}

func (r *PgRepository) Release(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE slots
		SET available = true,
		    updated_at = $2
		WHERE id = $1
		  AND NOT available
		  AND start_at > $2
	`, id, now)
	if err != nil {
		return false, db.Unavailable("release slot", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PgRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool, now time.Time) (*Slot, error) {
	row := r.q(ctx).QueryRow(ctx, `
		UPDATE slots
		SET available = $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+slotColumns,
		id, available, now)
	return scanSlot(row)
}

func (r *PgRepository) HasActiveAppointment(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE slot_id = $1
			  AND state <> 'cancelled'
		)
	`, slotID).Scan(&exists)
	if err != nil {
		return false, db.Unavailable("check slot appointments", err)
	}
	return exists, nil
}
