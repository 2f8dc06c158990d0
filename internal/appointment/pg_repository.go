package appointment

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

// Helpers

const appointmentColumns = `id, patient_id, physician_id, slot_id, state, reason, slot_start_at, slot_end_at,
	created_at, updated_at, accepted_at, completed_at, cancelled_at, cancelled_by, cancellation_reason`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var cancellationReason *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PhysicianID,
		&a.SlotID,
		&status,
		&a.Reason,
		&a.StartAt,
		&a.EndAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.AcceptedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CancelledBy,
		&cancellationReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, db.Unavailable("scan appointment", err)
	}

	a.Status = AppointmentStatus(status)
	if cancellationReason != nil {
		a.CancellationReason = *cancellationReason
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows, op string) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable(op, err)
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a Appointment) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, physician_id, slot_id, state, reason,
			slot_start_at, slot_end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, a.ID, a.PatientID, a.PhysicianID, a.SlotID, string(a.Status), a.Reason, a.StartAt, a.EndAt, a.CreatedAt)
	if err != nil {
		return db.Unavailable("insert appointment", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, t Transition) (*Appointment, error) {
	row := r.q(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET state = $3,
		    updated_at = $4,
		    accepted_at = CASE WHEN $3 = 'scheduled' THEN $4 ELSE accepted_at END,
		    completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END,
		    cancelled_by = COALESCE($5, cancelled_by),
		    cancellation_reason = COALESCE($6, cancellation_reason)
		WHERE id = $1
		  AND state = $2
		RETURNING `+appointmentColumns,
		id, string(t.From), string(t.To), t.At, t.CancelledBy, t.Reason)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	return a, err
}

func (r *PgRepository) LockPatient(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.q(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, patientID.String())
	if err != nil {
		return db.Unavailable("lock patient", err)
	}
	return nil
}

func (r *PgRepository) HasOverlapping(ctx context.Context, patientID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE patient_id = $1
			  AND id <> $4
			  AND state <> 'cancelled'
			  AND slot_start_at < $3
			  AND slot_end_at > $2
		)
	`, patientID, start, end, exclude).Scan(&exists)
	if err != nil {
		return false, db.Unavailable("check patient overlap", err)
	}
	return exists, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY slot_start_at, id
	`, patientID)
	if err != nil {
		return nil, db.Unavailable("list appointments by patient", err)
	}
	return collectAppointments(rows, "list appointments by patient")
}

func (r *PgRepository) ListByPhysician(ctx context.Context, physicianID uuid.UUID) ([]Appointment, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE physician_id = $1
		ORDER BY slot_start_at, id
	`, physicianID)
	if err != nil {
		return nil, db.Unavailable("list appointments by physician", err)
	}
	return collectAppointments(rows, "list appointments by physician")
}

func (r *PgRepository) FindStalePending(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE state = 'pending'
		  AND slot_start_at <= $1
		ORDER BY slot_start_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, db.Unavailable("find stale pending appointments", err)
	}
	return collectAppointments(rows, "find stale pending appointments")
}
