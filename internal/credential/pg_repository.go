package credential

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

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	var state string

	err := row.Scan(&p.ID, &state, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPhysicianNotFound
		}
		return nil, db.Unavailable("scan physician", err)
	}

	p.State = State(state)
	return &p, nil
}

func scanDocumentType(row pgx.Row) (*DocumentType, error) {
	var dt DocumentType

	err := row.Scan(&dt.ID, &dt.Name, &dt.Description, &dt.Required, &dt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentTypeNotFound
		}
		return nil, db.Unavailable("scan document type", err)
	}

	return &dt, nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	var state string
	var notes *string
	var seq *int64

	err := row.Scan(
		&s.ID,
		&s.PhysicianID,
		&s.DocumentTypeID,
		&s.FileRef,
		&state,
		&s.ReviewerID,
		&notes,
		&s.RejectPhysician,
		&s.SubmittedAt,
		&s.DecidedAt,
		&seq,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, db.Unavailable("scan submission", err)
	}

	s.State = State(state)
	if notes != nil {
		s.ReviewNotes = *notes
	}
	if seq != nil {
		s.DecisionSeq = *seq
	}
	return &s, nil
}

const physicianColumns = `id, validation_state, created_at, updated_at`

const submissionColumns = `id, physician_id, document_type_id, file_ref, state, reviewer_id,
	review_notes, reject_physician, submitted_at, decided_at, decision_seq`

// Physicians

func (r *PgRepository) CreatePhysician(ctx context.Context, p Physician) (*Physician, error) {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO physicians (id, validation_state, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, string(p.State), p.CreatedAt)
	if err != nil {
		return nil, db.Unavailable("insert physician", err)
	}
	return r.GetPhysician(ctx, p.ID)
}

func (r *PgRepository) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		WHERE id = $1
	`, id)
	return scanPhysician(row)
}

func (r *PgRepository) LockPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanPhysician(row)
}

func (r *PgRepository) UpdatePhysicianState(ctx context.Context, id uuid.UUID, state State, at time.Time) error {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE physicians
		SET validation_state = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(state), at)
	if err != nil {
		return db.Unavailable("update physician state", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPhysicianNotFound
	}
	return nil
}

func (r *PgRepository) ListPhysiciansByState(ctx context.Context, state State) ([]Physician, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+physicianColumns+`
		FROM physicians
		WHERE validation_state = $1
		ORDER BY created_at, id
	`, string(state))
	if err != nil {
		return nil, db.Unavailable("list physicians", err)
	}
	defer rows.Close()

	var result []Physician
	for rows.Next() {
		p, err := scanPhysician(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list physicians", err)
	}
	return result, nil
}

// Document types

func (r *PgRepository) CreateDocumentType(ctx context.Context, dt DocumentType) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO document_types (id, name, description, required, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, dt.ID, dt.Name, dt.Description, dt.Required, dt.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateDocumentType
	}
	if err != nil {
		return db.Unavailable("insert document type", err)
	}
	return nil
}

func (r *PgRepository) GetDocumentType(ctx context.Context, id uuid.UUID) (*DocumentType, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT id, name, description, required, created_at
		FROM document_types
		WHERE id = $1
	`, id)
	return scanDocumentType(row)
}

func (r *PgRepository) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, name, description, required, created_at
		FROM document_types
		ORDER BY name
	`)
	if err != nil {
		return nil, db.Unavailable("list document types", err)
	}
	defer rows.Close()

	var result []DocumentType
	for rows.Next() {
		dt, err := scanDocumentType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dt)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list document types", err)
	}
	return result, nil
}

// Submissions

func (r *PgRepository) CreateSubmission(ctx context.Context, s Submission) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO document_submissions (id, physician_id, document_type_id, file_ref, state, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.PhysicianID, s.DocumentTypeID, s.FileRef, string(s.State), s.SubmittedAt)
	if err != nil {
		return db.Unavailable("insert submission", err)
	}
	return nil
}

func (r *PgRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	row := r.q(ctx).QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM document_submissions
		WHERE id = $1
	`, id)
	return scanSubmission(row)
}

func (r *PgRepository) DecideSubmission(ctx context.Context, id uuid.UUID, state State, reviewerID uuid.UUID, notes string, rejectPhysician bool, at time.Time) (*Submission, error) {
	row := r.q(ctx).QueryRow(ctx, `
		UPDATE document_submissions
		SET state = $2,
		    reviewer_id = $3,
		    review_notes = $4,
		    reject_physician = $5,
		    decided_at = $6,
		    decision_seq = nextval('document_decision_seq')
		WHERE id = $1
		  AND state = 'pending'
		RETURNING `+submissionColumns,
		id, string(state), reviewerID, notes, rejectPhysician, at)

	s, err := scanSubmission(row)
	if errors.Is(err, ErrDocumentNotFound) {
		// either missing or already decided
		if _, getErr := r.GetSubmission(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyReviewed
	}
	return s, err
}

func (r *PgRepository) ListSubmissions(ctx context.Context, physicianID uuid.UUID) ([]Submission, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+submissionColumns+`
		FROM document_submissions
		WHERE physician_id = $1
		ORDER BY submitted_at, id
	`, physicianID)
	if err != nil {
		return nil, db.Unavailable("list submissions", err)
	}
	defer rows.Close()

	var result []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list submissions", err)
	}
	return result, nil
}
