package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/credential"
)

type CredentialRepository struct {
	store *Store
}

var _ credential.Repository = (*CredentialRepository)(nil)

func (r *CredentialRepository) CreatePhysician(ctx context.Context, p credential.Physician) (*credential.Physician, error) {
	var out credential.Physician
	r.store.with(ctx, func(d *state) {
		if existing, ok := d.physicians[p.ID]; ok {
			out = existing
			return
		}
		d.physicians[p.ID] = p
		out = p
	})
	return &out, nil
}

func (r *CredentialRepository) GetPhysician(ctx context.Context, id uuid.UUID) (*credential.Physician, error) {
	var (
		out credential.Physician
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		out, ok = d.physicians[id]
	})
	if !ok {
		return nil, credential.ErrPhysicianNotFound
	}
	return &out, nil
}

func (r *CredentialRepository) LockPhysician(ctx context.Context, id uuid.UUID) (*credential.Physician, error) {
	return r.GetPhysician(ctx, id)
}

func (r *CredentialRepository) UpdatePhysicianState(ctx context.Context, id uuid.UUID, st credential.State, at time.Time) error {
	var ok bool
	r.store.with(ctx, func(d *state) {
		var p credential.Physician
		if p, ok = d.physicians[id]; ok {
			p.State = st
			p.UpdatedAt = at
			d.physicians[id] = p
		}
	})
	if !ok {
		return credential.ErrPhysicianNotFound
	}
	return nil
}

func (r *CredentialRepository) ListPhysiciansByState(ctx context.Context, st credential.State) ([]credential.Physician, error) {
	var out []credential.Physician
	r.store.with(ctx, func(d *state) {
		for _, p := range d.physicians {
			if p.State == st {
				out = append(out, p)
			}
		}
	})
	slices.SortFunc(out, func(a, b credential.Physician) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (r *CredentialRepository) CreateDocumentType(ctx context.Context, dt credential.DocumentType) error {
	var err error
	r.store.with(ctx, func(d *state) {
		for _, existing := range d.docTypes {
			if existing.Name == dt.Name {
				err = credential.ErrDuplicateDocumentType
				return
			}
		}
		d.docTypes[dt.ID] = dt
	})
	return err
}

func (r *CredentialRepository) GetDocumentType(ctx context.Context, id uuid.UUID) (*credential.DocumentType, error) {
	var (
		out credential.DocumentType
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		out, ok = d.docTypes[id]
	})
	if !ok {
		return nil, credential.ErrDocumentTypeNotFound
	}
	return &out, nil
}

func (r *CredentialRepository) ListDocumentTypes(ctx context.Context) ([]credential.DocumentType, error) {
	var out []credential.DocumentType
	r.store.with(ctx, func(d *state) {
		for _, dt := range d.docTypes {
			out = append(out, dt)
		}
	})
	slices.SortFunc(out, func(a, b credential.DocumentType) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (r *CredentialRepository) CreateSubmission(ctx context.Context, s credential.Submission) error {
	r.store.with(ctx, func(d *state) {
		d.submissions[s.ID] = s
	})
	return nil
}

func (r *CredentialRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*credential.Submission, error) {
	var (
		out credential.Submission
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		out, ok = d.submissions[id]
	})
	if !ok {
		return nil, credential.ErrDocumentNotFound
	}
	return &out, nil
}

func (r *CredentialRepository) DecideSubmission(ctx context.Context, id uuid.UUID, st credential.State, reviewerID uuid.UUID, notes string, rejectPhysician bool, at time.Time) (*credential.Submission, error) {
	var (
		out credential.Submission
		err error
	)
	r.store.with(ctx, func(d *state) {
		s, ok := d.submissions[id]
		switch {
		case !ok:
			err = credential.ErrDocumentNotFound
		case s.State != credential.StatePending:
			err = credential.ErrAlreadyReviewed
		default:
			s.State = st
			s.ReviewerID = &reviewerID
			s.ReviewNotes = notes
			s.RejectPhysician = rejectPhysician
			s.DecidedAt = &at
			d.decisionSeq++
			s.DecisionSeq = d.decisionSeq
			d.submissions[id] = s
			out = s
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CredentialRepository) ListSubmissions(ctx context.Context, physicianID uuid.UUID) ([]credential.Submission, error) {
	var out []credential.Submission
	r.store.with(ctx, func(d *state) {
		for _, s := range d.submissions {
			if s.PhysicianID == physicianID {
				out = append(out, s)
			}
		}
	})
	slices.SortFunc(out, func(a, b credential.Submission) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}
