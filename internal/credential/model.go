package credential

import (
	"time"

	"github.com/google/uuid"
)

// State is both the validation state of a physician and the review state of
// a single document submission.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	}
	return false
}

// Decision is what a reviewer can record on a pending submission.
type Decision string

const (
	DecisionApprove Decision = "approved"
	DecisionReject  Decision = "rejected"
)

func (d Decision) State() (State, bool) {
	switch d {
	case DecisionApprove:
		return StateApproved, true
	case DecisionReject:
		return StateRejected, true
	}
	return "", false
}

type Physician struct {
	ID        uuid.UUID
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DocumentType struct {
	ID          uuid.UUID
	Name        string
	Description string
	Required    bool
	CreatedAt   time.Time
}

type Submission struct {
	ID              uuid.UUID
	PhysicianID     uuid.UUID
	DocumentTypeID  uuid.UUID
	FileRef         string
	State           State
	ReviewerID      *uuid.UUID
	ReviewNotes     string
	RejectPhysician bool
	SubmittedAt     time.Time
	DecidedAt       *time.Time
	// DecisionSeq orders decisions across the whole store. Zero while pending.
	DecisionSeq int64
}

// Review is the input of a document decision.
type Review struct {
	DocumentID      uuid.UUID
	Decision        Decision
	Notes           string
	RejectPhysician bool
}

type ReviewResult struct {
	Document       Submission
	PhysicianState State
	ApprovedCount  int
	RequiredCount  int
}

// Status summarizes a physician's progress through credential review.
type Status struct {
	PhysicianID   uuid.UUID
	State         State
	RequiredCount int
	ApprovedCount int
	Submitted     int
	Pending       int
	Rejected      int
	Missing       []uuid.UUID
}
