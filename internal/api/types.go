package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/slot"
)

type CreateAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	PhysicianID string `json:"physician_id"`
	SlotID      string `json:"slot_id"`
	Reason      string `json:"reason"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	PhysicianID        uuid.UUID  `json:"physician_id"`
	SlotID             uuid.UUID  `json:"slot_id"`
	Status             string     `json:"status"`
	Reason             string     `json:"reason,omitempty"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              time.Time  `json:"end_at"`
	CreatedAt          time.Time  `json:"created_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		PhysicianID:        a.PhysicianID,
		SlotID:             a.SlotID,
		Status:             string(a.Status),
		Reason:             a.Reason,
		StartAt:            a.StartAt,
		EndAt:              a.EndAt,
		CreatedAt:          a.CreatedAt,
		AcceptedAt:         a.AcceptedAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
	}
}

// CreateSlotsRequest carries a clinic local day and HH:MM bounds.
type CreateSlotsRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type ToggleSlotRequest struct {
	Available *bool `json:"available"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	PhysicianID uuid.UUID `json:"physician_id"`
	Date        string    `json:"date"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Available   bool      `json:"available"`
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		PhysicianID: s.PhysicianID,
		Date:        s.Date.Format(time.DateOnly),
		StartAt:     s.StartAt,
		EndAt:       s.EndAt,
		Available:   s.Available,
	}
}

func toSlotResponses(slots []slot.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

type RegisterPhysicianRequest struct {
	PhysicianID string `json:"physician_id"`
}

type PhysicianResponse struct {
	ID              uuid.UUID `json:"id"`
	ValidationState string    `json:"validation_state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toPhysicianResponse(p credential.Physician) PhysicianResponse {
	return PhysicianResponse{
		ID:              p.ID,
		ValidationState: string(p.State),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type PhysicianStatusResponse struct {
	PhysicianID     uuid.UUID   `json:"physician_id"`
	ValidationState string      `json:"validation_state"`
	RequiredCount   int         `json:"required_count"`
	ApprovedCount   int         `json:"approved_count"`
	Submitted       int         `json:"submitted"`
	Pending         int         `json:"pending"`
	Rejected        int         `json:"rejected"`
	MissingTypes    []uuid.UUID `json:"missing_types"`
}

type CreateDocumentTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

type DocumentTypeResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

func toDocumentTypeResponse(t credential.DocumentType) DocumentTypeResponse {
	return DocumentTypeResponse{ID: t.ID, Name: t.Name, Description: t.Description, Required: t.Required}
}

type SubmitDocumentRequest struct {
	PhysicianID string `json:"physician_id"`
	TypeID      string `json:"type_id"`
	FileRef     string `json:"file_ref"`
}

type ReviewDocumentRequest struct {
	Decision        string `json:"decision"`
	Notes           string `json:"notes"`
	RejectPhysician bool   `json:"reject_physician"`
}

type DocumentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PhysicianID     uuid.UUID  `json:"physician_id"`
	TypeID          uuid.UUID  `json:"type_id"`
	FileRef         string     `json:"file_ref"`
	State           string     `json:"state"`
	ReviewerID      *uuid.UUID `json:"reviewer_id,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
	RejectPhysician bool       `json:"reject_physician,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

func toDocumentResponse(s credential.Submission) DocumentResponse {
	return DocumentResponse{
		ID:              s.ID,
		PhysicianID:     s.PhysicianID,
		TypeID:          s.DocumentTypeID,
		FileRef:         s.FileRef,
		State:           string(s.State),
		ReviewerID:      s.ReviewerID,
		ReviewNotes:     s.ReviewNotes,
		RejectPhysician: s.RejectPhysician,
		SubmittedAt:     s.SubmittedAt,
		DecidedAt:       s.DecidedAt,
	}
}

type ReviewResponse struct {
	Document       DocumentResponse `json:"document"`
	PhysicianState string           `json:"physician_state"`
	ApprovedCount  int              `json:"approved_count"`
	RequiredCount  int              `json:"required_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
