package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

// registerPhysicianHandler registers the caller, or the given physician when
// an administrator calls. An empty body registers the caller.
func registerPhysicianHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerOf(r)

		var req RegisterPhysicianRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeServiceError(w, r, log, err)
				return
			}
		}

		id := caller.ID
		if req.PhysicianID != "" {
			var err error
			if id, err = parseUUID(req.PhysicianID, "physician_id"); err != nil {
				writeServiceError(w, r, log, err)
				return
			}
		}

		p, err := gate.RegisterPhysician(r.Context(), caller, id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPhysicianResponse(*p))
	}
}

func listPhysiciansHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := credential.StateApproved
		if v := r.URL.Query().Get("state"); v != "" {
			state = credential.State(v)
			if !state.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_argument", "state must be pending, approved or rejected")
				return
			}
		}

		physicians, err := gate.ListPhysiciansByState(r.Context(), callerOf(r), state)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := make([]PhysicianResponse, 0, len(physicians))
		for _, p := range physicians {
			resp = append(resp, toPhysicianResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func physicianStatusHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		st, err := gate.PhysicianStatus(r.Context(), callerOf(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		missing := st.Missing
		if missing == nil {
			missing = []uuid.UUID{}
		}
		writeJSON(w, http.StatusOK, PhysicianStatusResponse{
			PhysicianID:     st.PhysicianID,
			ValidationState: string(st.State),
			RequiredCount:   st.RequiredCount,
			ApprovedCount:   st.ApprovedCount,
			Submitted:       st.Submitted,
			Pending:         st.Pending,
			Rejected:        st.Rejected,
			MissingTypes:    missing,
		})
	}
}

func listDocumentsHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		subs, err := gate.ListDocuments(r.Context(), callerOf(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := make([]DocumentResponse, 0, len(subs))
		for _, s := range subs {
			resp = append(resp, toDocumentResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listDocumentTypesHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := gate.ListDocumentTypes(r.Context())
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := make([]DocumentTypeResponse, 0, len(types))
		for _, t := range types {
			resp = append(resp, toDocumentTypeResponse(t))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createDocumentTypeHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDocumentTypeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		t, err := gate.CreateDocumentType(r.Context(), callerOf(r), req.Name, req.Description, req.Required)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toDocumentTypeResponse(*t))
	}
}

func submitDocumentHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitDocumentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		physicianID, err := parseUUID(req.PhysicianID, "physician_id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		typeID, err := parseUUID(req.TypeID, "type_id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		sub, err := gate.SubmitDocument(r.Context(), callerOf(r), physicianID, typeID, req.FileRef)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toDocumentResponse(*sub))
	}
}

func reviewDocumentHandler(gate *credential.Gate, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		var req ReviewDocumentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		res, err := gate.ReviewDocument(r.Context(), callerOf(r), credential.Review{
			DocumentID:      id,
			Decision:        credential.Decision(req.Decision),
			Notes:           req.Notes,
			RejectPhysician: req.RejectPhysician,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, ReviewResponse{
			Document:       toDocumentResponse(res.Document),
			PhysicianState: string(res.PhysicianState),
			ApprovedCount:  res.ApprovedCount,
			RequiredCount:  res.RequiredCount,
		})
	}
}
