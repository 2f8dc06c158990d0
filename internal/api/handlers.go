package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

func callerOf(r *http.Request) auth.Caller {
	c, _ := CallerFrom(r.Context())
	return c
}

func createAppointmentHandler(svc *appointment.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		patientID, err := parseUUID(req.PatientID, "patient_id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		physicianID, err := parseUUID(req.PhysicianID, "physician_id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		slotID, err := parseUUID(req.SlotID, "slot_id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		appt, err := svc.Book(r.Context(), callerOf(r), appointment.BookRequest{
			PatientID:   patientID,
			PhysicianID: physicianID,
			SlotID:      slotID,
			Reason:      req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

type transitionFunc func(ctx context.Context, caller auth.Caller, id uuid.UUID) (*appointment.Appointment, error)

// transitionHandler serves accept and complete, which take no body.
func transitionHandler(apply transitionFunc, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		appt, err := apply(r.Context(), callerOf(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		var req CancelAppointmentRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeServiceError(w, r, log, err)
				return
			}
		}

		appt, err := svc.Cancel(r.Context(), callerOf(r), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		appt, err := svc.Get(r.Context(), callerOf(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler serves ?patient_id= and ?physician_id=; exactly
// one must be given.
func listAppointmentsHandler(svc *appointment.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patient, physician := q.Get("patient_id"), q.Get("physician_id")
		if (patient == "") == (physician == "") {
			writeError(w, http.StatusBadRequest, "invalid_argument", "exactly one of patient_id or physician_id is required")
			return
		}

		var (
			appts []appointment.Appointment
			err   error
		)
		if patient != "" {
			var id uuid.UUID
			if id, err = parseUUID(patient, "patient_id"); err == nil {
				appts, err = svc.ListByPatient(r.Context(), callerOf(r), id)
			}
		} else {
			var id uuid.UUID
			if id, err = parseUUID(physician, "physician_id"); err == nil {
				appts, err = svc.ListByPhysician(r.Context(), callerOf(r), id)
			}
		}
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
