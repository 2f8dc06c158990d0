package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/telemed-scheduling/internal/slot"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

func createSlotsHandler(reg *slot.Registry, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		physicianID, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		var req CreateSlotsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		rng, err := parseRange(req)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		slots, err := reg.CreateSlots(r.Context(), callerOf(r), physicianID, rng)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponses(slots))
	}
}

func parseRange(req CreateSlotsRequest) (slot.Range, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return slot.Range{}, err
	}
	start, err := parseClock(req.Start, "start")
	if err != nil {
		return slot.Range{}, err
	}
	end, err := parseClock(req.End, "end")
	if err != nil {
		return slot.Range{}, err
	}
	return slot.Range{Date: date, Start: start, End: end}, nil
}

// listSlotsHandler returns bookable slots with ?available=true and the
// owner's full agenda otherwise.
func listSlotsHandler(reg *slot.Registry, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		physicianID, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		onlyAvailable := false
		if v := r.URL.Query().Get("available"); v != "" {
			onlyAvailable, err = strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_argument", "available must be a boolean")
				return
			}
		}

		var slots []slot.Slot
		if onlyAvailable {
			slots, err = reg.ListAvailable(r.Context(), physicianID)
		} else {
			slots, err = reg.ListSlots(r.Context(), callerOf(r), physicianID)
		}
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func toggleSlotHandler(reg *slot.Registry, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := urlUUID(r, "id")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		var req ToggleSlotRequest
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if req.Available == nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "available is required")
			return
		}

		s, err := reg.Toggle(r.Context(), callerOf(r), slotID, *req.Available)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*s))
	}
}
