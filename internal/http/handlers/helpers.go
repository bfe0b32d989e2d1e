package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voltway/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps typed domain errors to HTTP status codes. Conflicts
// carry the blocking window so the UI can propose alternatives.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation *service.ValidationError
		conflict   *service.ConflictError
		notFound   *service.NotFoundError
		badState   *service.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Msg)
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":          "requested window overlaps an existing reservation",
			"conflict_start": conflict.Start.Format(time.RFC3339),
			"conflict_end":   conflict.End.Format(time.RFC3339),
		})
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Msg)
	case errors.As(err, &badState):
		writeError(w, http.StatusConflict, badState.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
