package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/waifuvault/WaifuFiles/internal/errvalues"
)

// StatusClientClosedRequest is nginx's non-standard code for a request the
// client abandoned. Part of the finalize contract.
const StatusClientClosedRequest = 499

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// httpStatusFromError maps classified finalize failures onto the wire
// contract.
func httpStatusFromError(err error) int {
	switch {
	case errors.Is(err, errvalues.ErrSessionExpired):
		return http.StatusNotFound
	case errors.Is(err, errvalues.ErrNoChunks):
		return http.StatusBadRequest
	case errors.Is(err, errvalues.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.Is(err, errvalues.ErrVaultTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, errvalues.ErrOutOfMemory):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errvalues.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errvalues.ErrCancelled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
