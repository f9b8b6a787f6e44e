package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/digaomatias/mymascada/internal/common"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError maps application sentinel errors onto HTTP status codes.
// UserError is checked first so crafted messages win over the generic
// sentinel text they wrap. Internal error details are logged, not leaked.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var userErr *common.UserError

	switch {
	case errors.As(err, &userErr):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: userErr.UserMessage})
	case errors.Is(err, common.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, common.ErrAccessDenied):
		respondJSON(w, http.StatusForbidden, errorBody{Error: "access denied"})
	case errors.Is(err, common.ErrDuplicateEntry):
		respondJSON(w, http.StatusConflict, errorBody{Error: "duplicate entry"})
	case errors.Is(err, common.ErrCandidateResolved):
		respondJSON(w, http.StatusConflict, errorBody{Error: "candidate already resolved"})
	case errors.Is(err, common.ErrReconciliationFinalized):
		respondJSON(w, http.StatusConflict, errorBody{Error: "reconciliation already finalized"})
	case errors.Is(err, common.ErrItemNotMatched):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "item is not matched"})
	case errors.Is(err, common.ErrInvalidConfig), errors.Is(err, common.ErrMissingConfig):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return common.NewUserError("invalid request body", err)
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (s *Server) unavailable(w http.ResponseWriter, what string) {
	respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: what + " is not configured"})
}
