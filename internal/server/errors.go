package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/opsgate/opsgate/internal/errs"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses:
// authentication 401, permission 403, validation 400, everything else
// 500. Internal detail never leaks to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *errs.AuthenticationError
	var permErr *errs.PermissionError
	var valErr *errs.ValidationError

	switch {
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication failed"})
	case errors.As(err, &permErr):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: permErr.Error()})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: valErr.Reason, Field: valErr.Field})
	default:
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.NewValidation("body", "malformed JSON request body")
	}
	return nil
}
