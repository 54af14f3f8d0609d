package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"warmsetd/internal/manager"
	"warmsetd/internal/quality"
	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case manager.IsNotConfigured(err):
		return http.StatusServiceUnavailable
	case manager.IsInvalidReference(err):
		return http.StatusBadRequest
	case manager.IsNotFound(err):
		return http.StatusNotFound
	case manager.IsNotActive(err), manager.IsNoBinding(err):
		return http.StatusConflict
	case manager.IsQualityGate(err):
		return http.StatusPreconditionFailed
	case quality.IsParseFailure(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, repo.ErrUnavailable), errors.Is(err, repo.ErrBadResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps err and writes it. Internal failures are not echoed
// to the client.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSONError(w, status, msg)
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
