package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/felixgeelhaar/mutaflow/domain/event"
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/distributed/lock"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
	"github.com/felixgeelhaar/mutaflow/infrastructure/telemetry"
)

// The first match wins: InvalidStateForRole wraps RoleNotAuthorizedForStatus
// on ineligibility, and must stay a conflict.
var statusCodes = []struct {
	err  error
	code int
}{
	{workflow.ErrMissingComment, http.StatusBadRequest},
	{mutation.ErrInvalidRequest, http.StatusBadRequest},
	{mutation.ErrUnknownKind, http.StatusBadRequest},
	{validation.ErrUnknownOutcome, http.StatusBadRequest},
	{workflow.ErrInvalidStateForRole, http.StatusConflict},
	{workflow.ErrDuplicateDecision, http.StatusConflict},
	{mutation.ErrStatusConflict, http.StatusConflict},
	{mutation.ErrRequestExists, http.StatusConflict},
	{lock.ErrLockHeld, http.StatusConflict},
	{workflow.ErrRoleNotAuthorizedForStatus, http.StatusForbidden},
	{workflow.ErrOutOfScope, http.StatusForbidden},
	{workflow.ErrUnresolvedScope, http.StatusForbidden},
	{workflow.ErrNotRequester, http.StatusForbidden},
	{workflow.ErrUnknownStatus, http.StatusUnprocessableEntity},
	{mutation.ErrRequestNotFound, http.StatusNotFound},
	{event.ErrStreamNotFound, http.StatusNotFound},
	{identity.ErrUnauthenticated, http.StatusUnauthorized},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized},
	{identity.ErrUnknownRole, http.StatusUnauthorized},
}

// StatusCode maps an error to the HTTP status reported to the caller.
func StatusCode(err error) int {
	for _, s := range statusCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	kind := telemetry.ErrorKind(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		logging.Error().
			Add(logging.Component("api")).
			Add(logging.Str("path", r.URL.Path)).
			Add(logging.ErrorField(err)).
			Msg("request failed")
		message = "internal error"
	}
	if code == http.StatusUnauthorized {
		kind = "unauthenticated"
	}
	writeJSON(w, code, ErrorBody{Error: ErrorDetail{Code: kind, Message: message}})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
		Code:    "invalid_body",
		Message: "request body failed validation",
		Fields:  fields,
	}})
}
