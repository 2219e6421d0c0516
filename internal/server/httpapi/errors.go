// Package httpapi exposes the service over JSON HTTP. Handlers translate
// between wire shapes and the service layer; all error mapping to status
// codes lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/logging"
	"github.com/yerakh/cloudvault/internal/server/services"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a service error to a status code and machine-readable code.
func writeError(ctx context.Context, w http.ResponseWriter, logger logging.Logger, err error) {
	var notFound *services.FolderNotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Code:        "not_found",
			Message:     notFound.Error(),
			Suggestions: notFound.Suggestions,
		}})
		return
	}

	var partial *services.PartialDeleteError
	if errors.As(err, &partial) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    "partial_failure",
			Message: "file removed from storage but its record could not be deleted",
		}})
		return
	}

	status, code, message := http.StatusInternalServerError, "internal_error", "internal error"
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		status, code, message = http.StatusUnauthorized, "token_expired", "token has expired"
	case errors.Is(err, common.ErrTokenInvalid):
		status, code, message = http.StatusUnauthorized, "token_invalid", "token is invalid"
	case errors.Is(err, common.ErrSecurityAlert):
		status, code, message = http.StatusUnauthorized, "session_revoked",
			"session revoked due to suspicious token use, log in again"
	case errors.Is(err, common.ErrorUnauthorized):
		status, code, message = http.StatusUnauthorized, "unauthorized", "authentication required"
	case errors.Is(err, common.ErrorForbidden):
		status, code, message = http.StatusForbidden, "forbidden", "access denied"
	case errors.Is(err, common.ErrorConflict):
		status, code, message = http.StatusConflict, "conflict", "resource already exists"
	case errors.Is(err, common.ErrQuotaExceeded):
		status, code, message = http.StatusRequestEntityTooLarge, "quota_exceeded", "storage quota exceeded"
	case errors.Is(err, common.ErrorNotFound):
		status, code, message = http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, common.ErrExternalService):
		status, code, message = http.StatusBadGateway, "external_service_failure",
			"an upstream service is unavailable, try again"
	}

	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "error", err.Error())
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "bad_request", Message: message}})
}
