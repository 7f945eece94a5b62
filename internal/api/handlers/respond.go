package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dom/dreamhome-studio/internal/domain"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	// Detail is the upstream message a generation error was built from.
	Detail string `json:"detail,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func writeInternalError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	logger.Error(op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
}

// writeAuthError renders an AuthError with the provider code clients map on.
func writeAuthError(w http.ResponseWriter, err *domain.AuthError) {
	status := http.StatusBadRequest
	switch err.Kind {
	case domain.AuthInvalidCredential, domain.AuthPopupFailed:
		status = http.StatusUnauthorized
	case domain.AuthEmailAlreadyInUse:
		status = http.StatusConflict
	}
	writeError(w, status, string(err.Kind), err.Error())
}

func writeGenerationError(w http.ResponseWriter, err *domain.GenerationError) {
	detail := err.Message
	if detail == "" && err.Err != nil {
		detail = err.Err.Error()
	}
	writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: ErrorBody{
		Code:    string(err.Kind),
		Message: err.Error(),
		Status:  err.Status,
		Detail:  detail,
	}})
}

func asAuthError(err error) (*domain.AuthError, bool) {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(v)
}

// A saved design carries its base64 image inline.
const maxRequestBody = 16 << 20
