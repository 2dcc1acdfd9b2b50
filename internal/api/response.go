package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"vidtube/internal/media"
	"vidtube/internal/session"
)

const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeUploadFailed      = "UPLOAD_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred")
}

// writeSessionError maps the session error taxonomy onto transport statuses.
// Only the classified client-safe message is surfaced; causes stay in logs.
func writeSessionError(w http.ResponseWriter, err error) {
	message := session.Message(err)

	switch session.KindOf(err) {
	case session.KindValidation:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
	case session.KindConflict:
		writeError(w, http.StatusConflict, ErrCodeConflict, message)
	case session.KindNotFound:
		writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
	case session.KindAuth:
		writeError(w, http.StatusUnauthorized, ErrCodeAuthFailed, message)
	case session.KindUpload:
		writeUploadError(w, err, message)
	default:
		slog.Error("unexpected session error", "error", err)
		internalError(w)
	}
}

// writeUploadError separates media validation failures, which are the
// client's fault, from store failures. Only the latter are a 500.
func writeUploadError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, media.ErrDisallowedType):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unsupported media type")
	case errors.Is(err, media.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "media file too large")
	default:
		slog.Error("media upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeUploadFailed, message)
	}
}
