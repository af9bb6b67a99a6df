package handler

// RESPONSE HELPERS
//
// Every endpoint answers with the same envelope:
//
//	{"success": true,  "message": "...", "data": ..., "pagination": ...}
//	{"success": false, "message": "..."}
//
// The HTTP status carries the error kind. writeError is the single place
// where apperror kinds become status codes, so handlers never pick a status
// for a failure themselves.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/service"
)

// Envelope is the JSON shape of every response.
type Envelope struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	DataFound   *int64              `json:"data_found,omitempty"`
	Pagination  *service.Pagination `json:"pagination,omitempty"`
	Data        any                 `json:"data,omitempty"`
	AccessToken string              `json:"accessToken,omitempty"`
}

const msgInternal = "An internal error occurred"

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader, which Encode would otherwise trigger implicitly.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// writePage sends one page of a listing with its pagination block.
func writePage[T any](w http.ResponseWriter, message string, page *service.Page[T]) {
	total := page.Total
	writeJSON(w, http.StatusOK, Envelope{
		Success:    true,
		Message:    message,
		DataFound:  &total,
		Pagination: &page.Pagination,
		Data:       page.Items,
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrNoChange):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError is the centralized failure responder.
//
// Only *apperror.AppError messages reach the client. Anything else is an
// unexpected failure: it is logged and answered with a generic 500 so that
// driver errors, file paths and the like never leak.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: msgInternal})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, Envelope{Message: appErr.Message})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}
