// Package apierr writes the API's JSON error envelope. Every failure
// response has the shape {"error": "..."} with a 4xx/5xx status; detail
// from the underlying error is only exposed outside production.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

type envelope struct {
	Error string `json:"error"`
}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

// Write emits the error envelope and logs through the request-scoped
// zerolog logger: 5xx at error level, 4xx at warn.
func Write(w http.ResponseWriter, r *http.Request, status int, message string, err error, env string) {
	body := envelope{Error: message}
	if err != nil && (env == "development" || env == "test") {
		body.Error = message + ": " + err.Error()
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(message)
	}

	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// Unauthorized, Forbidden, NotFound, Conflict, Validation, and Internal are
// the taxonomy shorthands used by handlers.

func Unauthorized(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusUnauthorized, "unauthorized", err, env)
}

func Forbidden(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusForbidden, "forbidden", err, env)
}

func NotFound(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusNotFound, "not found", err, env)
}

func Conflict(w http.ResponseWriter, r *http.Request, message string, err error, env string) {
	Write(w, r, http.StatusConflict, message, err, env)
}

func Validation(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusBadRequest, "invalid request", err, env)
}

func Internal(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusInternalServerError, "internal server error", err, env)
}
