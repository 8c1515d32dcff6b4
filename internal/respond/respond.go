// Package respond holds the JSON response and form helpers shared by the
// HTTP handlers.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/middleware"
)

// ErrorBody: тело любого ответа с ошибкой.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Error writes err with the status StatusFor picks. 5xx are logged at error
// level with the underlying cause; the client only sees a generic message.
func Error(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(status)
	}
	_ = JSON(w, status, ErrorBody{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}

// BadRequest is for malformed input caught by the handler itself.
func BadRequest(w http.ResponseWriter, msg string) {
	_ = JSON(w, http.StatusBadRequest, ErrorBody{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}

// StatusFor maps domain errors to HTTP statuses.
func StatusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, model.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConfigValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrMissingBarcode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Logger привязывает req_id: из контекста (middleware.RequestID) или из заголовка.
func Logger(r *http.Request, base zerolog.Logger) zerolog.Logger {
	rid := middleware.GetRequestID(r)
	if rid == "" {
		rid = r.Header.Get("X-Request-ID")
	}
	if rid != "" {
		return base.With().Str("req_id", rid).Logger()
	}
	return base
}

func Atoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}

func ToBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
