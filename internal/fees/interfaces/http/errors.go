package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"coaching-fees/internal/auth"
	fees "coaching-fees/internal/fees/domain"
)

const timeLayout = time.RFC3339

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrTenantMismatch):
		return http.StatusForbidden
	case errors.Is(err, fees.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, fees.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fees.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var verr *fees.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if status == http.StatusForbidden {
		body.Error = "forbidden"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return fees.Invalid("body", "required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fees.Invalid("body", err.Error())
	}
	return nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, ok := parseDate(value)
	if !ok {
		return time.Time{}, fees.Invalid(key, "must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

// parseDate accepts an RFC3339 timestamp or a bare YYYY-MM-DD date.
func parseDate(value string) (time.Time, bool) {
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t.UTC(), true
	}
	if d, err := time.Parse(time.DateOnly, value); err == nil {
		return d, true
	}
	return time.Time{}, false
}
