package apiutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/api/authz"
	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/db"
)

// StoreTimeout bounds every store call a handler makes.
const StoreTimeout = 5 * time.Second

const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// FieldErrors is a set of validation failures reported together.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// StoreContext derives the per-request store deadline.
func StoreContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), StoreTimeout)
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return HandlerError{Status: http.StatusBadRequest, Message: "Missing request body"}
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return HandlerError{Status: http.StatusBadRequest, Message: "Missing request body", Err: err}
		}
		return HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body"}
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError maps err onto a status and a JSON error body. Unexpected errors
// are logged here and reported to the client generically.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	logger := log.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	if writeErr := WriteJSON(w, status, body); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}

func classify(err error) (int, errorBody) {
	var (
		handlerErr HandlerError
		fieldErrs  FieldErrors
		fieldErr   FieldError
		validation booking.ValidationError
		notFound   booking.NotFoundError
	)

	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest, errorBody{Error: "Validation failed", Details: fieldErrs}
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, errorBody{Error: fieldErr.Error(), Details: []FieldError{fieldErr}}
	case errors.As(err, &validation):
		detail := FieldError{Field: validation.Field, Reason: validation.Reason}
		return http.StatusBadRequest, errorBody{Error: validation.Error(), Details: []FieldError{detail}}
	case errors.Is(err, booking.ErrInvalidInterval):
		return http.StatusBadRequest, errorBody{Error: booking.ErrInvalidInterval.Error()}
	case errors.As(err, &handlerErr):
		return handlerErr.Status, errorBody{Error: handlerErr.Message}
	case errors.Is(err, authz.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: "Authentication required"}
	case errors.Is(err, authz.ErrForbidden), errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "Forbidden"}
	case errors.Is(err, booking.ErrBookingConflict):
		return http.StatusConflict, errorBody{Error: booking.ErrBookingConflict.Error()}
	case errors.Is(err, db.ErrCourtInUse):
		return http.StatusConflict, errorBody{Error: "Court has reservations and cannot be deleted"}
	case errors.Is(err, db.ErrEmailTaken):
		return http.StatusConflict, errorBody{Error: "Email already registered"}
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorBody{Error: capitalize(notFound.Error())}
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "Not found"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorBody{Error: "Request timed out"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
