package apiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/TennisBuddy/internal/api/authz"
	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/db"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{name: "validation", err: booking.ValidationError{Field: "date", Reason: "is required"}, status: http.StatusBadRequest, body: "date is required"},
		{name: "invalid interval", err: booking.ErrInvalidInterval, status: http.StatusBadRequest, body: "start time must be before end time"},
		{name: "conflict", err: fmt.Errorf("wrapped: %w", booking.ConflictError{ExistingID: "r1"}), status: http.StatusConflict, body: "time slot overlaps"},
		{name: "not found", err: booking.NotFoundError{Resource: "court", ID: "c1"}, status: http.StatusNotFound, body: "Court not found"},
		{name: "forbidden", err: booking.ErrForbidden, status: http.StatusForbidden, body: "Forbidden"},
		{name: "unauthenticated", err: authz.ErrUnauthenticated, status: http.StatusUnauthorized, body: "Authentication required"},
		{name: "court in use", err: db.ErrCourtInUse, status: http.StatusConflict, body: "cannot be deleted"},
		{name: "email taken", err: db.ErrEmailTaken, status: http.StatusConflict, body: "Email already registered"},
		{name: "handler error", err: HandlerError{Status: http.StatusTeapot, Message: "short and stout"}, status: http.StatusTeapot, body: "short and stout"},
		{name: "internal", err: errors.New("disk on fire"), status: http.StatusInternalServerError, body: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			message, _ := body["error"].(string)
			if !strings.Contains(message, tt.body) {
				t.Fatalf("expected error containing %q, got %q", tt.body, message)
			}
			if strings.Contains(rec.Body.String(), "disk on fire") {
				t.Fatal("internal error details leaked to client")
			}
		})
	}
}

func TestDecodeJSONRejectsUnknownAndTrailing(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected trailing data to be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Name != "a" {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	type request struct {
		CourtID string `json:"courtId" validate:"required,uuid"`
		Date    string `json:"date" validate:"required,calendardate"`
		Start   string `json:"start" validate:"required,clock"`
		Surface string `json:"surface" validate:"omitempty,oneof=hard clay grass"`
		Name    string `json:"name" validate:"max=5"`
	}

	err := Validate(request{CourtID: "nope", Date: "2024-02-30", Start: "7:00", Surface: "sand", Name: "toolong"})
	var fieldErrs FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}

	got := map[string]string{}
	for _, fe := range fieldErrs {
		got[fe.Field] = fe.Reason
	}
	want := map[string]string{
		"courtId": "must be a valid id",
		"date":    "must be in YYYY-MM-DD format",
		"surface": "must be one of: hard, clay, grass",
		"name":    "must be at most 5 characters",
	}
	for field, reason := range want {
		if got[field] != reason {
			t.Errorf("field %s: expected %q, got %q", field, reason, got[field])
		}
	}
	if _, ok := got["start"]; ok {
		t.Error("expected H:MM start to be accepted")
	}
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("phone", "(650) 253-0000")
	if err != nil || got != "+16502530000" {
		t.Fatalf("expected +16502530000, got %q %v", got, err)
	}

	got, err = NormalizePhone("phone", "+44 20 7031 3000")
	if err != nil || got != "+442070313000" {
		t.Fatalf("expected +442070313000, got %q %v", got, err)
	}

	if _, err := NormalizePhone("phone", "12"); err == nil {
		t.Fatal("expected short number to be rejected")
	}
	if got, err := NormalizePhone("phone", "  "); err != nil || got != "" {
		t.Fatalf("expected blank phone to pass through, got %q %v", got, err)
	}
}
