// internal/api/courts/handlers.go
package courts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/api/apiutil"
	"github.com/codr1/TennisBuddy/internal/api/authz"
	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/db"
	"github.com/codr1/TennisBuddy/internal/events"
)

// CourtStore is the court repository used by the handlers.
type CourtStore interface {
	List(ctx context.Context, filter db.CourtFilter) ([]db.Court, error)
	Get(ctx context.Context, id string) (*db.Court, error)
	Create(ctx context.Context, court *db.Court) error
	Update(ctx context.Context, id string, patch db.CourtPatch, now time.Time) (*db.Court, error)
	Delete(ctx context.Context, id string) error
}

var (
	courts   CourtStore
	registry *events.Registry
	initOnce sync.Once
)

const (
	streamBuffer    = 16
	streamKeepAlive = 25 * time.Second
)

// InitHandlers must be called during server startup before handling requests.
// reg may be nil, in which case the event stream is unavailable.
func InitHandlers(store CourtStore, reg *events.Registry) {
	if store == nil {
		return
	}
	initOnce.Do(func() {
		courts = store
		registry = reg
	})
}

type hoursRequest struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

type createRequest struct {
	Name      string        `json:"name" validate:"required,max=100"`
	Surface   string        `json:"surface" validate:"required,oneof=hard clay grass"`
	Location  string        `json:"location" validate:"required,max=100"`
	OpenHours *hoursRequest `json:"openHours"`
}

type updateRequest struct {
	Name      *string       `json:"name" validate:"omitempty,max=100"`
	Surface   *string       `json:"surface" validate:"omitempty,oneof=hard clay grass"`
	Location  *string       `json:"location" validate:"omitempty,max=100"`
	OpenHours *hoursRequest `json:"openHours"`
}

type messageResponse struct {
	Message string `json:"message"`
}

var errNotInitialized = errors.New("court handlers not initialized")

// GET /api/v1/courts?surface=&location=
func HandleCourtsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if courts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	filter := db.CourtFilter{
		Surface:  strings.TrimSpace(r.URL.Query().Get("surface")),
		Location: strings.TrimSpace(r.URL.Query().Get("location")),
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	list, err := courts.List(ctx, filter)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, list); err != nil {
		logger.Error().Err(err).Msg("Failed to write courts response")
	}
}

// GET /api/v1/courts/{id}
func HandleCourtGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if courts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	court, err := courts.Get(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, court); err != nil {
		logger.Error().Err(err).Msg("Failed to write court response")
	}
}

// POST /api/v1/courts
func HandleCourtCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if courts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if err := apiutil.Validate(req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	court := &db.Court{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Surface:   req.Surface,
		Location:  req.Location,
		CreatedAt: time.Now().UTC(),
	}
	if req.OpenHours != nil {
		start, end, err := parseHours(*req.OpenHours)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		court.OpenStart, court.OpenEnd = start, end
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if err := courts.Create(ctx, court); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Str("court_id", court.ID).Str("name", court.Name).Msg("Court created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, court); err != nil {
		logger.Error().Err(err).Msg("Failed to write court response")
	}
}

// PATCH /api/v1/courts/{id}
func HandleCourtUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if courts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	req.Name = trimmed(req.Name)
	req.Location = trimmed(req.Location)
	if req.Name != nil && *req.Name == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "name", Reason: "is required"})
		return
	}
	if req.Location != nil && *req.Location == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "location", Reason: "is required"})
		return
	}
	if err := apiutil.Validate(req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	patch := db.CourtPatch{Name: req.Name, Surface: req.Surface, Location: req.Location}
	if req.OpenHours != nil {
		start, end, err := parseHours(*req.OpenHours)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		patch.OpenStart, patch.OpenEnd = &start, &end
	}
	if patch == (db.CourtPatch{}) {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "body", Reason: "must contain at least one field"})
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	court, err := courts.Update(ctx, id, patch, time.Now().UTC())
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("court_id", id).Msg("Court updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, court); err != nil {
		logger.Error().Err(err).Msg("Failed to write court response")
	}
}

// DELETE /api/v1/courts/{id}
func HandleCourtDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if courts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if err := courts.Delete(ctx, id); err != nil {
		if errors.Is(err, db.ErrCourtInUse) {
			logger.Info().Str("court_id", id).Msg("Court delete rejected: reservations exist")
		}
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("court_id", id).Msg("Court deleted")
	if err := apiutil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Court deleted successfully"}); err != nil {
		logger.Error().Err(err).Msg("Failed to write court delete response")
	}
}

// GET /api/v1/courts/{id}/events
func HandleCourtEvents(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if courts == nil || registry == nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Event stream unavailable"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		apiutil.WriteError(w, r, errors.New("response writer does not support flushing"))
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	_, err := courts.Get(ctx, id)
	cancel()
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	stream := make(chan events.Event, streamBuffer)
	unsubscribe := registry.Subscribe(id, func(_ context.Context, ev events.Event) error {
		select {
		case stream <- ev:
			return nil
		default:
			return fmt.Errorf("court %s event stream is full", id)
		}
	})
	defer unsubscribe()

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger.Debug().Str("court_id", id).Msg("Court event stream opened")
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str("court_id", id).Msg("Court event stream closed")
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev := <-stream:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error().Err(err).Str("event_type", ev.Type).Msg("Failed to encode court event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func parseHours(req hoursRequest) (string, string, error) {
	start, err := booking.ParseClockTime(req.Start)
	if err != nil {
		return "", "", apiutil.FieldError{Field: "openHours.start", Reason: "must be in HH:MM format"}
	}
	end, err := booking.ParseClockTime(req.End)
	if err != nil {
		return "", "", apiutil.FieldError{Field: "openHours.end", Reason: "must be in HH:MM format"}
	}
	if start >= end {
		return "", "", apiutil.FieldError{Field: "openHours", Reason: "start must be before end"}
	}
	return start.String(), end.String(), nil
}

func notFound(err error, id string) error {
	if errors.Is(err, booking.ErrNotFound) {
		return booking.NotFoundError{Resource: "court", ID: id}
	}
	return err
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
