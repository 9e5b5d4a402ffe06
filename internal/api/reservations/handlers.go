// internal/api/reservations/handlers.go
package reservations

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/api/apiutil"
	"github.com/codr1/TennisBuddy/internal/api/authz"
	"github.com/codr1/TennisBuddy/internal/booking"
)

// Service is the booking core as the handlers see it.
type Service interface {
	CreateBooking(ctx context.Context, actor booking.Actor, req booking.CreateRequest) (*booking.Reservation, error)
	UpdateBooking(ctx context.Context, actor booking.Actor, id string, patch booking.Patch) (*booking.Reservation, error)
	CancelBooking(ctx context.Context, actor booking.Actor, id string) error
	GetBooking(ctx context.Context, id string) (*booking.Reservation, error)
	ListForCourtAndDate(ctx context.Context, courtID, date string) ([]booking.Reservation, error)
	ListForUser(ctx context.Context, userID string) ([]booking.Reservation, error)
}

var (
	service     Service
	serviceOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s Service) {
	if s == nil {
		return
	}
	serviceOnce.Do(func() {
		service = s
	})
}

type createRequest struct {
	CourtID string `json:"courtId"`
	Date    string `json:"date"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type updateRequest struct {
	CourtID *string `json:"courtId"`
	Date    *string `json:"date"`
	Start   *string `json:"start"`
	End     *string `json:"end"`
}

type messageResponse struct {
	Message string `json:"message"`
}

var errNotInitialized = errors.New("reservation handlers not initialized")

// POST /api/v1/reservations
func HandleReservationCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	reservation, err := service.CreateBooking(ctx, authz.Actor(user), booking.CreateRequest{
		CourtID: strings.TrimSpace(req.CourtID),
		Date:    strings.TrimSpace(req.Date),
		Start:   strings.TrimSpace(req.Start),
		End:     strings.TrimSpace(req.End),
	})
	if err != nil {
		if errors.Is(err, booking.ErrBookingConflict) {
			logger.Info().
				Str("court_id", req.CourtID).
				Str("date", req.Date).
				Str("start", req.Start).
				Str("end", req.End).
				Msg("Reservation rejected: slot taken")
		}
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().
		Str("reservation_id", reservation.ID).
		Str("court_id", reservation.CourtID).
		Str("user_id", reservation.UserID).
		Msg("Reservation created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, reservation); err != nil {
		logger.Error().Err(err).Msg("Failed to write reservation response")
	}
}

// GET /api/v1/reservations?courtId=&date= | ?date= | ?userId=
func HandleReservationsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	query := r.URL.Query()
	courtID := strings.TrimSpace(query.Get("courtId"))
	date := strings.TrimSpace(query.Get("date"))
	userID := strings.TrimSpace(query.Get("userId"))

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()

	var (
		reservations []booking.Reservation
		err          error
	)
	switch {
	case userID != "":
		if userID == "me" {
			user, authErr := authz.RequireUser(r.Context())
			if authErr != nil {
				apiutil.WriteError(w, r, authErr)
				return
			}
			userID = user.ID
		}
		reservations, err = service.ListForUser(ctx, userID)
	case date != "":
		reservations, err = service.ListForCourtAndDate(ctx, courtID, date)
	default:
		err = apiutil.FieldError{Field: "date", Reason: "is required unless userId is given"}
	}
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if reservations == nil {
		reservations = []booking.Reservation{}
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, reservations); err != nil {
		logger.Error().Err(err).Msg("Failed to write reservations response")
	}
}

// GET /api/v1/reservations/{id}
func HandleReservationGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	reservation, err := service.GetBooking(ctx, r.PathValue("id"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, reservation); err != nil {
		logger.Error().Err(err).Msg("Failed to write reservation response")
	}
}

// PATCH /api/v1/reservations/{id}
func HandleReservationUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	reservation, err := service.UpdateBooking(ctx, authz.Actor(user), id, booking.Patch{
		CourtID: trimmed(req.CourtID),
		Date:    trimmed(req.Date),
		Start:   trimmed(req.Start),
		End:     trimmed(req.End),
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Str("reservation_id", id).Str("user_id", user.ID).Msg("Reservation updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, reservation); err != nil {
		logger.Error().Err(err).Msg("Failed to write reservation response")
	}
}

// DELETE /api/v1/reservations/{id}
func HandleReservationDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if err := service.CancelBooking(ctx, authz.Actor(user), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Str("reservation_id", id).Str("user_id", user.ID).Msg("Reservation cancelled")
	if err := apiutil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Reservation cancelled successfully"}); err != nil {
		logger.Error().Err(err).Msg("Failed to write cancel response")
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
