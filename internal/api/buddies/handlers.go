// internal/api/buddies/handlers.go
package buddies

import (
	"context"
	"errors"
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
)

type BuddyStore interface {
	ListOpen(ctx context.Context, skill string) ([]db.BuddyPost, error)
	Get(ctx context.Context, id string) (*db.BuddyPost, error)
	Create(ctx context.Context, post *db.BuddyPost) error
	Update(ctx context.Context, id string, patch db.BuddyPatch, now time.Time) (*db.BuddyPost, error)
	Delete(ctx context.Context, id string) error
}

var (
	posts    BuddyStore
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(store BuddyStore) {
	if store == nil {
		return
	}
	initOnce.Do(func() {
		posts = store
	})
}

type createRequest struct {
	Skill        string `json:"skill" validate:"required,max=50"`
	Availability string `json:"availability" validate:"required,max=100"`
	Notes        string `json:"notes" validate:"max=500"`
}

type updateRequest struct {
	Skill        *string `json:"skill" validate:"omitempty,max=50"`
	Availability *string `json:"availability" validate:"omitempty,max=100"`
	Notes        *string `json:"notes" validate:"omitempty,max=500"`
	IsOpen       *bool   `json:"isOpen"`
}

type messageResponse struct {
	Message string `json:"message"`
}

var errNotInitialized = errors.New("buddy handlers not initialized")

// GET /api/v1/buddies?skill=
func HandleBuddiesList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if posts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	list, err := posts.ListOpen(ctx, strings.TrimSpace(r.URL.Query().Get("skill")))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, list); err != nil {
		logger.Error().Err(err).Msg("Failed to write buddy posts response")
	}
}

// GET /api/v1/buddies/{id}
func HandleBuddyGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if posts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	post, err := posts.Get(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, post); err != nil {
		logger.Error().Err(err).Msg("Failed to write buddy post response")
	}
}

// POST /api/v1/buddies
func HandleBuddyCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if posts == nil {
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
	req.Skill = strings.TrimSpace(req.Skill)
	req.Availability = strings.TrimSpace(req.Availability)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := apiutil.Validate(req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	post := &db.BuddyPost{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Skill:        req.Skill,
		Availability: req.Availability,
		Notes:        req.Notes,
		IsOpen:       true,
		CreatedAt:    time.Now().UTC(),
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if err := posts.Create(ctx, post); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	created, err := posts.Get(ctx, post.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Str("post_id", post.ID).Str("user_id", user.ID).Msg("Buddy post created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Msg("Failed to write buddy post response")
	}
}

// PATCH /api/v1/buddies/{id}
func HandleBuddyUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if posts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	patch, err := buildPatch(req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if _, err := loadOwned(ctx, r, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	post, err := posts.Update(ctx, id, patch, time.Now().UTC())
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("post_id", id).Msg("Buddy post updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, post); err != nil {
		logger.Error().Err(err).Msg("Failed to write buddy post response")
	}
}

// PATCH /api/v1/buddies/{id}/close
func HandleBuddyClose(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if posts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if _, err := loadOwned(ctx, r, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	closed := false
	if _, err := posts.Update(ctx, id, db.BuddyPatch{IsOpen: &closed}, time.Now().UTC()); err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("post_id", id).Msg("Buddy post closed")
	if err := apiutil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Buddy post closed successfully"}); err != nil {
		logger.Error().Err(err).Msg("Failed to write buddy post response")
	}
}

// DELETE /api/v1/buddies/{id}
func HandleBuddyDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if posts == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if _, err := loadOwned(ctx, r, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := posts.Delete(ctx, id); err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("post_id", id).Msg("Buddy post deleted")
	if err := apiutil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Buddy post deleted successfully"}); err != nil {
		logger.Error().Err(err).Msg("Failed to write buddy post response")
	}
}

// loadOwned is the one place buddy post ownership is checked. Admins may
// moderate any post.
func loadOwned(ctx context.Context, r *http.Request, id string) (*db.BuddyPost, error) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		return nil, err
	}
	post, err := posts.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	if post.UserID != user.ID && !authz.IsAdmin(user) {
		return nil, authz.ErrForbidden
	}
	return post, nil
}

func buildPatch(req updateRequest) (db.BuddyPatch, error) {
	patch := db.BuddyPatch{IsOpen: req.IsOpen}
	for _, field := range []struct {
		name     string
		value    *string
		required bool
		dst      **string
	}{
		{name: "skill", value: req.Skill, required: true, dst: &patch.Skill},
		{name: "availability", value: req.Availability, required: true, dst: &patch.Availability},
		{name: "notes", value: req.Notes, dst: &patch.Notes},
	} {
		if field.value == nil {
			continue
		}
		v := strings.TrimSpace(*field.value)
		if field.required && v == "" {
			return db.BuddyPatch{}, apiutil.FieldError{Field: field.name, Reason: "is required"}
		}
		*field.dst = &v
	}
	if patch == (db.BuddyPatch{}) {
		return db.BuddyPatch{}, apiutil.FieldError{Field: "body", Reason: "must contain at least one field"}
	}
	if err := apiutil.Validate(updateRequest{Skill: patch.Skill, Availability: patch.Availability, Notes: patch.Notes}); err != nil {
		return db.BuddyPatch{}, err
	}
	return patch, nil
}

func notFound(err error, id string) error {
	if errors.Is(err, booking.ErrNotFound) {
		return booking.NotFoundError{Resource: "buddy post", ID: id}
	}
	return err
}
