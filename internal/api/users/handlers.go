// internal/api/users/handlers.go
package users

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/api/apiutil"
	"github.com/codr1/TennisBuddy/internal/api/authz"
	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/db"
)

type UserStore interface {
	GetByID(ctx context.Context, id string) (*db.User, error)
	List(ctx context.Context) ([]db.User, error)
	Update(ctx context.Context, id string, patch db.UserPatch, now time.Time) (*db.User, error)
	Delete(ctx context.Context, id string) error
}

var (
	users    UserStore
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(store UserStore) {
	if store == nil {
		return
	}
	initOnce.Do(func() {
		users = store
	})
}

type updateRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Skill *string `json:"skill" validate:"omitempty,max=50"`
	Phone *string `json:"phone" validate:"omitempty,max=32"`
}

type messageResponse struct {
	Message string `json:"message"`
}

var errNotInitialized = errors.New("user handlers not initialized")

// GET /api/v1/users/me
func HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	caller, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	user, err := users.GetByID(ctx, caller.ID)
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, caller.ID))
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, user); err != nil {
		logger.Error().Err(err).Msg("Failed to write user response")
	}
}

// GET /api/v1/users
func HandleUsersList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	list, err := users.List(ctx)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, list); err != nil {
		logger.Error().Err(err).Msg("Failed to write users response")
	}
}

// GET /api/v1/users/{id}
func HandleUserGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	user, err := users.GetByID(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, user); err != nil {
		logger.Error().Err(err).Msg("Failed to write user response")
	}
}

// PATCH /api/v1/users/{id}
func HandleUserUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	if _, err := authz.RequireSelfOrAdmin(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if req.Name == nil && req.Skill == nil && req.Phone == nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "body", Reason: "must contain at least one field"})
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "name", Reason: "is required"})
			return
		}
		req.Name = &name
	}
	if req.Skill != nil {
		skill := strings.TrimSpace(*req.Skill)
		if skill == "" {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "skill", Reason: "is required"})
			return
		}
		req.Skill = &skill
	}
	if err := apiutil.Validate(req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	patch := db.UserPatch{Name: req.Name, Skill: req.Skill}
	if req.Phone != nil {
		// An empty phone clears the stored number.
		phone, err := apiutil.NormalizePhone("phone", *req.Phone)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		patch.Phone = &phone
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	user, err := users.Update(ctx, id, patch, time.Now().UTC())
	if err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("user_id", id).Msg("User updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, user); err != nil {
		logger.Error().Err(err).Msg("Failed to write user response")
	}
}

// DELETE /api/v1/users/{id}
func HandleUserDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	id := r.PathValue("id")
	if _, err := authz.RequireSelfOrAdmin(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if err := users.Delete(ctx, id); err != nil {
		apiutil.WriteError(w, r, notFound(err, id))
		return
	}

	logger.Info().Str("user_id", id).Msg("User deleted")
	if err := apiutil.WriteJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"}); err != nil {
		logger.Error().Err(err).Msg("Failed to write user delete response")
	}
}

func notFound(err error, id string) error {
	if errors.Is(err, booking.ErrNotFound) {
		return booking.NotFoundError{Resource: "user", ID: id}
	}
	return err
}
