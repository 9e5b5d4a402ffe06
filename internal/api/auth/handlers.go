package auth

import (
	"context"
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
)

// UserStore is the part of the user repository the auth handlers need.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	GetByID(ctx context.Context, id string) (*db.User, error)
}

var (
	users    UserStore
	issuer   *TokenIssuer
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(store UserStore, tokens *TokenIssuer) {
	if store == nil || tokens == nil {
		return
	}
	initOnce.Do(func() {
		users = store
		issuer = tokens
	})
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Skill    string `json:"skill" validate:"required,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// POST /api/v1/auth/signup
func HandleSignup(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil || issuer == nil {
		logger.Error().Msg("Auth handlers not initialized")
		apiutil.WriteError(w, r, errors.New("auth handlers not initialized"))
		return
	}

	var req signupRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := apiutil.Validate(req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	phone, err := apiutil.NormalizePhone("phone", req.Phone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	user := &db.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		Skill:        req.Skill,
		Role:         db.RoleMember,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if phone != "" {
		user.Phone = &phone
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrEmailTaken) {
			logger.Info().Str("email", user.Email).Msg("Signup rejected: email already registered")
		}
		apiutil.WriteError(w, r, err)
		return
	}

	token, err := issuer.Issue(user.ID, user.Role, user.Email)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Str("user_id", user.ID).Msg("User signed up")
	if err := apiutil.WriteJSON(w, http.StatusCreated, tokenResponse{Token: token, UserID: user.ID}); err != nil {
		logger.Error().Err(err).Msg("Failed to write signup response")
	}
}

// POST /api/v1/auth/login
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if users == nil || issuer == nil {
		logger.Error().Msg("Auth handlers not initialized")
		apiutil.WriteError(w, r, errors.New("auth handlers not initialized"))
		return
	}

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.Validate(req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	user, err := users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, booking.ErrNotFound) {
		apiutil.WriteError(w, r, err)
		return
	}
	if user == nil || !VerifyPassword(user.PasswordHash, req.Password) {
		logger.Warn().Msg("Login rejected: invalid credentials")
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusUnauthorized, Message: "Invalid email or password"})
		return
	}

	token, err := issuer.Issue(user.ID, user.Role, user.Email)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID}); err != nil {
		logger.Error().Err(err).Msg("Failed to write login response")
	}
}

// UserFromRequest verifies a bearer token on r. It returns nil, nil when
// no Authorization header is present. Role and email come from the user
// store so demotions and deletions apply to tokens already issued.
func UserFromRequest(r *http.Request) (*authz.AuthUser, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	if issuer == nil || users == nil {
		return nil, errors.New("auth handlers not initialized")
	}
	claims, err := issuer.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}

	ctx, cancel := apiutil.StoreContext(r)
	defer cancel()
	user, err := users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s no longer exists", ErrInvalidToken, claims.Subject)
		}
		return nil, fmt.Errorf("load token user: %w", err)
	}
	return &authz.AuthUser{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}
