package authz

import (
	"context"
	"errors"

	"github.com/codr1/TennisBuddy/internal/booking"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const RoleAdmin = "admin"

// AuthUser is the caller identified by a verified bearer token.
type AuthUser struct {
	ID    string
	Email string
	Role  string
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

func IsAdmin(user *AuthUser) bool {
	return user != nil && user.Role == RoleAdmin
}

// RequireUser returns the authenticated caller or ErrUnauthenticated.
func RequireUser(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

func RequireAdmin(ctx context.Context) (*AuthUser, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !IsAdmin(user) {
		return nil, ErrForbidden
	}
	return user, nil
}

// RequireSelfOrAdmin allows the caller to act on userID when it is their own
// account or they are an admin.
func RequireSelfOrAdmin(ctx context.Context, userID string) (*AuthUser, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if user.ID != userID && !IsAdmin(user) {
		return nil, ErrForbidden
	}
	return user, nil
}

// Actor converts the caller into the identity the booking rules check ownership against.
func Actor(user *AuthUser) booking.Actor {
	if user == nil {
		return booking.Actor{}
	}
	return booking.Actor{UserID: user.ID, IsAdmin: IsAdmin(user)}
}
