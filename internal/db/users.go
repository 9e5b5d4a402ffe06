package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/codr1/TennisBuddy/internal/booking"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// ErrEmailTaken is returned when creating a user whose email already exists.
var ErrEmailTaken = errors.New("email already registered")

type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	Skill        string     `json:"skill" db:"skill"`
	Phone        *string    `json:"phone,omitempty" db:"phone"`
	Role         string     `json:"role" db:"role"`
	PasswordHash string     `json:"-" db:"password_hash"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type UserPatch struct {
	Name  *string
	Skill *string
	Phone *string
}

type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

const userSelect = `
	SELECT id, email, name, skill, phone, role, password_hash, created_at, updated_at
	FROM users`

// Create stores user with a lowercased email. It returns ErrEmailTaken on duplicates.
func (s *UserStore) Create(ctx context.Context, user *User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Role == "" {
		user.Role = RoleMember
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, name, skill, phone, role, password_hash, created_at)
		VALUES (:id, :email, :name, :skill, :phone, :role, :password_hash, :created_at)`, user)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.getOne(ctx, userSelect+` WHERE id = ?`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getOne(ctx, userSelect+` WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) List(ctx context.Context) ([]User, error) {
	users := []User{}
	if err := s.db.SelectContext(ctx, &users, userSelect+` ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserStore) Update(ctx context.Context, id string, patch UserPatch, now time.Time) (*User, error) {
	record := goqu.Record{"updated_at": now}
	if patch.Name != nil {
		record["name"] = *patch.Name
	}
	if patch.Skill != nil {
		record["skill"] = *patch.Skill
	}
	if patch.Phone != nil {
		if *patch.Phone == "" {
			record["phone"] = nil
		} else {
			record["phone"] = *patch.Phone
		}
	}

	query, args, err := toSQL(dialect.Update("users").Prepared(true).Set(record).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, booking.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes the user. Their reservations and buddy posts go with them.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// GetUser implements booking.UserDirectory.
func (s *UserStore) GetUser(ctx context.Context, id string) (*booking.Owner, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &booking.Owner{ID: user.ID, Name: user.Name}, nil
}

func (s *UserStore) getOne(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	if err := s.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
