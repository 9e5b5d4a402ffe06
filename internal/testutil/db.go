package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codr1/TennisBuddy/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedCourt inserts a court with default hours and returns it.
func SeedCourt(t *testing.T, database *db.DB, name string) *db.Court {
	t.Helper()

	court := &db.Court{
		ID:        uuid.NewString(),
		Name:      name,
		Surface:   "hard",
		Location:  "Riverside Park",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.NewCourtStore(database).Create(context.Background(), court); err != nil {
		t.Fatalf("seed court: %v", err)
	}
	return court
}

// SeedUser inserts a user with the given role and password hash.
func SeedUser(t *testing.T, database *db.DB, email, role, passwordHash string) *db.User {
	t.Helper()

	user := &db.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         email,
		Skill:        "3.5",
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.NewUserStore(database).Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}
