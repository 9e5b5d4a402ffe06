package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/codr1/TennisBuddy/internal/booking"
)

// BuddyPost is a request for a hitting partner.
type BuddyPost struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"userId" db:"user_id"`
	UserName     string     `json:"userName,omitempty" db:"user_name"`
	Skill        string     `json:"skill" db:"skill"`
	Availability string     `json:"availability" db:"availability"`
	Notes        string     `json:"notes" db:"notes"`
	IsOpen       bool       `json:"isOpen" db:"is_open"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

type BuddyPatch struct {
	Skill        *string
	Availability *string
	Notes        *string
	IsOpen       *bool
}

type BuddyStore struct {
	db *DB
}

func NewBuddyStore(db *DB) *BuddyStore {
	return &BuddyStore{db: db}
}

var buddyColumns = []any{
	goqu.I("b.id"), goqu.I("b.user_id"), goqu.I("u.name").As("user_name"), goqu.I("b.skill"),
	goqu.I("b.availability"), goqu.I("b.notes"), goqu.I("b.is_open"), goqu.I("b.created_at"), goqu.I("b.updated_at"),
}

func (s *BuddyStore) selectPosts() *goqu.SelectDataset {
	return dialect.From(goqu.T("buddy_posts").As("b")).
		Prepared(true).
		Select(buddyColumns...).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("b.user_id"))))
}

// ListOpen returns open posts, newest first. A non-empty skill matches case-insensitively anywhere.
func (s *BuddyStore) ListOpen(ctx context.Context, skill string) ([]BuddyPost, error) {
	builder := s.selectPosts().
		Where(goqu.I("b.is_open").Eq(1)).
		Order(goqu.I("b.created_at").Desc())
	if skill != "" {
		builder = builder.Where(goqu.L("LOWER(b.skill) LIKE ? ESCAPE '\\'", likePattern(skill)))
	}

	query, args, err := toSQL(builder)
	if err != nil {
		return nil, err
	}
	posts := []BuddyPost{}
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("list buddy posts: %w", err)
	}
	return posts, nil
}

func (s *BuddyStore) Get(ctx context.Context, id string) (*BuddyPost, error) {
	query, args, err := toSQL(s.selectPosts().Where(goqu.I("b.id").Eq(id)))
	if err != nil {
		return nil, err
	}
	var post BuddyPost
	if err := s.db.GetContext(ctx, &post, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("get buddy post: %w", err)
	}
	return &post, nil
}

func (s *BuddyStore) Create(ctx context.Context, post *BuddyPost) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO buddy_posts (id, user_id, skill, availability, notes, is_open, created_at)
		VALUES (:id, :user_id, :skill, :availability, :notes, :is_open, :created_at)`, post)
	if err != nil {
		return fmt.Errorf("insert buddy post: %w", err)
	}
	return nil
}

func (s *BuddyStore) Update(ctx context.Context, id string, patch BuddyPatch, now time.Time) (*BuddyPost, error) {
	record := goqu.Record{"updated_at": now}
	if patch.Skill != nil {
		record["skill"] = *patch.Skill
	}
	if patch.Availability != nil {
		record["availability"] = *patch.Availability
	}
	if patch.Notes != nil {
		record["notes"] = *patch.Notes
	}
	if patch.IsOpen != nil {
		record["is_open"] = *patch.IsOpen
	}

	query, args, err := toSQL(dialect.Update("buddy_posts").Prepared(true).Set(record).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update buddy post: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, booking.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *BuddyStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM buddy_posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete buddy post: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}
