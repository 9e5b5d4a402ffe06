package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/codr1/TennisBuddy/internal/booking"
)

// ErrCourtInUse is returned when deleting a court that reservations still reference.
var ErrCourtInUse = errors.New("court has reservations")

type Hours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Court struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Surface   string     `json:"surface" db:"surface"`
	Location  string     `json:"location" db:"location"`
	OpenStart string     `json:"-" db:"open_start"`
	OpenEnd   string     `json:"-" db:"open_end"`
	OpenHours Hours      `json:"openHours" db:"-"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

func (c *Court) fillHours() {
	c.OpenHours = Hours{Start: c.OpenStart, End: c.OpenEnd}
}

// CourtFilter narrows List. Location matches case-insensitively anywhere in the field.
type CourtFilter struct {
	Surface  string
	Location string
}

type CourtPatch struct {
	Name      *string
	Surface   *string
	Location  *string
	OpenStart *string
	OpenEnd   *string
}

type CourtStore struct {
	db *DB
}

func NewCourtStore(db *DB) *CourtStore {
	return &CourtStore{db: db}
}

var courtColumns = []any{"id", "name", "surface", "location", "open_start", "open_end", "created_at", "updated_at"}

func (s *CourtStore) List(ctx context.Context, filter CourtFilter) ([]Court, error) {
	builder := dialect.From("courts").Prepared(true).Select(courtColumns...).Order(goqu.C("name").Asc())
	if filter.Surface != "" {
		builder = builder.Where(goqu.C("surface").Eq(filter.Surface))
	}
	if filter.Location != "" {
		builder = builder.Where(goqu.L("LOWER(location) LIKE ? ESCAPE '\\'", likePattern(filter.Location)))
	}

	query, args, err := toSQL(builder)
	if err != nil {
		return nil, err
	}
	var courts []Court
	if err := s.db.SelectContext(ctx, &courts, query, args...); err != nil {
		return nil, fmt.Errorf("list courts: %w", err)
	}
	for i := range courts {
		courts[i].fillHours()
	}
	if courts == nil {
		courts = []Court{}
	}
	return courts, nil
}

func (s *CourtStore) Get(ctx context.Context, id string) (*Court, error) {
	var court Court
	err := s.db.GetContext(ctx, &court, `
		SELECT id, name, surface, location, open_start, open_end, created_at, updated_at
		FROM courts WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("get court: %w", err)
	}
	court.fillHours()
	return &court, nil
}

func (s *CourtStore) Create(ctx context.Context, court *Court) error {
	if court.OpenStart == "" {
		court.OpenStart = booking.DefaultOpenHours.Start.String()
	}
	if court.OpenEnd == "" {
		court.OpenEnd = booking.DefaultOpenHours.End.String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO courts (id, name, surface, location, open_start, open_end, created_at)
		VALUES (:id, :name, :surface, :location, :open_start, :open_end, :created_at)`, court)
	if err != nil {
		return fmt.Errorf("insert court: %w", err)
	}
	court.fillHours()
	return nil
}

func (s *CourtStore) Update(ctx context.Context, id string, patch CourtPatch, now time.Time) (*Court, error) {
	record := goqu.Record{"updated_at": now}
	if patch.Name != nil {
		record["name"] = *patch.Name
	}
	if patch.Surface != nil {
		record["surface"] = *patch.Surface
	}
	if patch.Location != nil {
		record["location"] = *patch.Location
	}
	if patch.OpenStart != nil {
		record["open_start"] = *patch.OpenStart
	}
	if patch.OpenEnd != nil {
		record["open_end"] = *patch.OpenEnd
	}

	query, args, err := toSQL(dialect.Update("courts").Prepared(true).Set(record).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update court: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, booking.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a court unless a reservation references it.
func (s *CourtStore) Delete(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var refs int
		if err := tx.GetContext(ctx, &refs, `SELECT COUNT(*) FROM reservations WHERE court_id = ?`, id); err != nil {
			return fmt.Errorf("count court reservations: %w", err)
		}
		if refs > 0 {
			return ErrCourtInUse
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM courts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete court: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return booking.ErrNotFound
		}
		return nil
	})
}

// GetCourt implements booking.CourtDirectory.
func (s *CourtStore) GetCourt(ctx context.Context, id string) (*booking.Court, error) {
	court, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	hours := booking.DefaultOpenHours
	if start, err := booking.ParseClockTime(court.OpenStart); err == nil {
		hours.Start = start
	}
	if end, err := booking.ParseClockTime(court.OpenEnd); err == nil {
		hours.End = end
	}
	return &booking.Court{ID: court.ID, Name: court.Name, OpenHours: hours}, nil
}

func likePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(value))
	return "%" + escaped + "%"
}
