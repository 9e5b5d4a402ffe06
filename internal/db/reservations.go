package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/codr1/TennisBuddy/internal/booking"
)

const overlapMessage = "reservation overlap"

type reservationRow struct {
	ID        string     `db:"id"`
	CourtID   string     `db:"court_id"`
	UserID    string     `db:"user_id"`
	Date      string     `db:"date"`
	Start     string     `db:"start_time"`
	End       string     `db:"end_time"`
	Status    string     `db:"status"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

func (r reservationRow) toBooking() booking.Reservation {
	return booking.Reservation{
		ID:        r.ID,
		CourtID:   r.CourtID,
		UserID:    r.UserID,
		Date:      r.Date,
		Start:     r.Start,
		End:       r.End,
		Status:    booking.Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

var reservationColumns = []any{
	"id", "court_id", "user_id", "date", "start_time", "end_time", "status", "created_at", "updated_at",
}

// ReservationStore implements booking.Store on SQLite.
type ReservationStore struct {
	db *DB
}

var _ booking.Store = (*ReservationStore)(nil)

func NewReservationStore(db *DB) *ReservationStore {
	return &ReservationStore{db: db}
}

func (s *ReservationStore) FindConflicting(ctx context.Context, courtID, date, start, end, excludeID string) (*booking.Reservation, error) {
	where := []exp.Expression{
		goqu.C("court_id").Eq(courtID),
		goqu.C("date").Eq(date),
		goqu.C("status").Eq(string(booking.StatusBooked)),
		goqu.C("start_time").Lt(end),
		goqu.C("end_time").Gt(start),
	}
	if excludeID != "" {
		where = append(where, goqu.C("id").Neq(excludeID))
	}
	query, args, err := toSQL(dialect.From("reservations").
		Prepared(true).
		Select(reservationColumns...).
		Where(where...).
		Order(goqu.C("start_time").Asc()).
		Limit(1))
	if err != nil {
		return nil, err
	}

	var row reservationRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query conflicting reservation: %w", err)
	}
	reservation := row.toBooking()
	return &reservation, nil
}

func (s *ReservationStore) Insert(ctx context.Context, reservation *booking.Reservation) (string, error) {
	query, args, err := toSQL(dialect.Insert("reservations").Prepared(true).Rows(goqu.Record{
		"id":         reservation.ID,
		"court_id":   reservation.CourtID,
		"user_id":    reservation.UserID,
		"date":       reservation.Date,
		"start_time": reservation.Start,
		"end_time":   reservation.End,
		"status":     string(reservation.Status),
		"created_at": reservation.CreatedAt,
	}))
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", mapWriteError(err)
	}
	return reservation.ID, nil
}

func (s *ReservationStore) UpdateFields(ctx context.Context, id string, patch booking.ReservationPatch) (int64, error) {
	record := goqu.Record{"updated_at": patch.UpdatedAt}
	if patch.CourtID != nil {
		record["court_id"] = *patch.CourtID
	}
	if patch.Date != nil {
		record["date"] = *patch.Date
	}
	if patch.Start != nil {
		record["start_time"] = *patch.Start
	}
	if patch.End != nil {
		record["end_time"] = *patch.End
	}

	query, args, err := toSQL(dialect.Update("reservations").Prepared(true).Set(record).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return result.RowsAffected()
}

func (s *ReservationStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete reservation: %w", err)
	}
	return result.RowsAffected()
}

func (s *ReservationStore) GetByID(ctx context.Context, id string) (*booking.Reservation, error) {
	var row reservationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, court_id, user_id, date, start_time, end_time, status, created_at, updated_at
		FROM reservations
		WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	reservation := row.toBooking()
	return &reservation, nil
}

func (s *ReservationStore) ListByUser(ctx context.Context, userID string) ([]booking.Reservation, error) {
	return s.list(ctx, dialect.From("reservations").
		Prepared(true).
		Select(reservationColumns...).
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("date").Desc(), goqu.C("start_time").Asc()))
}

func (s *ReservationStore) ListByCourtAndDate(ctx context.Context, courtID, date string) ([]booking.Reservation, error) {
	where := goqu.Ex{"date": date}
	if courtID != "" {
		where["court_id"] = courtID
	}
	return s.list(ctx, dialect.From("reservations").
		Prepared(true).
		Select(reservationColumns...).
		Where(where).
		Order(goqu.C("start_time").Asc(), goqu.C("court_id").Asc()))
}

// ListBookedOn returns booked reservations on date joined with their owner
// and court, for reminder emails.
func (s *ReservationStore) ListBookedOn(ctx context.Context, date string) ([]ReminderRow, error) {
	var rows []ReminderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT r.id, r.date, r.start_time, r.end_time,
		       u.email AS user_email, u.name AS user_name,
		       c.name AS court_name, c.location AS court_location
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		JOIN courts c ON c.id = r.court_id
		WHERE r.date = ? AND r.status = 'booked'
		ORDER BY r.start_time ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations for reminders: %w", err)
	}
	return rows, nil
}

// ReminderRow is a booked reservation with the details a reminder needs.
type ReminderRow struct {
	ID            string `db:"id"`
	Date          string `db:"date"`
	Start         string `db:"start_time"`
	End           string `db:"end_time"`
	UserEmail     string `db:"user_email"`
	UserName      string `db:"user_name"`
	CourtName     string `db:"court_name"`
	CourtLocation string `db:"court_location"`
}

func (s *ReservationStore) list(ctx context.Context, builder *goqu.SelectDataset) ([]booking.Reservation, error) {
	query, args, err := toSQL(builder)
	if err != nil {
		return nil, err
	}
	var rows []reservationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservations = append(reservations, row.toBooking())
	}
	return reservations, nil
}

// mapWriteError turns the overlap trigger's abort into booking.ErrBookingConflict.
func mapWriteError(err error) error {
	if strings.Contains(err.Error(), overlapMessage) {
		return booking.ConflictError{}
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("reservation references a missing court or user: %w", booking.ErrNotFound)
	}
	return fmt.Errorf("write reservation: %w", err)
}
