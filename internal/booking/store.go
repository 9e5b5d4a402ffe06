package booking

import (
	"context"
	"time"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// Reservation is one booked slot owned by a user.
type Reservation struct {
	ID        string     `json:"id"`
	CourtID   string     `json:"courtId"`
	UserID    string     `json:"userId"`
	Date      string     `json:"date"`
	Start     string     `json:"start"`
	End       string     `json:"end"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Slot returns the court interval the reservation occupies.
func (r Reservation) Slot() (Slot, error) {
	start, err := ParseClockTime(r.Start)
	if err != nil {
		return Slot{}, err
	}
	end, err := ParseClockTime(r.End)
	if err != nil {
		return Slot{}, err
	}
	interval, err := NewInterval(r.Date, start, end)
	if err != nil {
		return Slot{}, err
	}
	return Slot{CourtID: r.CourtID, Interval: interval}, nil
}

// ReservationPatch holds the columns an update writes. Nil fields are left alone.
type ReservationPatch struct {
	CourtID   *string
	Date      *string
	Start     *string
	End       *string
	UpdatedAt time.Time
}

// Store persists reservations. Implementations consider only booked
// reservations in FindConflicting and must return ErrNotFound from GetByID
// and ErrBookingConflict when a write would break the no-overlap invariant.
type Store interface {
	FindConflicting(ctx context.Context, courtID, date, start, end, excludeID string) (*Reservation, error)
	Insert(ctx context.Context, reservation *Reservation) (string, error)
	UpdateFields(ctx context.Context, id string, patch ReservationPatch) (int64, error)
	DeleteByID(ctx context.Context, id string) (int64, error)
	GetByID(ctx context.Context, id string) (*Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]Reservation, error)
	ListByCourtAndDate(ctx context.Context, courtID, date string) ([]Reservation, error)
}

// Court is the reference data the booking rules need about a court.
type Court struct {
	ID        string
	Name      string
	OpenHours OpenHours
}

// Owner is the reference data the booking rules need about a user.
type Owner struct {
	ID   string
	Name string
}

type CourtDirectory interface {
	GetCourt(ctx context.Context, id string) (*Court, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*Owner, error)
}

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// CanModify reports whether the actor may change or cancel the reservation.
func (a Actor) CanModify(r *Reservation) bool {
	return a.IsAdmin || (a.UserID != "" && a.UserID == r.UserID)
}
