// Package booking decides whether a reservation may occupy a court slot and
// commits it without double-booking under concurrent requests.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/codr1/TennisBuddy/internal/events"
)

const (
	instrumentationName = "github.com/codr1/TennisBuddy/internal/booking"
	maxRelockAttempts   = 3
)

// Notifier receives committed reservation changes.
type Notifier interface {
	Publish(ctx context.Context, event events.Event)
}

// CreateRequest is the caller supplied part of a new reservation.
type CreateRequest struct {
	CourtID string
	Date    string
	Start   string
	End     string
}

// Patch lists the fields an update changes. Nil fields keep their value.
type Patch struct {
	CourtID *string
	Date    *string
	Start   *string
	End     *string
}

func (p Patch) empty() bool {
	return p.CourtID == nil && p.Date == nil && p.Start == nil && p.End == nil
}

type Config struct {
	Store    Store
	Courts   CourtDirectory
	Users    UserDirectory
	Locker   Locker
	Notifier Notifier
	Now      func() time.Time
	NewID    func() string
}

type Service struct {
	store    Store
	courts   CourtDirectory
	users    UserDirectory
	locker   Locker
	notifier Notifier
	now      func() time.Time
	newID    func() string

	tracer    trace.Tracer
	created   metric.Int64Counter
	conflicts metric.Int64Counter
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("booking service requires a store")
	}
	if cfg.Courts == nil || cfg.Users == nil {
		return nil, errors.New("booking service requires court and user directories")
	}

	s := &Service{
		store:    cfg.Store,
		courts:   cfg.Courts,
		users:    cfg.Users,
		locker:   cfg.Locker,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		newID:    cfg.NewID,
		tracer:   otel.Tracer(instrumentationName),
	}
	if s.locker == nil {
		s.locker = NewKeyedLocker()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if s.created, err = meter.Int64Counter("booking.reservations.created",
		metric.WithDescription("Reservations committed")); err != nil {
		s.created, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("booking.reservations.created")
	}
	if s.conflicts, err = meter.Int64Counter("booking.reservations.conflicts",
		metric.WithDescription("Create or update attempts rejected by an overlapping reservation")); err != nil {
		s.conflicts, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("booking.reservations.conflicts")
	}

	return s, nil
}

// CreateBooking books req for the actor when no active reservation overlaps it.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, req CreateRequest) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateBooking")
	defer span.End()

	reservation, err := s.createBooking(ctx, actor, req)
	if err != nil {
		s.recordError(ctx, span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.id", reservation.ID))
	s.created.Add(ctx, 1)
	s.publish(ctx, events.ReservationCreated, reservation)
	return reservation, nil
}

func (s *Service) createBooking(ctx context.Context, actor Actor, req CreateRequest) (*Reservation, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	slot, err := parseSlot(req.CourtID, req.Date, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourt(ctx, slot); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, actor.UserID); err != nil {
		return nil, lookupError(err, "user", actor.UserID)
	}

	unlock, err := s.locker.Lock(ctx, slot.lockKey())
	if err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	defer unlock()

	if err := s.ensureFree(ctx, slot, ""); err != nil {
		return nil, err
	}

	reservation := &Reservation{
		ID:        s.newID(),
		CourtID:   slot.CourtID,
		UserID:    actor.UserID,
		Date:      slot.Date,
		Start:     slot.Start.String(),
		End:       slot.End.String(),
		Status:    StatusBooked,
		CreatedAt: s.now(),
	}
	id, err := s.store.Insert(ctx, reservation)
	if err != nil {
		if errors.Is(err, ErrBookingConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	reservation.ID = id
	return reservation, nil
}

// UpdateBooking applies patch to a reservation the actor may modify. The
// merged slot is checked against every other active reservation.
func (s *Service) UpdateBooking(ctx context.Context, actor Actor, id string, patch Patch) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.UpdateBooking",
		trace.WithAttributes(attribute.String("reservation.id", id)))
	defer span.End()

	reservation, previousCourtID, err := s.updateBooking(ctx, actor, id, patch)
	if err != nil {
		s.recordError(ctx, span, err)
		return nil, err
	}
	s.publishMove(ctx, reservation, previousCourtID)
	return reservation, nil
}

// updateBooking returns the updated reservation and the court it was on before the write.
func (s *Service) updateBooking(ctx context.Context, actor Actor, id string, patch Patch) (*Reservation, string, error) {
	if patch.empty() {
		return nil, "", ValidationError{Field: "body", Reason: "must contain at least one field"}
	}
	if err := validatePatch(patch); err != nil {
		return nil, "", err
	}

	existing, err := s.loadModifiable(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}

	for attempt := 0; attempt < maxRelockAttempts; attempt++ {
		slot, err := mergedSlot(existing, patch)
		if err != nil {
			return nil, "", err
		}
		if slot.CourtID != existing.CourtID || attempt == 0 {
			if err := s.checkCourt(ctx, slot); err != nil {
				return nil, "", err
			}
		}

		unlock, err := s.locker.Lock(ctx, slot.lockKey())
		if err != nil {
			return nil, "", fmt.Errorf("lock slot: %w", err)
		}

		updated, previousCourtID, moved, err := s.applyUpdateLocked(ctx, actor, id, patch, slot)
		unlock()
		if err != nil {
			return nil, "", err
		}
		if !moved {
			return updated, previousCourtID, nil
		}
		// a concurrent update changed the record we merged over; retry on fresh data
		existing = updated
	}

	return nil, "", fmt.Errorf("reservation %s kept moving during update: %w", id, ErrBookingConflict)
}

// applyUpdateLocked runs with the lock for slot held. It reports moved when the
// reloaded record no longer merges into the slot that was locked.
func (s *Service) applyUpdateLocked(ctx context.Context, actor Actor, id string, patch Patch, locked Slot) (*Reservation, string, bool, error) {
	current, err := s.loadModifiable(ctx, actor, id)
	if err != nil {
		return nil, "", false, err
	}
	slot, err := mergedSlot(current, patch)
	if err != nil {
		return nil, "", false, err
	}
	if slot.lockKey() != locked.lockKey() {
		return current, "", true, nil
	}

	if err := s.ensureFree(ctx, slot, id); err != nil {
		return nil, "", false, err
	}

	now := s.now()
	fields := ReservationPatch{UpdatedAt: now}
	if patch.CourtID != nil {
		fields.CourtID = &slot.CourtID
	}
	if patch.Date != nil {
		fields.Date = &slot.Date
	}
	if patch.Start != nil {
		start := slot.Start.String()
		fields.Start = &start
	}
	if patch.End != nil {
		end := slot.End.String()
		fields.End = &end
	}

	matched, err := s.store.UpdateFields(ctx, id, fields)
	if err != nil {
		if errors.Is(err, ErrBookingConflict) {
			return nil, "", false, err
		}
		return nil, "", false, fmt.Errorf("update reservation: %w", err)
	}
	if matched == 0 {
		return nil, "", false, NotFoundError{Resource: "reservation", ID: id}
	}

	previousCourtID := current.CourtID
	current.CourtID = slot.CourtID
	current.Date = slot.Date
	current.Start = slot.Start.String()
	current.End = slot.End.String()
	current.UpdatedAt = &now
	return current, previousCourtID, false, nil
}

// CancelBooking removes a reservation the actor may modify.
func (s *Service) CancelBooking(ctx context.Context, actor Actor, id string) error {
	ctx, span := s.tracer.Start(ctx, "booking.CancelBooking",
		trace.WithAttributes(attribute.String("reservation.id", id)))
	defer span.End()

	existing, err := s.loadModifiable(ctx, actor, id)
	if err != nil {
		s.recordError(ctx, span, err)
		return err
	}

	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		err = fmt.Errorf("delete reservation: %w", err)
		s.recordError(ctx, span, err)
		return err
	}
	if deleted == 0 {
		err = NotFoundError{Resource: "reservation", ID: id}
		s.recordError(ctx, span, err)
		return err
	}

	existing.Status = StatusCancelled
	s.publish(ctx, events.ReservationCancelled, existing)
	return nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*Reservation, error) {
	reservation, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "reservation", id)
	}
	return reservation, nil
}

// ListForCourtAndDate returns the day's reservations ordered by start time.
// An empty courtID lists every court.
func (s *Service) ListForCourtAndDate(ctx context.Context, courtID, date string) ([]Reservation, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, ValidationError{Field: "date", Reason: "must be in YYYY-MM-DD format"}
	}
	if courtID != "" {
		if err := validateID("courtId", courtID); err != nil {
			return nil, err
		}
	}
	reservations, err := s.store.ListByCourtAndDate(ctx, courtID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations for court: %w", err)
	}
	return reservations, nil
}

// ListForUser returns a user's reservations, newest date first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Reservation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ValidationError{Field: "userId", Reason: "is required"}
	}
	reservations, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reservations for user: %w", err)
	}
	return reservations, nil
}

func (s *Service) loadModifiable(ctx context.Context, actor Actor, id string) (*Reservation, error) {
	reservation, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "reservation", id)
	}
	if !actor.CanModify(reservation) {
		return nil, ErrForbidden
	}
	return reservation, nil
}

func (s *Service) checkCourt(ctx context.Context, slot Slot) error {
	court, err := s.courts.GetCourt(ctx, slot.CourtID)
	if err != nil {
		return lookupError(err, "court", slot.CourtID)
	}
	hours := court.OpenHours
	if hours.End == 0 {
		hours = DefaultOpenHours
	}
	if !slot.Within(hours) {
		return ValidationError{
			Field:  "start",
			Reason: fmt.Sprintf("must fall within court hours %s-%s", hours.Start, hours.End),
		}
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, slot Slot, excludeID string) error {
	existing, err := s.store.FindConflicting(ctx, slot.CourtID, slot.Date, slot.Start.String(), slot.End.String(), excludeID)
	if err != nil {
		return fmt.Errorf("query conflicting reservations: %w", err)
	}
	if existing != nil {
		return ConflictError{ExistingID: existing.ID}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, reservation *Reservation) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, s.event(eventType, reservation))
}

// publishMove sends reservation.updated, also addressed to the court the
// reservation left when the update moved it.
func (s *Service) publishMove(ctx context.Context, reservation *Reservation, previousCourtID string) {
	if s.notifier == nil {
		return
	}
	event := s.event(events.ReservationUpdated, reservation)
	if previousCourtID != reservation.CourtID {
		event.PreviousCourtID = previousCourtID
	}
	s.notifier.Publish(ctx, event)
}

func (s *Service) event(eventType string, reservation *Reservation) events.Event {
	return events.Event{
		Type:       eventType,
		CourtID:    reservation.CourtID,
		SubjectID:  reservation.ID,
		Date:       reservation.Date,
		Payload:    *reservation,
		OccurredAt: s.now(),
	}
}

func (s *Service) recordError(ctx context.Context, span trace.Span, err error) {
	if errors.Is(err, ErrBookingConflict) {
		s.conflicts.Add(ctx, 1)
		log.Ctx(ctx).Debug().Err(err).Msg("Reservation rejected by overlap")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func parseSlot(courtID, date, start, end string) (Slot, error) {
	if err := validateID("courtId", courtID); err != nil {
		return Slot{}, err
	}
	if strings.TrimSpace(date) == "" {
		return Slot{}, ValidationError{Field: "date", Reason: "is required"}
	}
	if _, err := ParseDate(date); err != nil {
		return Slot{}, ValidationError{Field: "date", Reason: "must be in YYYY-MM-DD format"}
	}
	startAt, err := parseClockField("start", start)
	if err != nil {
		return Slot{}, err
	}
	endAt, err := parseClockField("end", end)
	if err != nil {
		return Slot{}, err
	}
	interval, err := NewInterval(date, startAt, endAt)
	if err != nil {
		return Slot{}, err
	}
	return Slot{CourtID: courtID, Interval: interval}, nil
}

func mergedSlot(existing *Reservation, patch Patch) (Slot, error) {
	courtID, date, start, end := existing.CourtID, existing.Date, existing.Start, existing.End
	if patch.CourtID != nil {
		courtID = *patch.CourtID
	}
	if patch.Date != nil {
		date = *patch.Date
	}
	if patch.Start != nil {
		start = *patch.Start
	}
	if patch.End != nil {
		end = *patch.End
	}
	return parseSlot(courtID, date, start, end)
}

func validatePatch(patch Patch) error {
	if patch.CourtID != nil {
		if err := validateID("courtId", *patch.CourtID); err != nil {
			return err
		}
	}
	if patch.Date != nil {
		if _, err := ParseDate(*patch.Date); err != nil {
			return ValidationError{Field: "date", Reason: "must be in YYYY-MM-DD format"}
		}
	}
	if patch.Start != nil {
		if _, err := parseClockField("start", *patch.Start); err != nil {
			return err
		}
	}
	if patch.End != nil {
		if _, err := parseClockField("end", *patch.End); err != nil {
			return err
		}
	}
	return nil
}

func parseClockField(field, value string) (ClockTime, error) {
	if strings.TrimSpace(value) == "" {
		return 0, ValidationError{Field: field, Reason: "is required"}
	}
	clock, err := ParseClockTime(value)
	if err != nil {
		return 0, ValidationError{Field: field, Reason: "must be in HH:MM format"}
	}
	return clock, nil
}

func validateID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Reason: "is required"}
	}
	if _, err := uuid.Parse(value); err != nil {
		return ValidationError{Field: field, Reason: "must be a valid id"}
	}
	return nil
}

func lookupError(err error, resource, id string) error {
	if errors.Is(err, ErrNotFound) {
		return NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("load %s: %w", resource, err)
}
