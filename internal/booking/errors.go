package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInterval = errors.New("start time must be before end time")
	ErrBookingConflict = errors.New("time slot overlaps with an existing reservation")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ConflictError carries the reservation that already holds the slot.
type ConflictError struct {
	ExistingID string
}

func (e ConflictError) Error() string {
	if e.ExistingID == "" {
		return ErrBookingConflict.Error()
	}
	return fmt.Sprintf("%s (%s)", ErrBookingConflict.Error(), e.ExistingID)
}

func (e ConflictError) Is(target error) bool {
	return target == ErrBookingConflict
}

// NotFoundError names the kind of record that could not be resolved.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
