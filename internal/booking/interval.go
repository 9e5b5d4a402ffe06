package booking

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	minutesPerDay = 24 * 60
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)
)

// ClockTime is a time of day in minutes since midnight.
type ClockTime int

// ParseClockTime accepts H:MM or HH:MM in 24-hour form.
func ParseClockTime(value string) (ClockTime, error) {
	match := timePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	return ClockTime(hours*60 + minutes), nil
}

// String formats the time as zero padded HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ParseDate validates a YYYY-MM-DD calendar date and returns it unchanged.
func ParseDate(value string) (string, error) {
	if !datePattern.MatchString(value) {
		return "", fmt.Errorf("invalid date %q", value)
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return "", fmt.Errorf("invalid date %q", value)
	}
	return value, nil
}

// Interval is a half-open [Start, End) range of clock time on one calendar date.
type Interval struct {
	Date  string
	Start ClockTime
	End   ClockTime
}

// NewInterval returns ErrInvalidInterval unless start < end.
func NewInterval(date string, start, end ClockTime) (Interval, error) {
	if start < 0 || end > minutesPerDay || start >= end {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Date: date, Start: start, End: end}, nil
}

// Overlaps reports whether two intervals intersect. Touching endpoints do not.
func (i Interval) Overlaps(other Interval) bool {
	if i.Date != other.Date {
		return false
	}
	return i.Start < other.End && other.Start < i.End
}

// Within reports whether the interval lies inside hours, inclusive of both edges.
func (i Interval) Within(hours OpenHours) bool {
	return i.Start >= hours.Start && i.End <= hours.End
}

// OpenHours is the daily window in which a court may be booked.
type OpenHours struct {
	Start ClockTime
	End   ClockTime
}

// DefaultOpenHours applies to courts created without explicit hours.
var DefaultOpenHours = OpenHours{Start: 7 * 60, End: 22 * 60}

// Slot is an interval on one specific court.
type Slot struct {
	CourtID string
	Interval
}

// Conflicts reports whether two slots compete for the same court time.
func (s Slot) Conflicts(other Slot) bool {
	return s.CourtID == other.CourtID && s.Interval.Overlaps(other.Interval)
}

// lockKey names the (court, date) pair serialized by the Locker.
func (s Slot) lockKey() string {
	return s.CourtID + "|" + s.Date
}
