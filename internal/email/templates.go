package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/TennisBuddy/internal/booking"
)

type Message struct {
	Subject string
	Body    string
}

type ReminderDetails struct {
	PlayerName    string
	CourtName     string
	CourtLocation string
	Date          string
	Start         string
	End           string
}

// FormatDate renders a YYYY-MM-DD date as "Monday, Jun 3, 2024". Unparseable
// input is returned unchanged.
func FormatDate(date string) string {
	if _, err := booking.ParseDate(date); err != nil {
		return date
	}
	day, _ := time.Parse("2006-01-02", date)
	return day.Format("Monday, Jan 2, 2006")
}

// FormatTimeRange renders HH:MM clock values as "2:00 PM - 3:30 PM".
func FormatTimeRange(start, end string) string {
	return fmt.Sprintf("%s - %s", formatClock(start), formatClock(end))
}

func formatClock(value string) string {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return value
	}
	return t.Format("3:04 PM")
}

func BuildReminderEmail(details ReminderDetails) Message {
	courtName := strings.TrimSpace(details.CourtName)
	if courtName == "" {
		courtName = "your court"
	}
	name := strings.TrimSpace(details.PlayerName)
	if name == "" {
		name = "there"
	}
	date := FormatDate(details.Date)
	timeRange := FormatTimeRange(details.Start, details.End)

	lines := []string{
		fmt.Sprintf("Hi %s,", name),
		"",
		"This is a reminder that you have a court booked tomorrow.",
		"",
		fmt.Sprintf("Court: %s", courtName),
	}
	if location := strings.TrimSpace(details.CourtLocation); location != "" {
		lines = append(lines, fmt.Sprintf("Location: %s", location))
	}
	lines = append(lines,
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		"",
		"If you can no longer play, please cancel so someone else can use the court.",
	)

	return Message{
		Subject: fmt.Sprintf("Reminder: %s on %s at %s", courtName, date, formatClock(details.Start)),
		Body:    strings.Join(lines, "\n"),
	}
}
