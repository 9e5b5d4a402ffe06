package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/db"
	"github.com/codr1/TennisBuddy/internal/email"
)

const (
	reminderJobName     = "reservation_reminders"
	reminderJobTimeout  = 2 * time.Minute
	reminderSendTimeout = 10 * time.Second
)

// ReminderSource lists the booked reservations on a date.
type ReminderSource interface {
	ListBookedOn(ctx context.Context, date string) ([]db.ReminderRow, error)
}

// Reminders emails owners of tomorrow's reservations. Each reservation is
// reminded once per date for the life of the process.
type Reminders struct {
	source ReminderSource
	sender email.Sender
	now    func() time.Time

	mu   sync.Mutex
	sent map[string]string
}

func NewReminders(source ReminderSource, sender email.Sender) *Reminders {
	return &Reminders{
		source: source,
		sender: sender,
		now:    time.Now,
		sent:   make(map[string]string),
	}
}

// Run sends reminders for reservations dated the day after now and reports
// how many were delivered.
func (r *Reminders) Run(ctx context.Context) (int, error) {
	logger := log.Ctx(ctx)
	tomorrow := r.now().AddDate(0, 0, 1).Format("2006-01-02")

	rows, err := r.source.ListBookedOn(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("load reservations for %s: %w", tomorrow, err)
	}
	r.prune(tomorrow)

	sent := 0
	for _, row := range rows {
		if r.alreadySent(row.ID, row.Date) {
			continue
		}
		msg := email.BuildReminderEmail(email.ReminderDetails{
			PlayerName:    row.UserName,
			CourtName:     row.CourtName,
			CourtLocation: row.CourtLocation,
			Date:          row.Date,
			Start:         row.Start,
			End:           row.End,
		})

		sendCtx, cancel := context.WithTimeout(ctx, reminderSendTimeout)
		err := r.sender.Send(sendCtx, row.UserEmail, msg.Subject, msg.Body)
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("reservation_id", row.ID).Msg("Failed to send reminder email")
			continue
		}
		r.markSent(row.ID, row.Date)
		sent++
	}

	logger.Info().Str("date", tomorrow).Int("candidates", len(rows)).Int("sent", sent).Msg("Reservation reminders processed")
	return sent, nil
}

func (r *Reminders) alreadySent(id, date string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[id] == date
}

func (r *Reminders) markSent(id, date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[id] = date
}

// prune forgets reminders for dates before the one being processed.
func (r *Reminders) prune(current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, date := range r.sent {
		if date < current {
			delete(r.sent, id)
		}
	}
}

// RegisterReminderJobs registers the reservation reminder task on the
// singleton scheduler.
func RegisterReminderJobs(cronExpr string, reminders *Reminders) error {
	if reminders == nil {
		return fmt.Errorf("reminder jobs require a reminder runner")
	}

	jobLogger := log.With().
		Str("component", "reservation_reminders_job").
		Str("job_name", reminderJobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(reminderJobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reminderJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if _, err := reminders.Run(ctx); err != nil {
			jobLogger.Error().Err(err).Msg("Reminder job failed")
		}
	}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("add reservation reminder job: %w", err)
	}

	jobLogger.Info().Msg("Reservation reminder job registered")
	return nil
}
