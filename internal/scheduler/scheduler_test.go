package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codr1/TennisBuddy/internal/db"
)

type fakeSource struct {
	rows  map[string][]db.ReminderRow
	dates []string
	err   error
}

func (f *fakeSource) ListBookedOn(_ context.Context, date string) ([]db.ReminderRow, error) {
	f.dates = append(f.dates, date)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[date], nil
}

type sentMail struct {
	recipient string
	subject   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func (f *fakeSender) Send(_ context.Context, recipient, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[recipient] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, sentMail{recipient: recipient, subject: subject})
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRemindersTargetTomorrowOnce(t *testing.T) {
	source := &fakeSource{rows: map[string][]db.ReminderRow{
		"2024-06-02": {
			{ID: "r1", Date: "2024-06-02", Start: "09:00", End: "10:00", UserEmail: "a@example.com", UserName: "A", CourtName: "Court 1"},
			{ID: "r2", Date: "2024-06-02", Start: "11:00", End: "12:00", UserEmail: "b@example.com", UserName: "B", CourtName: "Court 2"},
		},
	}}
	sender := &fakeSender{}
	reminders := NewReminders(source, sender)
	reminders.now = fixedClock(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))

	sent, err := reminders.Run(context.Background())
	if err != nil || sent != 2 {
		t.Fatalf("expected two reminders, got %d %v", sent, err)
	}
	if source.dates[0] != "2024-06-02" {
		t.Fatalf("expected tomorrow's date, got %s", source.dates[0])
	}

	// A later run in the same window does not repeat.
	sent, err = reminders.Run(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("expected no repeat reminders, got %d %v", sent, err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected two emails total, got %d", len(sender.sent))
	}
}

func TestRemindersRetryFailedSends(t *testing.T) {
	source := &fakeSource{rows: map[string][]db.ReminderRow{
		"2024-06-02": {
			{ID: "r1", Date: "2024-06-02", Start: "09:00", End: "10:00", UserEmail: "down@example.com"},
		},
	}}
	sender := &fakeSender{fail: map[string]bool{"down@example.com": true}}
	reminders := NewReminders(source, sender)
	reminders.now = fixedClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))

	if sent, err := reminders.Run(context.Background()); err != nil || sent != 0 {
		t.Fatalf("expected failed send to be skipped, got %d %v", sent, err)
	}

	sender.fail = nil
	if sent, err := reminders.Run(context.Background()); err != nil || sent != 1 {
		t.Fatalf("expected retry to deliver, got %d %v", sent, err)
	}
}

func TestRemindersPruneOldDates(t *testing.T) {
	reminders := NewReminders(&fakeSource{}, &fakeSender{})
	reminders.markSent("old", "2024-05-30")
	reminders.markSent("current", "2024-06-02")

	reminders.prune("2024-06-02")

	if reminders.alreadySent("old", "2024-05-30") {
		t.Fatal("expected old entry to be pruned")
	}
	if !reminders.alreadySent("current", "2024-06-02") {
		t.Fatal("expected current entry to be kept")
	}
}

func TestRemindersSourceError(t *testing.T) {
	reminders := NewReminders(&fakeSource{err: errors.New("db closed")}, &fakeSender{})
	if _, err := reminders.Run(context.Background()); err == nil {
		t.Fatal("expected source error")
	}
}

func TestServiceAddJobValidation(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.AddJob("", "* * * * *", func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("expected ErrEmptyJobName, got %v", err)
	}
	if _, err := svc.AddJob("job", " ", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("expected ErrEmptyCronExpr, got %v", err)
	}
	if _, err := svc.AddJob("job", "not a cron", func() {}); err == nil {
		t.Fatal("expected invalid cron to fail")
	}

	job, err := svc.AddJob("job", "0 * * * *", func() {})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if job.Name() != "job" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestNilServiceReportsNotInitialized(t *testing.T) {
	var svc *Service
	if err := svc.Stop(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := svc.AddJob("job", "0 * * * *", func() {}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
