package main

import (
	"context"
	"testing"
	"time"

	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/testutil"
)

func TestSeedBooksNonOverlappingReservations(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	if err := seed(ctx, database, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var counts struct {
		Courts int `db:"courts"`
		Users  int `db:"users"`
		Posts  int `db:"posts"`
	}
	err := database.GetContext(ctx, &counts, `SELECT
		(SELECT COUNT(*) FROM courts) AS courts,
		(SELECT COUNT(*) FROM users) AS users,
		(SELECT COUNT(*) FROM buddy_posts) AS posts`)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if counts.Courts != len(courtNames) {
		t.Fatalf("expected %d courts, got %d", len(courtNames), counts.Courts)
	}
	if counts.Users != len(userNames)*len(userNames)+1 {
		t.Fatalf("expected %d users, got %d", len(userNames)*len(userNames)+1, counts.Users)
	}
	if counts.Posts != targetBuddyPosts {
		t.Fatalf("expected %d buddy posts, got %d", targetBuddyPosts, counts.Posts)
	}

	var rows []struct {
		CourtID string `db:"court_id"`
		Date    string `db:"date"`
		Start   string `db:"start_time"`
		End     string `db:"end_time"`
		Status  string `db:"status"`
	}
	err = database.SelectContext(ctx, &rows, `SELECT court_id, date, start_time, end_time, status FROM reservations`)
	if err != nil {
		t.Fatalf("list reservations: %v", err)
	}
	if len(rows) == 0 || len(rows) > targetReservations {
		t.Fatalf("expected between 1 and %d reservations, got %d", targetReservations, len(rows))
	}

	today := time.Now().UTC()
	first := today.AddDate(0, 0, 1).Format("2006-01-02")
	last := today.AddDate(0, 0, reservationDays).Format("2006-01-02")
	for i, a := range rows {
		if a.Status != string(booking.StatusBooked) {
			t.Fatalf("reservation %d has status %q", i, a.Status)
		}
		if a.Date < first || a.Date > last {
			t.Fatalf("reservation %d on %s outside %s..%s", i, a.Date, first, last)
		}
		if a.Start >= a.End {
			t.Fatalf("reservation %d has empty interval %s-%s", i, a.Start, a.End)
		}
		for j := i + 1; j < len(rows); j++ {
			b := rows[j]
			if a.CourtID == b.CourtID && a.Date == b.Date && a.Start < b.End && b.Start < a.End {
				t.Fatalf("reservations overlap on court %s %s: %s-%s and %s-%s",
					a.CourtID, a.Date, a.Start, a.End, b.Start, b.End)
			}
		}
	}
}

func TestSeedResetReplacesData(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	if err := seed(ctx, database, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// without reset the admin email would collide
	if err := seed(ctx, database, true); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var courts int
	if err := database.GetContext(ctx, &courts, `SELECT COUNT(*) FROM courts`); err != nil {
		t.Fatalf("count courts: %v", err)
	}
	if courts != len(courtNames) {
		t.Fatalf("expected %d courts after reset, got %d", len(courtNames), courts)
	}
}
