// cmd/seed/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/api/auth"
	"github.com/codr1/TennisBuddy/internal/booking"
	"github.com/codr1/TennisBuddy/internal/config"
	"github.com/codr1/TennisBuddy/internal/db"
)

const (
	targetBuddyPosts   = 100
	targetReservations = 100
	reservationDays    = 21
	seedPassword       = "password123"
)

var (
	courtNames = []string{"Court A", "Court B", "Court C", "Court D", "Court E", "Court F", "Court G", "Court H", "Court I", "Court J"}
	surfaces   = []string{"hard", "clay", "grass"}
	locations  = []string{
		"Campus Recreation Center",
		"Outdoor Tennis Complex",
		"Student Union Building",
		"Downtown Sports Center",
		"Eastside Courts",
		"West End Arena",
	}
	openHours = []db.Hours{
		{Start: "07:00", End: "22:00"},
		{Start: "08:00", End: "20:00"},
		{Start: "06:00", End: "23:00"},
		{Start: "06:00", End: "21:00"},
	}
	domains   = []string{"northeastern.edu", "nyu.edu", "berkeley.edu", "stanford.edu", "mit.edu", "harvard.edu"}
	userNames = []string{"Alice", "Bob", "Carol", "David", "Eve", "Frank", "Grace", "Hannah", "Gabe"}
	skills    = []string{"1.0-2.0", "2.5-3.0", "3.0-3.5", "3.5-4.0", "4.0-4.5", "4.5-5.0", "5.5+"}
	notes     = []string{"Looking for a hitting partner", "Open to singles or doubles", "Prefer morning sessions"}
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	reset := flag.Bool("reset", true, "Delete existing data before seeding")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	if err := seed(context.Background(), database, *reset); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
}

func seed(ctx context.Context, database *db.DB, reset bool) error {
	if reset {
		log.Info().Msg("Clearing existing data")
		if err := resetData(ctx, database); err != nil {
			return err
		}
	}

	stores := database.Stores()
	now := time.Now().UTC()

	courts, err := seedCourts(ctx, stores.Courts, now)
	if err != nil {
		return err
	}
	users, err := seedUsers(ctx, stores.Users, now)
	if err != nil {
		return err
	}
	posts, err := seedBuddyPosts(ctx, stores.Buddies, users, now)
	if err != nil {
		return err
	}

	svc, err := booking.NewService(booking.Config{
		Store:  stores.Reservations,
		Courts: stores.Courts,
		Users:  stores.Users,
	})
	if err != nil {
		return err
	}
	reservations, err := seedReservations(ctx, svc, courts, users, now)
	if err != nil {
		return err
	}

	log.Info().
		Int("courts", len(courts)).
		Int("users", len(users)).
		Int("buddy_posts", posts).
		Int("reservations", reservations).
		Msg("Seeding completed")
	return nil
}

func resetData(ctx context.Context, database *db.DB) error {
	return database.RunInTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"reservations", "buddy_posts", "courts", "users"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func seedCourts(ctx context.Context, store *db.CourtStore, now time.Time) ([]db.Court, error) {
	var courts []db.Court
	for i, name := range courtNames {
		hours := openHours[i%len(openHours)]
		court := db.Court{
			ID:        uuid.NewString(),
			Name:      name,
			Surface:   surfaces[i%len(surfaces)],
			Location:  locations[i%len(locations)],
			OpenStart: hours.Start,
			OpenEnd:   hours.End,
			CreatedAt: now,
		}
		if err := store.Create(ctx, &court); err != nil {
			return nil, fmt.Errorf("create court %s: %w", name, err)
		}
		courts = append(courts, court)
	}
	return courts, nil
}

func seedUsers(ctx context.Context, store *db.UserStore, now time.Time) ([]db.User, error) {
	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return nil, err
	}

	admin := db.User{
		ID:           uuid.NewString(),
		Email:        "admin@tennisbuddy.local",
		Name:         "Court Admin",
		Role:         db.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := store.Create(ctx, &admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	var users []db.User
	for i, first := range userNames {
		for j, last := range userNames {
			n := i*len(userNames) + j
			user := db.User{
				ID:           uuid.NewString(),
				Email:        fmt.Sprintf("%s.%s@%s", strings.ToLower(first), strings.ToLower(last), domains[n%len(domains)]),
				Name:         first + " " + last,
				Skill:        skills[n%len(skills)],
				Role:         db.RoleMember,
				PasswordHash: hash,
				CreatedAt:    now,
			}
			if err := store.Create(ctx, &user); err != nil {
				return nil, fmt.Errorf("create user %s: %w", user.Email, err)
			}
			users = append(users, user)
		}
	}
	return users, nil
}

func seedBuddyPosts(ctx context.Context, store *db.BuddyStore, users []db.User, now time.Time) (int, error) {
	for i := 0; i < targetBuddyPosts; i++ {
		user := users[rand.IntN(len(users))]
		hour := 7 + rand.IntN(12)
		post := db.BuddyPost{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			Skill:        user.Skill,
			Availability: fmt.Sprintf("Weekdays %d:00 - %d:30", hour, hour+1),
			Notes:        notes[rand.IntN(len(notes))],
			IsOpen:       true,
			CreatedAt:    now,
		}
		if err := store.Create(ctx, &post); err != nil {
			return i, err
		}
	}
	return targetBuddyPosts, nil
}

// seedReservations books random one or two hour slots through the booking
// service, skipping attempts that overlap or fall outside court hours.
func seedReservations(ctx context.Context, svc *booking.Service, courts []db.Court, users []db.User, now time.Time) (int, error) {
	created := 0
	for attempt := 0; created < targetReservations && attempt < targetReservations*10; attempt++ {
		user := users[rand.IntN(len(users))]
		court := courts[rand.IntN(len(courts))]
		date := now.AddDate(0, 0, 1+rand.IntN(reservationDays)).Format("2006-01-02")
		startHour := 7 + rand.IntN(14)
		duration := 1 + rand.IntN(2)

		_, err := svc.CreateBooking(ctx, booking.Actor{UserID: user.ID}, booking.CreateRequest{
			CourtID: court.ID,
			Date:    date,
			Start:   fmt.Sprintf("%02d:00", startHour),
			End:     fmt.Sprintf("%02d:00", startHour+duration),
		})
		var validation booking.ValidationError
		switch {
		case err == nil:
			created++
		case errors.Is(err, booking.ErrBookingConflict), errors.As(err, &validation):
			continue
		default:
			return created, err
		}
	}
	return created, nil
}
