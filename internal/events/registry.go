// Package events fans reservation changes out to listeners registered per court.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ReservationCreated   = "reservation.created"
	ReservationUpdated   = "reservation.updated"
	ReservationCancelled = "reservation.cancelled"
)

// Event describes a committed change to a resource. PreviousCourtID is set
// when a reservation moved off another court.
type Event struct {
	Type            string    `json:"type"`
	CourtID         string    `json:"courtId"`
	PreviousCourtID string    `json:"previousCourtId,omitempty"`
	SubjectID       string    `json:"subjectId"`
	Date            string    `json:"date,omitempty"`
	Payload         any       `json:"payload,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Listener receives events. Returned errors are logged and otherwise ignored.
type Listener func(ctx context.Context, event Event) error

type subscription struct {
	id       uint64
	listener Listener
}

// Registry keeps listeners keyed by court id plus a set of listeners for every court.
type Registry struct {
	mu     sync.RWMutex
	nextID uint64
	byKey  map[string][]subscription
	all    []subscription
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string][]subscription)}
}

// Subscribe registers listener for events on one court. Call the returned func to remove it.
func (r *Registry) Subscribe(courtID string, listener Listener) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.byKey[courtID] = append(r.byKey[courtID], subscription{id: id, listener: listener})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.byKey[courtID] = without(r.byKey[courtID], id)
			if len(r.byKey[courtID]) == 0 {
				delete(r.byKey, courtID)
			}
		})
	}
}

// SubscribeAll registers listener for events on every court.
func (r *Registry) SubscribeAll(listener Listener) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.all = append(r.all, subscription{id: id, listener: listener})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.all = without(r.all, id)
		})
	}
}

// Publish delivers event synchronously to the court's listeners, then to the
// previous court's listeners for a move, then to global ones.
func (r *Registry) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	r.mu.RLock()
	targets := make([]subscription, 0, len(r.byKey[event.CourtID])+len(r.all))
	targets = append(targets, r.byKey[event.CourtID]...)
	if event.PreviousCourtID != "" && event.PreviousCourtID != event.CourtID {
		targets = append(targets, r.byKey[event.PreviousCourtID]...)
	}
	targets = append(targets, r.all...)
	r.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.listener(ctx, event); err != nil {
			log.Ctx(ctx).Warn().
				Err(err).
				Str("event_type", event.Type).
				Str("court_id", event.CourtID).
				Str("subject_id", event.SubjectID).
				Msg("Event listener failed")
		}
	}
}

// ListenerCount reports how many listeners would receive an event for courtID.
func (r *Registry) ListenerCount(courtID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey[courtID]) + len(r.all)
}

func without(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}
