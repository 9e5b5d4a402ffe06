package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisherListenerEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	publisher := &AMQPPublisher{ch: ch, exchange: "tennisbuddy.events"}

	registry := NewRegistry()
	registry.SubscribeAll(publisher.Listener())

	occurred := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	registry.Publish(context.Background(), Event{
		Type:            ReservationUpdated,
		CourtID:         "court-b",
		PreviousCourtID: "court-a",
		SubjectID:       "res-1",
		Date:            "2024-06-01",
		OccurredAt:      occurred,
	})

	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != "tennisbuddy.events" || got.key != ReservationUpdated {
		t.Fatalf("unexpected routing %s/%s", got.exchange, got.key)
	}
	if got.msg.ContentType != "application/json" || got.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected message properties %+v", got.msg)
	}
	if got.msg.MessageId != "res-1" || !got.msg.Timestamp.Equal(occurred) {
		t.Fatalf("unexpected id or timestamp: %s %s", got.msg.MessageId, got.msg.Timestamp)
	}

	var body map[string]any
	if err := json.Unmarshal(got.msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["type"] != ReservationUpdated || body["courtId"] != "court-b" || body["previousCourtId"] != "court-a" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAMQPPublisherErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	publisher := &AMQPPublisher{ch: ch, exchange: "x"}

	err := publisher.Publish(context.Background(), Event{Type: ReservationCreated, SubjectID: "res-1"})
	if err == nil || !strings.Contains(err.Error(), "channel closed") {
		t.Fatalf("expected channel error, got %v", err)
	}

	err = publisher.Publish(context.Background(), Event{Type: ReservationCreated, Payload: make(chan int)})
	if err == nil || !strings.Contains(err.Error(), "encode event") {
		t.Fatalf("expected encode error, got %v", err)
	}

	if err := publisher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatal("expected channel to be closed")
	}
}
