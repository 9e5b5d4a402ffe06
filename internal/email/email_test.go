package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestBuildReminderEmail(t *testing.T) {
	msg := BuildReminderEmail(ReminderDetails{
		PlayerName:    "Serena",
		CourtName:     "Center Court",
		CourtLocation: "Riverside Park",
		Date:          "2024-06-03",
		Start:         "14:00",
		End:           "15:30",
	})

	if msg.Subject != "Reminder: Center Court on Monday, Jun 3, 2024 at 2:00 PM" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"Hi Serena,", "Location: Riverside Park", "Time: 2:00 PM - 3:30 PM"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("expected body to contain %q:\n%s", want, msg.Body)
		}
	}
}

func TestBuildReminderEmailFallbacks(t *testing.T) {
	msg := BuildReminderEmail(ReminderDetails{Date: "not-a-date", Start: "bad", End: "15:00"})
	if !strings.Contains(msg.Body, "Hi there,") || !strings.Contains(msg.Body, "Date: not-a-date") {
		t.Fatalf("unexpected fallback body:\n%s", msg.Body)
	}
	if strings.Contains(msg.Body, "Location:") {
		t.Fatal("expected empty location to be omitted")
	}
}

func TestSESClientSend(t *testing.T) {
	fake := &fakeSES{}
	client := &SESClient{client: fake, sender: "courts@example.com"}

	if err := client.Send(context.Background(), " player@example.com ", "Subject", "Body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected one SES call, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if in.Destination.ToAddresses[0] != "player@example.com" || aws.ToString(in.FromEmailAddress) != "courts@example.com" {
		t.Fatalf("unexpected input %+v", in)
	}

	if err := client.Send(context.Background(), "", "Subject", "Body"); err == nil {
		t.Fatal("expected empty recipient to fail")
	}

	fake.err = errors.New("throttled")
	if err := client.Send(context.Background(), "player@example.com", "Subject", "Body"); err == nil {
		t.Fatal("expected SES error to propagate")
	}
}

func TestNewSESClientRequiresSettings(t *testing.T) {
	if _, err := NewSESClient(context.Background(), "", "secret", "us-east-1", "a@example.com"); err == nil {
		t.Fatal("expected missing key to fail")
	}
	if _, err := NewSESClient(context.Background(), "key", "secret", "us-east-1", ""); err == nil {
		t.Fatal("expected missing sender to fail")
	}
}

func TestLoggingSender(t *testing.T) {
	var s Sender = LoggingSender{}
	if err := s.Send(context.Background(), "a@example.com", "Subject", "Body"); err != nil {
		t.Fatalf("logging sender: %v", err)
	}
}
