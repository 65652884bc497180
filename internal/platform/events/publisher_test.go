package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatermillPublisher_ChannelRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := NewChannelPubSub(zerolog.Nop())
	defer ps.Close()

	msgs, err := ps.Subscribe(ctx, "intake.events")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewWatermillPublisher(ps, "intake.events", zerolog.Nop())
	data := map[string]string{"patientId": "p-1"}
	if err := pub.Publish(ctx, QuestionnaireSubmitted, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if got := msg.Metadata.Get("event_type"); got != string(QuestionnaireSubmitted) {
			t.Errorf("unexpected event_type metadata %q", got)
		}
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != QuestionnaireSubmitted || ev.ID != msg.UUID || ev.Source != source {
			t.Errorf("unexpected envelope %+v", ev)
		}
		var got map[string]string
		json.Unmarshal(ev.Data, &got)
		if got["patientId"] != "p-1" {
			t.Errorf("unexpected data %s", ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillPublisher_UnmarshalableData(t *testing.T) {
	ps := NewChannelPubSub(zerolog.Nop())
	defer ps.Close()
	pub := NewWatermillPublisher(ps, "t", zerolog.Nop())
	if err := pub.Publish(context.Background(), PatientRegistered, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestLog_ConsumesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps := NewChannelPubSub(zerolog.Nop())
	defer ps.Close()
	if err := Log(ctx, ps, "t", zerolog.Nop()); err != nil {
		t.Fatalf("log: %v", err)
	}
	done := make(chan error, 1)
	pub := NewWatermillPublisher(ps, "t", zerolog.Nop())
	go func() {
		done <- pub.Publish(ctx, PatientRegistered, map[string]string{})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not complete")
	}
}
