// Package events publishes domain events (questionnaire submissions, patient
// registrations) through watermill, to Kafka when brokers are configured and
// to an in-process channel otherwise.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

type Type string

const (
	QuestionnaireSubmitted Type = "questionnaire.submitted"
	PatientRegistered      Type = "patient.registered"
)

const source = "intake-server"

// Event is the envelope written as the message payload.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, t Type, data interface{}) error
	Close() error
}

// WatermillPublisher wraps any watermill message.Publisher.
type WatermillPublisher struct {
	pub    message.Publisher
	topic  string
	logger zerolog.Logger
}

func NewWatermillPublisher(pub message.Publisher, topic string, logger zerolog.Logger) *WatermillPublisher {
	return &WatermillPublisher{pub: pub, topic: topic, logger: logger}
}

// NewKafkaPublisher connects to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*WatermillPublisher, error) {
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewLoggerAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewWatermillPublisher(pub, topic, logger), nil
}

// NewChannelPubSub returns an in-process pub/sub. Messages published with no
// subscriber are dropped.
func NewChannelPubSub(logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewLoggerAdapter(logger))
}

func (p *WatermillPublisher) Publish(ctx context.Context, t Type, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", t, err)
	}
	ev := Event{
		ID:        watermill.NewUUID(),
		Type:      t,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("event_type", string(t))
	msg.Metadata.Set("source", source)
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		p.logger.Error().Err(err).Str("event_id", ev.ID).Str("event_type", string(t)).Msg("publish event failed")
		return fmt.Errorf("publish %s event: %w", t, err)
	}
	p.logger.Debug().Str("event_id", ev.ID).Str("event_type", string(t)).Str("topic", p.topic).Msg("event published")
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.pub.Close()
}

// Log consumes topic from sub and logs each event until ctx ends. The
// server runs it against the in-process channel so events remain visible
// without a broker.
func Log(ctx context.Context, sub message.Subscriber, topic string, logger zerolog.Logger) error {
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	go func() {
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("undecodable event")
			} else {
				logger.Info().Str("event_id", ev.ID).Str("event_type", string(ev.Type)).Msg("event")
			}
			msg.Ack()
		}
	}()
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Type, interface{}) error { return nil }
func (Nop) Close() error                                     { return nil }
