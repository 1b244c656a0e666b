package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler processes one event. A returned error asks for redelivery.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber consumes events from the EVENTS stream with durable consumers
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
	ctxs   []jetstream.ConsumeContext
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: log}, nil
}

// Subscribe attaches handler to subject through the durable consumer durableName
func (s *Subscriber) Subscribe(ctx context.Context, subject, durableName string, handler EventHandler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decode(msg)
		if err != nil {
			s.logger.Warn("NatsSubscriber", "Dropping undecodable event", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Term()
			return
		}

		if err := handler(context.Background(), event); err != nil {
			s.logger.Error("NatsSubscriber", "Handler failed", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err,
			})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.ctxs = append(s.ctxs, cc)

	s.logger.Info("NatsSubscriber", "Subscribed", map[string]interface{}{"subject": subject, "durable": durableName})
	return nil
}

func decode(msg jetstream.Msg) (events.BaseEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Data(), &payload); err != nil {
		return events.BaseEvent{}, err
	}

	eventType := msg.Headers().Get(headerEventType)
	if eventType == "" {
		eventType = strings.TrimPrefix(msg.Subject(), SubjectPrefix)
	}

	occurredAt := time.Now()
	if s, ok := payload["occurred_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			occurredAt = t
		}
	}

	return events.BaseEvent{Type: eventType, Data: payload, OccurredAt: occurredAt}, nil
}

func (s *Subscriber) Close() {
	for _, cc := range s.ctxs {
		cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
