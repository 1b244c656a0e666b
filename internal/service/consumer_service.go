package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docassist-be/internal/dto"
	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/send"
	"docassist-be/pkg/chat/session"
	"docassist-be/pkg/chat/suggestion"
	"docassist-be/pkg/chat/upload"
	"docassist-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/patrickmn/go-cache"
)

// FrameType tags session snapshots pushed to websocket clients
const FrameType = "session_change"

// FrameSink receives frames for the watchers of one session
type FrameSink interface {
	Deliver(sessionID string, frame []byte)
}

// EventPublisher sends domain events to the bus
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Notifier posts short texts to a chat channel
type Notifier interface {
	Send(ctx context.Context, text string) error
}

var causeEvents = map[string]string{
	send.CauseSent:            events.SessionMessageSent,
	send.CauseCommitted:       events.SessionReplyCommitted,
	send.CauseFailed:          events.SessionReplyFailed,
	upload.CauseBound:         events.SessionDocumentBound,
	upload.CauseFailed:        events.SessionUploadFailed,
	suggestion.CauseResponded: events.SessionSuggestionAnswered,
	session.CauseReset:        events.SessionReset,
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	sink       FrameSink
	events     EventPublisher
	notifier   Notifier
	logger     logger.ILogger

	// session id -> last delivered seq
	seen *cache.Cache
}

// NewConsumerService fans session changes out to sink. events and notifier may be nil.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	sink FrameSink,
	eventPublisher EventPublisher,
	notifier Notifier,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		sink:       sink,
		events:     eventPublisher,
		notifier:   notifier,
		logger:     log,
		seen:       cache.New(time.Hour, 10*time.Minute),
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var payload dto.SessionChangeMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal session change", map[string]interface{}{"error": err})
		return
	}

	if cs.deliver(payload) {
		cs.logger.Debug("ConsumerService", "Frame delivered", map[string]interface{}{
			"session_id": payload.SessionId,
			"seq":        payload.Seq,
			"cause":      payload.Cause,
		})
	}

	code, ok := causeEvents[payload.Cause]
	if !ok {
		return
	}
	cs.publishEvent(ctx, code, payload)

	if payload.Cause == suggestion.CauseResponded {
		cs.notify(ctx, payload)
	}
}

// deliver drops frames older than the last one sent for the session
func (cs *consumerService) deliver(payload dto.SessionChangeMessage) bool {
	if last, found := cs.seen.Get(payload.SessionId); found && last.(uint64) >= payload.Seq {
		return false
	}
	cs.seen.SetDefault(payload.SessionId, payload.Seq)

	frame, err := json.Marshal(dto.SessionFrame{Type: FrameType, Seq: payload.Seq, Data: payload.Session})
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to marshal frame", map[string]interface{}{"error": err})
		return false
	}
	cs.sink.Deliver(payload.SessionId, frame)
	return true
}

func (cs *consumerService) publishEvent(ctx context.Context, code string, payload dto.SessionChangeMessage) {
	if cs.events == nil {
		return
	}

	at := time.Now()
	data := map[string]interface{}{"seq": payload.Seq}
	if payload.Latest != nil {
		at = payload.Latest.Timestamp
		data["message_id"] = payload.Latest.Id
		data["role"] = payload.Latest.Role
	}

	if err := cs.events.Publish(ctx, events.NewSessionEvent(code, payload.SessionId, at, data)); err != nil {
		cs.logger.Warn("ConsumerService", "Failed to publish session event", map[string]interface{}{
			"session_id": payload.SessionId,
			"event":      code,
			"error":      err.Error(),
		})
	}
}

func (cs *consumerService) notify(ctx context.Context, payload dto.SessionChangeMessage) {
	if cs.notifier == nil || payload.Latest == nil {
		return
	}

	text := fmt.Sprintf("Session %s: %s", payload.SessionId, payload.Latest.Content)
	if err := cs.notifier.Send(ctx, text); err != nil {
		cs.logger.Warn("ConsumerService", "Slack notification failed", map[string]interface{}{
			"session_id": payload.SessionId,
			"error":      err.Error(),
		})
	}
}
