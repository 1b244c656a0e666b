package service

import (
	"context"
	"encoding/json"
	"fmt"

	"docassist-be/internal/dto"
	"docassist-be/internal/mapper"
	"docassist-be/pkg/chat/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ChangesTopic is the in-process topic carrying session changes
const ChangesTopic = "session.changes"

type IPublisherService interface {
	PublishChange(ctx context.Context, change session.Change) error
}

type publisherService struct {
	publisher message.Publisher
	topicName string
	mapper    *mapper.SessionMapper
}

func NewPublisherService(publisher message.Publisher, topicName string) IPublisherService {
	return &publisherService{
		publisher: publisher,
		topicName: topicName,
		mapper:    mapper.NewSessionMapper(),
	}
}

func (ps *publisherService) PublishChange(ctx context.Context, change session.Change) error {
	state := ps.mapper.ToSessionResponse(change.State)
	stateJson, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	payload := dto.SessionChangeMessage{
		SessionId: change.State.ID,
		Seq:       change.Seq,
		Cause:     change.Cause,
		Session:   stateJson,
	}
	if n := len(state.Messages); n > 0 {
		latest := state.Messages[n-1]
		payload.Latest = &latest
	}

	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal session change: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payloadJson)
	msg.SetContext(ctx)
	msg.Metadata.Set("session_id", payload.SessionId)
	msg.Metadata.Set("cause", payload.Cause)

	return ps.publisher.Publish(ps.topicName, msg)
}
