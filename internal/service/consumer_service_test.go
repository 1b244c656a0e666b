package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"docassist-be/internal/dto"
	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/send"
	"docassist-be/pkg/chat/session"
	"docassist-be/pkg/chat/suggestion"
	"docassist-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)

func change(seq uint64, cause string, msgs ...message.Message) session.Change {
	return session.Change{
		Seq:   seq,
		Cause: cause,
		State: session.State{ID: "s-1", Messages: msgs},
	}
}

func TestChangesFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	sink := &recordingSink{}
	bus := &recordingEvents{}
	notifier := &recordingNotifier{}

	consumer := NewConsumerService(pubSub, ChangesTopic, sink, bus, notifier, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))
	publisher := NewPublisherService(pubSub, ChangesTopic)

	greeting := message.NewAssistant(session.Greeting, testNow, nil)
	question := message.NewUser("What is in the report?", testNow)
	require.NoError(t, publisher.PublishChange(ctx, change(1, send.CauseSent, greeting, question)))

	require.Eventually(t, func() bool { return sink.count("s-1") == 1 }, time.Second, 5*time.Millisecond)

	var frame dto.SessionFrame
	require.NoError(t, json.Unmarshal(sink.get("s-1", 0), &frame))
	assert.Equal(t, FrameType, frame.Type)
	assert.Equal(t, uint64(1), frame.Seq)

	var state dto.SessionResponse
	require.NoError(t, json.Unmarshal(frame.Data, &state))
	assert.Len(t, state.Messages, 2)

	require.Eventually(t, func() bool { return len(bus.types()) == 1 }, time.Second, 5*time.Millisecond)
	ev := bus.last()
	assert.Equal(t, events.SessionMessageSent, ev.EventType())
	assert.Equal(t, string(question.MessageID()), ev.Payload()["message_id"])
	assert.Empty(t, notifier.all())
}

func TestAnsweredSuggestionNotifies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	notifier := &recordingNotifier{}
	consumer := NewConsumerService(pubSub, ChangesTopic, &recordingSink{}, nil, notifier, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	answer := message.NewAssistant("Here's a summary of your document", testNow, nil)
	require.NoError(t, NewPublisherService(pubSub, ChangesTopic).PublishChange(ctx, change(4, suggestion.CauseResponded, answer)))

	require.Eventually(t, func() bool { return len(notifier.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Session s-1: Here's a summary of your document", notifier.all()[0])
}

func TestStaleFramesAreDropped(t *testing.T) {
	sink := &recordingSink{}
	cs := NewConsumerService(nil, ChangesTopic, sink, nil, nil, logger.NewNopLogger()).(*consumerService)

	assert.True(t, cs.deliver(dto.SessionChangeMessage{SessionId: "s-1", Seq: 2}))
	assert.False(t, cs.deliver(dto.SessionChangeMessage{SessionId: "s-1", Seq: 1}))
	assert.False(t, cs.deliver(dto.SessionChangeMessage{SessionId: "s-1", Seq: 2}))
	assert.True(t, cs.deliver(dto.SessionChangeMessage{SessionId: "s-1", Seq: 3}))
	assert.True(t, cs.deliver(dto.SessionChangeMessage{SessionId: "s-2", Seq: 1}))

	assert.Equal(t, 2, sink.count("s-1"))
	assert.Equal(t, 1, sink.count("s-2"))
}
