package llmchat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/collaborator/localdoc"
	"docassist-be/pkg/llm"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	history []llm.Message
	reply   string
	err     error
}

func (f *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.history = history
	return f.reply, f.err
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func newTestClient(p llm.LLMProvider) *Client {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 4, 12, 10, 0, 0, 0, time.UTC))
	return New(p, clock, logger.NewNopLogger(), Config{})
}

func TestReplyAppendsAssistantTurn(t *testing.T) {
	p := &fakeProvider{reply: "The agreement runs for two years."}
	c := newTestClient(p)

	history := []collaborator.WireMessage{
		{Role: "assistant", Content: "Hello!"},
		{Role: "user", Content: "How long is the term?"},
	}
	out, err := c.Reply(context.Background(), collaborator.ConversationRequest{
		Messages:        history,
		DocumentID:      "doc-1",
		DocumentContent: "This service agreement has a term of two years.",
	})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, history, out[:2])
	assert.Equal(t, "assistant", out[2].Role)
	assert.Equal(t, "The agreement runs for two years.", out[2].Content)
	assert.Equal(t, "2025-04-12T10:00:00Z", out[2].Timestamp)

	require.Len(t, p.history, 3)
	assert.Equal(t, "system", p.history[0].Role)
	assert.Contains(t, p.history[0].Content, "- This service agreement has a term of two years.")
}

func TestReplyWithoutUserMessage(t *testing.T) {
	p := &fakeProvider{reply: "x"}
	_, err := newTestClient(p).Reply(context.Background(), collaborator.ConversationRequest{
		Messages: []collaborator.WireMessage{{Role: "assistant", Content: "Hello!"}},
	})
	assert.ErrorIs(t, err, collaborator.ErrNoUserMessage)
	assert.Nil(t, p.history)
}

func TestReplyProviderError(t *testing.T) {
	boom := errors.New("model offline")
	_, err := newTestClient(&fakeProvider{err: boom}).Reply(context.Background(), collaborator.ConversationRequest{
		Messages: []collaborator.WireMessage{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, boom)
}

func TestSystemPromptWithoutDocument(t *testing.T) {
	assert.Contains(t, SystemPrompt(nil), "no document has been uploaded")
}

func TestReplyLooksUpContentByDocumentID(t *testing.T) {
	docs := localdoc.New(0, time.Minute, logger.NewNopLogger())
	uploaded, err := docs.Upload(context.Background(), collaborator.File{
		Name: "terms.txt",
		Body: strings.NewReader("Either party may cancel with thirty days notice."),
	})
	require.NoError(t, err)

	p := &fakeProvider{reply: "Thirty days."}
	clock := clockwork.NewFakeClock()
	c := New(p, clock, logger.NewNopLogger(), Config{Documents: docs})

	_, err = c.Reply(context.Background(), collaborator.ConversationRequest{
		Messages:   []collaborator.WireMessage{{Role: "user", Content: "How do I cancel?"}},
		DocumentID: uploaded.DocumentID,
	})
	require.NoError(t, err)
	assert.Contains(t, p.history[0].Content, "thirty days notice")

	_, err = c.Reply(context.Background(), collaborator.ConversationRequest{
		Messages:   []collaborator.WireMessage{{Role: "user", Content: "How do I cancel?"}},
		DocumentID: "unknown",
	})
	require.NoError(t, err)
	assert.Contains(t, p.history[0].Content, "no document has been uploaded")
}
