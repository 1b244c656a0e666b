package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/send"
	"docassist-be/pkg/chat/suggestion"
	"docassist-be/pkg/chat/upload"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	calls atomic.Int32
	gate  chan struct{}
	reply func(req collaborator.ConversationRequest) ([]collaborator.WireMessage, error)
}

func (f *fakeConversation) Reply(ctx context.Context, req collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.reply == nil {
		return nil, errors.New("no reply configured")
	}
	return f.reply(req)
}

// echo returns the request history plus one assistant turn
func echo(answer string) func(collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
	return func(req collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
		out := append([]collaborator.WireMessage(nil), req.Messages...)
		return append(out, collaborator.WireMessage{Role: "assistant", Content: answer}), nil
	}
}

type fakeDocuments struct {
	calls  atomic.Int32
	gate   chan struct{}
	result *collaborator.UploadResult
	err    error
}

func (f *fakeDocuments) Upload(ctx context.Context, file collaborator.File) (*collaborator.UploadResult, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.result, f.err
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *changeRecorder) OnChange(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func newController(conv collaborator.ConversationClient, docs collaborator.DocumentClient) (*Controller, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(conv, docs, Options{ID: "s-1", Clock: clock}), clock
}

func pdf(name string) collaborator.File {
	return collaborator.File{Name: name, Size: 2048, ContentType: "application/pdf", Body: strings.NewReader("%PDF-1.7")}
}

func TestNewStartsWithGreeting(t *testing.T) {
	c, _ := newController(&fakeConversation{}, &fakeDocuments{})

	s := c.Snapshot()
	assert.Equal(t, "s-1", s.ID)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, message.RoleAssistant, s.Messages[0].Role())
	assert.Equal(t, Greeting, s.Messages[0].Text())
	assert.False(t, s.IsSending)
	assert.False(t, s.IsUploading)
	assert.False(t, s.HasBoundDocument)
	assert.Nil(t, s.Document)
}

func TestControllersAreIndependent(t *testing.T) {
	a, _ := newController(&fakeConversation{}, &fakeDocuments{})
	b := New(&fakeConversation{}, &fakeDocuments{}, Options{})

	a.SetDraft("only in a")
	assert.Empty(t, b.Snapshot().Draft)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSendMessageIsSingleFlight(t *testing.T) {
	conv := &fakeConversation{gate: make(chan struct{}), reply: echo("sure")}
	c, _ := newController(conv, &fakeDocuments{})
	c.SetDraft("first")

	done, ok := c.SendMessage(context.Background(), "first")
	require.True(t, ok)

	s := c.Snapshot()
	assert.True(t, s.IsSending)
	assert.Empty(t, s.Draft)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "first", s.Messages[1].Text())

	_, ok = c.SendMessage(context.Background(), "second")
	assert.False(t, ok)
	assert.Len(t, c.Snapshot().Messages, 2)

	close(conv.gate)
	<-done

	s = c.Snapshot()
	assert.False(t, s.IsSending)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, "sure", s.Messages[2].Text())
	assert.Equal(t, int32(1), conv.calls.Load())
}

func TestSendMessageBlankIsNoop(t *testing.T) {
	conv := &fakeConversation{}
	c, _ := newController(conv, &fakeDocuments{})
	rec := &changeRecorder{}
	c.Subscribe(rec)

	_, ok := c.SendMessage(context.Background(), "   ")
	assert.False(t, ok)
	assert.Len(t, c.Snapshot().Messages, 1)
	assert.Empty(t, rec.all())
	assert.Zero(t, conv.calls.Load())
}

func TestSendMessageFailureKeepsUserMessage(t *testing.T) {
	conv := &fakeConversation{reply: func(collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
		return nil, &collaborator.TransportError{Op: "chat", StatusCode: 500, Body: "boom"}
	}}
	c, _ := newController(conv, &fakeDocuments{})

	done, ok := c.SendMessage(context.Background(), "hello")
	require.True(t, ok)
	<-done

	s := c.Snapshot()
	require.Len(t, s.Messages, 3)
	assert.Equal(t, "hello", s.Messages[1].Text())
	assert.Equal(t, send.ApologyText, s.Messages[2].Text())
	assert.False(t, s.IsSending)
}

func TestSendMessageReplacesWithFreshIDs(t *testing.T) {
	conv := &fakeConversation{reply: func(collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
		return []collaborator.WireMessage{
			{Role: "user", Content: "a"},
			{Role: "assistant", Content: "b"},
			{Role: "user", Content: "c"},
			{Role: "assistant", Content: "d"},
		}, nil
	}}
	c, _ := newController(conv, &fakeDocuments{})
	before := c.Snapshot().Messages

	done, ok := c.SendMessage(context.Background(), "c")
	require.True(t, ok)
	<-done

	after := c.Snapshot().Messages
	require.Len(t, after, 4)
	seen := map[message.ID]bool{}
	for _, m := range after {
		assert.False(t, seen[m.MessageID()])
		seen[m.MessageID()] = true
	}
	assert.False(t, seen[before[0].MessageID()])
}

func TestUploadReportBindsDocument(t *testing.T) {
	docs := &fakeDocuments{result: &collaborator.UploadResult{Success: true, DocumentID: "doc-1", Content: "Q1 revenue"}}
	c, _ := newController(&fakeConversation{}, docs)

	done, ok := c.UploadFile(context.Background(), pdf("Report.pdf"))
	require.True(t, ok)
	<-done

	s := c.Snapshot()
	assert.True(t, s.HasBoundDocument)
	assert.False(t, s.IsUploading)
	require.NotNil(t, s.Document)
	assert.Equal(t, "doc-1", s.Document.ID)

	require.Len(t, s.Messages, 3)
	assert.Equal(t, message.RoleSystem, s.Messages[1].Role())
	sg, ok := message.Suggest(s.Messages[2])
	require.True(t, ok)
	assert.Equal(t, upload.ActionAnalyzeDocument, sg.ActionKey)
}

func TestUploadIsSingleFlight(t *testing.T) {
	docs := &fakeDocuments{gate: make(chan struct{}), result: &collaborator.UploadResult{Success: true, DocumentID: "doc-1"}}
	c, _ := newController(&fakeConversation{}, docs)

	done, ok := c.UploadFile(context.Background(), pdf("a.pdf"))
	require.True(t, ok)
	assert.True(t, c.Snapshot().IsUploading)

	_, ok = c.UploadFile(context.Background(), pdf("b.pdf"))
	assert.False(t, ok)

	close(docs.gate)
	<-done
	assert.Equal(t, int32(1), docs.calls.Load())
}

func TestUploadFailureKeepsPreviousDocument(t *testing.T) {
	docs := &fakeDocuments{result: &collaborator.UploadResult{Success: true, DocumentID: "doc-1"}}
	c, _ := newController(&fakeConversation{}, docs)

	done, _ := c.UploadFile(context.Background(), pdf("first.pdf"))
	<-done

	docs.result = nil
	docs.err = errors.New("network down")
	done, ok := c.UploadFile(context.Background(), pdf("second.pdf"))
	require.True(t, ok)
	<-done

	s := c.Snapshot()
	require.NotNil(t, s.Document)
	assert.Equal(t, "doc-1", s.Document.ID)
	assert.Len(t, s.Messages, 4)
	assert.Contains(t, s.Messages[3].Text(), "second.pdf")
}

func TestSendAndUploadCanOverlap(t *testing.T) {
	conv := &fakeConversation{gate: make(chan struct{}), reply: echo("ok")}
	docs := &fakeDocuments{gate: make(chan struct{}), result: &collaborator.UploadResult{Success: true, DocumentID: "d"}}
	c, _ := newController(conv, docs)

	sent, ok := c.SendMessage(context.Background(), "hi")
	require.True(t, ok)
	uploaded, ok := c.UploadFile(context.Background(), pdf("x.pdf"))
	require.True(t, ok)

	s := c.Snapshot()
	assert.True(t, s.IsSending)
	assert.True(t, s.IsUploading)

	close(docs.gate)
	<-uploaded
	close(conv.gate)
	<-sent

	s = c.Snapshot()
	assert.False(t, s.IsSending)
	assert.False(t, s.IsUploading)
	assert.True(t, s.HasBoundDocument)
}

func TestSendCarriesBoundDocument(t *testing.T) {
	var got collaborator.ConversationRequest
	conv := &fakeConversation{reply: func(req collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
		got = req
		return echo("ok")(req)
	}}
	docs := &fakeDocuments{result: &collaborator.UploadResult{Success: true, DocumentID: "doc-9", Content: "terms"}}
	c, _ := newController(conv, docs)

	done, _ := c.UploadFile(context.Background(), pdf("contract.pdf"))
	<-done
	done, ok := c.SendMessage(context.Background(), "Who signed?")
	require.True(t, ok)
	<-done

	assert.Equal(t, "doc-9", got.DocumentID)
	assert.Equal(t, "terms", got.DocumentContent)
	for _, m := range got.Messages {
		assert.NotEqual(t, "system", m.Role)
	}
}

func TestAcceptSuggestionUnknownKey(t *testing.T) {
	c, clock := newController(&fakeConversation{}, &fakeDocuments{})

	res := c.AcceptSuggestion(context.Background(), "bogus")
	assert.Len(t, c.Snapshot().Messages, 2)

	clock.BlockUntil(1)
	clock.Advance(suggestion.DefaultDelay)
	<-res

	s := c.Snapshot()
	require.Len(t, s.Messages, 3)
	assert.Equal(t, suggestion.AcceptText, s.Messages[1].Text())
	assert.Equal(t, "I've processed your request. Is there anything else you'd like me to do with this document?", s.Messages[2].Text())
}

func TestAnalyzeUsesDocumentKind(t *testing.T) {
	docs := &fakeDocuments{result: &collaborator.UploadResult{Success: true, DocumentID: "doc-1"}}
	c, clock := newController(&fakeConversation{}, docs)

	done, _ := c.UploadFile(context.Background(), pdf("Team Meeting Notes.pdf"))
	<-done

	res := c.AcceptSuggestion(context.Background(), upload.ActionAnalyzeDocument)
	clock.BlockUntil(1)
	clock.Advance(suggestion.DefaultDelay)
	r := <-res

	require.NotNil(t, r.Response.Suggestion)
	assert.Equal(t, suggestion.ActionExtractActionItems, r.Response.Suggestion.ActionKey)
}

func TestListenersSeeChangesInOrder(t *testing.T) {
	conv := &fakeConversation{reply: echo("ok")}
	c, _ := newController(conv, &fakeDocuments{})
	rec := &changeRecorder{}
	unsubscribe := c.Subscribe(rec)

	c.SetDraft("h")
	c.SetDraft("hi")
	done, _ := c.SendMessage(context.Background(), "hi")
	<-done

	changes := rec.all()
	require.Len(t, changes, 4)
	for i, ch := range changes {
		assert.Equal(t, uint64(i+1), ch.Seq)
	}
	assert.Equal(t, CauseDraftChanged, changes[0].Cause)
	assert.Equal(t, send.CauseSent, changes[2].Cause)
	assert.True(t, changes[2].State.IsSending)
	assert.Equal(t, send.CauseCommitted, changes[3].Cause)
	assert.False(t, changes[3].State.IsSending)

	unsubscribe()
	c.SetDraft("x")
	assert.Len(t, rec.all(), 4)
}

func TestResetRestoresGreeting(t *testing.T) {
	docs := &fakeDocuments{result: &collaborator.UploadResult{Success: true, DocumentID: "doc-1"}}
	c, _ := newController(&fakeConversation{}, docs)

	done, _ := c.UploadFile(context.Background(), pdf("Report.pdf"))
	<-done
	c.SetDraft("draft")

	require.NoError(t, c.Reset())
	s := c.Snapshot()
	require.Len(t, s.Messages, 1)
	assert.Equal(t, Greeting, s.Messages[0].Text())
	assert.False(t, s.HasBoundDocument)
	assert.Empty(t, s.Draft)
}

func TestResetRejectedWhileSending(t *testing.T) {
	conv := &fakeConversation{gate: make(chan struct{}), reply: echo("ok")}
	c, _ := newController(conv, &fakeDocuments{})
	rec := &changeRecorder{}

	done, _ := c.SendMessage(context.Background(), "hi")
	c.Subscribe(rec)

	assert.ErrorIs(t, c.Reset(), ErrBusy)
	assert.Empty(t, rec.all())
	assert.Len(t, c.Snapshot().Messages, 2)

	close(conv.gate)
	<-done
}

func TestResetRejectedWhileUploading(t *testing.T) {
	docs := &fakeDocuments{gate: make(chan struct{}), result: &collaborator.UploadResult{Success: true, DocumentID: "doc-1"}}
	c, _ := newController(&fakeConversation{}, docs)
	c.SetDraft("half typed")
	rec := &changeRecorder{}

	done, ok := c.UploadFile(context.Background(), pdf("a.pdf"))
	require.True(t, ok)
	before := c.Latest()
	c.Subscribe(rec)

	assert.ErrorIs(t, c.Reset(), ErrBusy)
	assert.Empty(t, rec.all())

	after := c.Latest()
	assert.Equal(t, before.Seq, after.Seq)
	assert.Equal(t, "half typed", after.State.Draft)
	assert.Len(t, after.State.Messages, len(before.State.Messages))
	assert.True(t, after.State.IsUploading)

	close(docs.gate)
	<-done
}

func TestLatestTracksEmittedSeq(t *testing.T) {
	c, _ := newController(&fakeConversation{}, &fakeDocuments{})
	rec := &changeRecorder{}
	c.Subscribe(rec)

	assert.Equal(t, uint64(0), c.Latest().Seq)

	c.SetDraft("a")
	c.SetDraft("ab")

	changes := rec.all()
	require.Len(t, changes, 2)
	latest := c.Latest()
	assert.Equal(t, changes[1].Seq, latest.Seq)
	assert.Equal(t, "ab", latest.State.Draft)
}
