package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/session"
	"docassist-be/pkg/events"
)

type fakeConversation struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (f *fakeConversation) Reply(ctx context.Context, req collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	out := append([]collaborator.WireMessage(nil), req.Messages...)
	return append(out, collaborator.WireMessage{Role: "assistant", Content: "Here is what I found."}), nil
}

type fakeDocuments struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeDocuments) Upload(ctx context.Context, file collaborator.File) (*collaborator.UploadResult, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if file.Name == "broken.pdf" {
		return nil, errors.New("connection refused")
	}
	return &collaborator.UploadResult{Success: true, DocumentID: "doc-1", Content: "quarterly numbers"}, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []session.Change
}

func (p *recordingPublisher) PublishChange(ctx context.Context, change session.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func (p *recordingPublisher) causes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Cause)
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recordingEvents) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func (s *recordingSink) Deliver(sessionID string, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		s.frames = make(map[string][][]byte)
	}
	s.frames[sessionID] = append(s.frames[sessionID], frame)
}

func (s *recordingSink) count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[sessionID])
}

func (s *recordingSink) get(sessionID string, i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[sessionID][i]
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}
