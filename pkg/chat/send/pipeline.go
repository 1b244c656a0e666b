package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/message"

	"github.com/jonboulle/clockwork"
)

// State of the send pipeline
type State string

const (
	StateIdle    State = "IDLE"
	StateSending State = "SENDING"
)

// Change causes reported through the Handle
const (
	CauseSent      = "message_sent"
	CauseCommitted = "reply_committed"
	CauseFailed    = "reply_failed"
)

// ApologyText is appended when the conversation service could not answer
const ApologyText = "Sorry, I encountered an error while processing your request. Please try again."

// ErrInvalidRole is returned when the conversation service answers with an unknown role
var ErrInvalidRole = errors.New("reply carries an invalid role")

// Handle is the session-owned surface a running send writes through.
// It is only used for the duration of one send.
type Handle interface {
	// Submit appends the user turn, clears the draft and returns the resulting history
	Submit(msg message.Message) []message.Message
	// Document returns the bound document, if any
	Document() (id, content string, ok bool)
	// Commit replaces the whole history. release is called inside the same mutation.
	Commit(msgs []message.Message, release func()) error
	// Recover appends msg. release is called inside the same mutation.
	Recover(msg message.Message, release func())
}

// Pipeline turns a user utterance into a committed reply.
// One send may be in flight at a time; further sends are rejected.
type Pipeline struct {
	client collaborator.ConversationClient
	clock  clockwork.Clock
	logger logger.ILogger

	sending atomic.Bool
}

// NewPipeline creates an idle send pipeline
func NewPipeline(client collaborator.ConversationClient, clock clockwork.Clock, log logger.ILogger) *Pipeline {
	return &Pipeline{
		client: client,
		clock:  clock,
		logger: log,
	}
}

// State returns the current pipeline state
func (p *Pipeline) State() State {
	if p.sending.Load() {
		return StateSending
	}
	return StateIdle
}

// Send appends text as a user message right away and asks the conversation
// service for a reply in the background. ok is false when text is blank or a
// send is already running; nothing is mutated in that case.
func (p *Pipeline) Send(ctx context.Context, text string, h Handle, attachments ...message.Attachment) (done <-chan struct{}, ok bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	if !p.sending.CompareAndSwap(false, true) {
		p.logger.Debug("SendPipeline", "Send rejected, another one is in flight", nil)
		return nil, false
	}

	history := h.Submit(message.NewUser(text, p.clock.Now(), attachments...))

	req := collaborator.ConversationRequest{Messages: ToWire(history)}
	if id, content, bound := h.Document(); bound {
		req.DocumentID = id
		req.DocumentContent = content
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		p.run(context.WithoutCancel(ctx), req, h)
	}()
	return ch, true
}

func (p *Pipeline) run(ctx context.Context, req collaborator.ConversationRequest, h Handle) {
	release := func() { p.sending.Store(false) }

	reply, err := p.client.Reply(ctx, req)
	if err == nil {
		var msgs []message.Message
		msgs, err = FromWire(reply, p.clock.Now())
		if err == nil {
			err = h.Commit(msgs, release)
			if err == nil {
				p.logger.Info("SendPipeline", "Reply committed", map[string]interface{}{
					"sent":     len(req.Messages),
					"received": len(msgs),
				})
				return
			}
		}
	}

	p.logger.Error("SendPipeline", "Conversation exchange failed", map[string]interface{}{
		"error":       err,
		"document_id": req.DocumentID,
	})
	h.Recover(message.NewAssistant(ApologyText, p.clock.Now(), nil), release)
}

// ToWire renders the history for the conversation service. System messages stay local.
func ToWire(history []message.Message) []collaborator.WireMessage {
	out := make([]collaborator.WireMessage, 0, len(history))
	for _, m := range history {
		if m.Role() == message.RoleSystem {
			continue
		}
		out = append(out, collaborator.WireMessage{
			Role:      string(m.Role()),
			Content:   m.Text(),
			Timestamp: collaborator.FormatTimestamp(m.CreatedAt()),
		})
	}
	return out
}

// FromWire converts a reply into messages with fresh ids.
// Missing timestamps become now; an unknown role fails the whole reply.
func FromWire(reply []collaborator.WireMessage, now time.Time) ([]message.Message, error) {
	out := make([]message.Message, 0, len(reply))
	for i, w := range reply {
		role, err := message.ParseRole(w.Role)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w: %v", i, ErrInvalidRole, err)
		}
		m, err := message.New(role, w.Content, collaborator.ParseTimestamp(w.Timestamp, now))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
