package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/send"
	"docassist-be/pkg/chat/store"
	"docassist-be/pkg/chat/suggestion"
	"docassist-be/pkg/chat/upload"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Greeting opens every session
const Greeting = "Hello! I'm your document assistant. Upload a document, and I'll help you analyze it and suggest actions."

// Change causes raised by the controller itself
const (
	CauseDraftChanged = "draft_changed"
	CauseReset        = "session_reset"
)

// ErrBusy is returned by Reset while a send or an upload is in flight
var ErrBusy = errors.New("session has an exchange in flight")

// State is a read-only view of a session
type State struct {
	ID               string            `json:"id"`
	Messages         []message.Message `json:"messages"`
	Draft            string            `json:"draft"`
	IsUploading      bool              `json:"is_uploading"`
	IsSending        bool              `json:"is_sending"`
	HasBoundDocument bool              `json:"has_bound_document"`
	Document         *upload.Document  `json:"document,omitempty"`
}

// Change is emitted after every mutation. Seq grows by one per change.
type Change struct {
	Seq   uint64 `json:"seq"`
	Cause string `json:"cause"`
	State State  `json:"state"`
}

// Listener observes session changes. OnChange must not call back into a
// mutating intent of the same controller synchronously.
type Listener interface {
	OnChange(Change)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(Change)

func (f ListenerFunc) OnChange(c Change) { f(c) }

// Options tune a controller. Zero values pick defaults.
type Options struct {
	ID     string
	Clock  clockwork.Clock
	Delay  time.Duration
	Logger logger.ILogger
}

// Controller owns one conversation: its message store, pending input,
// bound document and the pipelines driving them.
type Controller struct {
	id     string
	clock  clockwork.Clock
	logger logger.ILogger

	store      *store.Store
	uploads    *upload.Pipeline
	sends      *send.Pipeline
	dispatcher *suggestion.Dispatcher

	mu    sync.Mutex
	draft string
	doc   *upload.Document
	seq   uint64

	// held from the end of a mutation until its listeners have run
	emitMu sync.Mutex

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextL     int
}

// New builds a controller seeded with the greeting
func New(conversation collaborator.ConversationClient, documents collaborator.DocumentClient, opts Options) *Controller {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	return &Controller{
		id:         opts.ID,
		clock:      opts.Clock,
		logger:     opts.Logger,
		store:      store.New(message.NewAssistant(Greeting, opts.Clock.Now(), nil)),
		uploads:    upload.NewPipeline(documents, opts.Clock, opts.Logger),
		sends:      send.NewPipeline(conversation, opts.Clock, opts.Logger),
		dispatcher: suggestion.NewDispatcher(opts.Clock, opts.Delay, opts.Logger),
		listeners:  make(map[int]Listener),
	}
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.id
}

// Subscribe registers l and returns a function removing it
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.lmu.Lock()
	key := c.nextL
	c.nextL++
	c.listeners[key] = l
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, key)
		c.lmu.Unlock()
	}
}

// Snapshot returns the current state
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Latest returns the current state stamped with the sequence number of the
// last emitted change, so it can be ordered against the change stream.
func (c *Controller) Latest() Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Change{Seq: c.seq, State: c.stateLocked()}
}

// UploadFile starts uploading file. ok is false when the file has no name or
// another upload is running.
func (c *Controller) UploadFile(ctx context.Context, file collaborator.File) (done <-chan struct{}, ok bool) {
	return c.uploads.Select(ctx, file, uploadHandle{c})
}

// SendMessage appends text as a user turn and asks for a reply. ok is false
// when text is blank or another send is running.
func (c *Controller) SendMessage(ctx context.Context, text string, attachments ...message.Attachment) (done <-chan struct{}, ok bool) {
	return c.sends.Send(ctx, text, sendHandle{c}, attachments...)
}

// AcceptSuggestion answers a suggestion the user clicked
func (c *Controller) AcceptSuggestion(ctx context.Context, actionKey string) <-chan suggestion.Result {
	return c.dispatcher.Accept(ctx, actionKey, dispatchHandle{c})
}

// SetDraft replaces the pending input
func (c *Controller) SetDraft(text string) {
	c.mutate(CauseDraftChanged, func() {
		c.draft = text
	})
}

// Reset clears the conversation back to the greeting and unbinds the document
func (c *Controller) Reset() error {
	var err error
	c.mutate(CauseReset, func() {
		if c.sends.State() == send.StateSending || c.uploads.State() == upload.StateUploading {
			err = ErrBusy
			return
		}
		_ = c.store.ReplaceAll([]message.Message{message.NewAssistant(Greeting, c.clock.Now(), nil)})
		c.uploads.Reset()
		c.draft = ""
		c.doc = nil
	}, func() bool { return err == nil })
	return err
}

// mutate applies fn under the session lock and notifies listeners in
// mutation order. When emit reports false the change is dropped silently.
func (c *Controller) mutate(cause string, fn func(), emit ...func() bool) {
	c.mu.Lock()
	fn()
	for _, e := range emit {
		if !e() {
			c.mu.Unlock()
			return
		}
	}
	c.seq++
	change := Change{Seq: c.seq, Cause: cause, State: c.stateLocked()}

	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	c.lmu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.lmu.RUnlock()

	for _, l := range listeners {
		l.OnChange(change)
	}
}

func (c *Controller) stateLocked() State {
	s := State{
		ID:          c.id,
		Messages:    c.store.Snapshot(),
		Draft:       c.draft,
		IsUploading: c.uploads.State() == upload.StateUploading,
		IsSending:   c.sends.State() == send.StateSending,
	}
	if c.doc != nil {
		doc := *c.doc
		s.Document = &doc
		s.HasBoundDocument = true
	}
	return s
}

func (c *Controller) appendLocked(msgs ...message.Message) {
	if err := c.store.Append(msgs...); err != nil {
		c.logger.Error("SessionController", "Append rejected", map[string]interface{}{
			"session_id": c.id,
			"error":      err,
		})
	}
}

type uploadHandle struct{ c *Controller }

func (h uploadHandle) Touch(cause string) {
	h.c.mutate(cause, func() {})
}

func (h uploadHandle) Fail(msg message.Message, settle func()) {
	h.c.mutate(upload.CauseFailed, func() {
		settle()
		h.c.appendLocked(msg)
	})
}

func (h uploadHandle) Bind(doc upload.Document, settle func(), msgs ...message.Message) {
	h.c.mutate(upload.CauseBound, func() {
		settle()
		h.c.doc = &doc
		h.c.appendLocked(msgs...)
	})
}

type sendHandle struct{ c *Controller }

func (h sendHandle) Submit(msg message.Message) []message.Message {
	var history []message.Message
	h.c.mutate(send.CauseSent, func() {
		h.c.appendLocked(msg)
		h.c.draft = ""
		history = h.c.store.Snapshot()
	})
	return history
}

func (h sendHandle) Document() (string, string, bool) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.c.doc == nil {
		return "", "", false
	}
	return h.c.doc.ID, h.c.doc.Content, true
}

func (h sendHandle) Commit(msgs []message.Message, release func()) error {
	var err error
	h.c.mutate(send.CauseCommitted, func() {
		if err = h.c.store.ReplaceAll(msgs); err == nil {
			release()
		}
	}, func() bool { return err == nil })
	return err
}

func (h sendHandle) Recover(msg message.Message, release func()) {
	h.c.mutate(send.CauseFailed, func() {
		release()
		h.c.appendLocked(msg)
	})
}

type dispatchHandle struct{ c *Controller }

func (h dispatchHandle) Append(cause string, msg message.Message) {
	h.c.mutate(cause, func() {
		h.c.appendLocked(msg)
	})
}

func (h dispatchHandle) DocumentKind() (upload.Kind, bool) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.c.doc == nil {
		return "", false
	}
	return h.c.doc.Kind, true
}
