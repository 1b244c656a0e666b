package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/message"

	"github.com/jonboulle/clockwork"
)

// State of the upload pipeline
type State string

const (
	StateIdle      State = "IDLE"
	StateUploading State = "UPLOADING"
	StateBound     State = "BOUND"
	StateFailed    State = "FAILED"
)

// Change causes reported through the Handle
const (
	CauseStarted = "upload_started"
	CauseBound   = "document_bound"
	CauseFailed  = "upload_failed"
)

// ActionAnalyzeDocument is the suggestion offered once a document is bound
const ActionAnalyzeDocument = "analyze_document"

// Document is the file currently bound to a session
type Document struct {
	ID      string    `json:"document_id"`
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	Content string    `json:"-"`
	BoundAt time.Time `json:"bound_at"`
}

// Handle is the session-owned surface a running upload writes through.
// The pipeline drops it once the upload has settled.
type Handle interface {
	// Touch reports a state change that did not touch the message log
	Touch(cause string)
	// Fail appends msg. settle is called inside the same mutation.
	Fail(msg message.Message, settle func())
	// Bind sets the session document and appends msgs. settle is called inside the same mutation.
	Bind(doc Document, settle func(), msgs ...message.Message)
}

// Pipeline drives a file from selection to a bound document.
// One upload may be in flight at a time; further selections are rejected.
type Pipeline struct {
	client collaborator.DocumentClient
	clock  clockwork.Clock
	logger logger.ILogger

	mu    sync.Mutex
	state State
}

// NewPipeline creates an idle upload pipeline
func NewPipeline(client collaborator.DocumentClient, clock clockwork.Clock, log logger.ILogger) *Pipeline {
	return &Pipeline{
		client: client,
		clock:  clock,
		logger: log,
		state:  StateIdle,
	}
}

// State returns the current pipeline state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reset returns a settled pipeline to Idle. An upload in flight is left alone.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateUploading {
		p.state = StateIdle
	}
}

// Select starts uploading file. ok is false when the file has no name or an
// upload is already running; nothing happens in that case. done closes once
// the upload has settled and its messages are in the store.
func (p *Pipeline) Select(ctx context.Context, file collaborator.File, h Handle) (done <-chan struct{}, ok bool) {
	if strings.TrimSpace(file.Name) == "" {
		return nil, false
	}

	p.mu.Lock()
	if p.state == StateUploading {
		p.mu.Unlock()
		p.logger.Debug("UploadPipeline", "Upload rejected, another one is in flight", map[string]interface{}{"file": file.Name})
		return nil, false
	}
	p.state = StateUploading
	p.mu.Unlock()

	h.Touch(CauseStarted)

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		p.run(context.WithoutCancel(ctx), file, h)
	}()
	return ch, true
}

func (p *Pipeline) run(ctx context.Context, file collaborator.File, h Handle) {
	res, err := p.client.Upload(ctx, file)
	if err == nil && (res == nil || !res.Success) {
		err = collaborator.ErrUploadRejected
	}

	now := p.clock.Now()

	if err != nil {
		p.logger.Error("UploadPipeline", "Document upload failed", map[string]interface{}{
			"file":  file.Name,
			"error": err,
		})
		h.Fail(message.NewAssistant(FailureText(file.Name, err), now, nil), p.settler(StateFailed))
		return
	}

	doc := Document{
		ID:      res.DocumentID,
		Name:    file.Name,
		Kind:    Classify(file.Name),
		Content: res.Content,
		BoundAt: now,
	}

	p.logger.Info("UploadPipeline", "Document bound", map[string]interface{}{
		"file":        file.Name,
		"document_id": doc.ID,
		"kind":        doc.Kind,
		"content_len": len(doc.Content),
	})

	h.Bind(doc, p.settler(StateBound),
		message.NewSystem(fmt.Sprintf("%s has been uploaded", file.Name), now),
		message.NewAssistant(
			fmt.Sprintf("I've received %s and I'm ready to work with it.", file.Name),
			now,
			&message.Suggestion{
				PromptText: "Would you like me to analyze this document?",
				ActionKey:  ActionAnalyzeDocument,
			},
		),
	)
}

func (p *Pipeline) settler(s State) func() {
	return func() {
		p.mu.Lock()
		p.state = s
		p.mu.Unlock()
	}
}

// FailureText is the user-facing report of a failed upload
func FailureText(name string, err error) string {
	if errors.Is(err, collaborator.ErrUploadRejected) {
		return fmt.Sprintf("Sorry, I couldn't process %s. Please check the file and try again.", name)
	}
	return fmt.Sprintf("Sorry, I couldn't upload %s right now. Please try again.", name)
}
