package suggestion

import (
	"context"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/upload"

	"github.com/jonboulle/clockwork"
)

// DefaultDelay is the simulated processing time before the assistant answers
const DefaultDelay = 1500 * time.Millisecond

// AcceptText is the user turn recorded when a suggestion is accepted
const AcceptText = "Yes, please do that."

// Change causes reported through the Handle
const (
	CauseAccepted  = "suggestion_accepted"
	CauseResponded = "suggestion_answered"
)

// Handle is the session-owned surface a dispatch writes through
type Handle interface {
	Append(cause string, msg message.Message)
	// DocumentKind returns the kind of the bound document, if any
	DocumentKind() (upload.Kind, bool)
}

// Result is the outcome of one accepted suggestion
type Result struct {
	ActionKey string
	Response  message.Assistant
}

// Dispatcher turns an accepted suggestion into a canned exchange
type Dispatcher struct {
	clock  clockwork.Clock
	delay  time.Duration
	logger logger.ILogger
}

// NewDispatcher creates a dispatcher. A non-positive delay falls back to DefaultDelay.
func NewDispatcher(clock clockwork.Clock, delay time.Duration, log logger.ILogger) *Dispatcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Dispatcher{
		clock:  clock,
		delay:  delay,
		logger: log,
	}
}

// Accept records the acceptance right away and answers after the processing
// delay. Unknown keys get the generic answer. The returned channel yields the
// result once the answer is in the store.
//
// Like sends and uploads, an accepted suggestion cannot be cancelled: ctx is
// only carried for request-scoped values and the delay runs to completion.
func (d *Dispatcher) Accept(ctx context.Context, actionKey string, h Handle) <-chan Result {
	h.Append(CauseAccepted, message.NewUser(AcceptText, d.clock.Now()))

	out := make(chan Result, 1)
	go func() {
		defer close(out)
		<-d.clock.After(d.delay)

		kind, _ := h.DocumentKind()
		reply := message.NewAssistant(Respond(actionKey, kind), d.clock.Now(), FollowUp(actionKey, kind))
		h.Append(CauseResponded, reply)

		d.logger.Info("SuggestionDispatcher", "Suggestion answered", map[string]interface{}{
			"detached":   ctx.Err() != nil,
			"action_key": actionKey,
			"kind":       kind,
		})
		out <- Result{ActionKey: actionKey, Response: reply}
	}()
	return out
}
