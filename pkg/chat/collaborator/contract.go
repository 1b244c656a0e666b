package collaborator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrUploadRejected is returned when the document service answers success=false
	ErrUploadRejected = errors.New("document upload rejected")

	// ErrNoUserMessage is returned when a conversation request has no user turn to answer
	ErrNoUserMessage = errors.New("no user message found in history")
)

// WireMessage is a message as exchanged with the conversation service
type WireMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"` // RFC 3339
}

// ConversationRequest carries the dialogue history plus the bound document, if any
type ConversationRequest struct {
	Messages        []WireMessage `json:"messages"`
	DocumentID      string        `json:"documentId,omitempty"`
	DocumentContent string        `json:"documentContent,omitempty"`
}

// ConversationResponse is the full updated conversation
type ConversationResponse struct {
	Messages []WireMessage `json:"messages"`
}

// ConversationClient asks the conversation service for the next reply
type ConversationClient interface {
	Reply(ctx context.Context, req ConversationRequest) ([]WireMessage, error)
}

// File is a single upload payload
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// UploadResult is a successful document extraction
type UploadResult struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

// DocumentClient sends a file to the document service for extraction
type DocumentClient interface {
	Upload(ctx context.Context, file File) (*UploadResult, error)
}

// TransportError wraps a network failure or a non-success status from a collaborator
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FormatTimestamp renders t the way the conversation service expects
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp reads a collaborator timestamp, falling back to fallback when absent or invalid
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// python isoformat() without zone
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t.UTC()
	}
	return fallback
}
