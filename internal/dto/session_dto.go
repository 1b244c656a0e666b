package dto

import (
	"encoding/json"
	"time"
)

type AttachmentDTO struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	DisplaySize string `json:"display_size"`
}

type SuggestionDTO struct {
	PromptText string `json:"prompt_text"`
	ActionKey  string `json:"action_key"`
}

type MessageResponse struct {
	Id          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	Suggestion  *SuggestionDTO  `json:"suggestion,omitempty"`
}

type DocumentResponse struct {
	DocumentId string    `json:"document_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	BoundAt    time.Time `json:"bound_at"`
}

type SessionResponse struct {
	Id               string            `json:"id"`
	Messages         []MessageResponse `json:"messages"`
	Draft            string            `json:"draft"`
	IsUploading      bool              `json:"is_uploading"`
	IsSending        bool              `json:"is_sending"`
	HasBoundDocument bool              `json:"has_bound_document"`
	Document         *DocumentResponse `json:"document,omitempty"`
}

// IntentResponse answers every intent. Accepted is false when the session
// rejected it (blank input, an exchange of the same kind in flight).
type IntentResponse struct {
	Accepted bool             `json:"accepted"`
	Session  *SessionResponse `json:"session"`
}

type AttachmentRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Size int64  `json:"size" validate:"min=0"`
}

type SendMessageRequest struct {
	Text        string              `json:"text" validate:"max=8000"`
	Attachments []AttachmentRequest `json:"attachments,omitempty" validate:"max=5,dive"`
}

type SetDraftRequest struct {
	Text string `json:"text" validate:"max=8000"`
}

type AcceptSuggestionRequest struct {
	ActionKey string `json:"action_key" validate:"required,max=64"`
}

// SessionChangeMessage travels on the in-process bus after every session mutation
type SessionChangeMessage struct {
	SessionId string           `json:"session_id"`
	Seq       uint64           `json:"seq"`
	Cause     string           `json:"cause"`
	Session   json.RawMessage  `json:"session"`
	Latest    *MessageResponse `json:"latest,omitempty"`
}

// SessionFrame is what websocket clients receive
type SessionFrame struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}
