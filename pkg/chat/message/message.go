package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a role received from outside the process
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown message role %q", s)
}

// ID uniquely identifies a message inside a store
type ID string

// NewID returns a time-ordered id (UUIDv7: millisecond timestamp + sequence)
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source fails
		return ID(uuid.NewString())
	}
	return ID(id.String())
}

// Message is one conversational turn. Only User, Assistant and System implement it.
type Message interface {
	MessageID() ID
	Role() Role
	Text() string
	CreatedAt() time.Time

	sealed()
}

// Header holds the fields every variant shares
type Header struct {
	ID        ID
	Content   string
	Timestamp time.Time
}

func (h Header) MessageID() ID        { return h.ID }
func (h Header) Text() string         { return h.Content }
func (h Header) CreatedAt() time.Time { return h.Timestamp }
func (h Header) sealed()              {}

// AttachmentKind is the presentational kind of an attached file
type AttachmentKind string

const (
	AttachmentPDF   AttachmentKind = "pdf"
	AttachmentImage AttachmentKind = "image"
)

// Attachment describes a file referenced by a user message
type Attachment struct {
	Kind        AttachmentKind `json:"kind"`
	Name        string         `json:"name"`
	DisplaySize string         `json:"display_size"`
}

// NewAttachment derives kind and display size from the file name and byte size
func NewAttachment(name string, size int64) Attachment {
	kind := AttachmentImage
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		kind = AttachmentPDF
	}
	return Attachment{
		Kind:        kind,
		Name:        name,
		DisplaySize: FormatSize(size),
	}
}

// FormatSize renders a byte count as whole kilobytes, e.g. "256 KB"
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	kb := (size + 512) / 1024
	return fmt.Sprintf("%d KB", kb)
}

// Suggestion is a one-click follow-up offered by the assistant
type Suggestion struct {
	PromptText string `json:"prompt_text"`
	ActionKey  string `json:"action_key"`
}

// User is a turn typed (or accepted) by the user
type User struct {
	Header
	Attachments []Attachment
}

func (User) Role() Role { return RoleUser }

// Assistant is a turn produced by the assistant
type Assistant struct {
	Header
	Suggestion *Suggestion
}

func (Assistant) Role() Role { return RoleAssistant }

// System is an out-of-band announcement. It never reaches the conversation collaborator.
type System struct {
	Header
}

func (System) Role() Role { return RoleSystem }

// NewUser builds a user message stamped with now
func NewUser(content string, now time.Time, attachments ...Attachment) User {
	var atts []Attachment
	if len(attachments) > 0 {
		atts = append([]Attachment(nil), attachments...)
	}
	return User{
		Header:      Header{ID: NewID(), Content: content, Timestamp: now},
		Attachments: atts,
	}
}

// NewAssistant builds an assistant message; suggestion may be nil
func NewAssistant(content string, now time.Time, suggestion *Suggestion) Assistant {
	var s *Suggestion
	if suggestion != nil {
		cp := *suggestion
		s = &cp
	}
	return Assistant{
		Header:     Header{ID: NewID(), Content: content, Timestamp: now},
		Suggestion: s,
	}
}

// NewSystem builds a system announcement
func NewSystem(content string, now time.Time) System {
	return System{Header: Header{ID: NewID(), Content: content, Timestamp: now}}
}

// New builds the variant matching role. Used when accepting sequences from collaborators.
func New(role Role, content string, now time.Time) (Message, error) {
	switch role {
	case RoleUser:
		return NewUser(content, now), nil
	case RoleAssistant:
		return NewAssistant(content, now, nil), nil
	case RoleSystem:
		return NewSystem(content, now), nil
	}
	return nil, fmt.Errorf("unknown message role %q", role)
}

// Suggest returns the suggestion carried by m, if any
func Suggest(m Message) (*Suggestion, bool) {
	a, ok := m.(Assistant)
	if !ok || a.Suggestion == nil {
		return nil, false
	}
	return a.Suggestion, true
}

// AttachmentsOf returns the attachments carried by m, if any
func AttachmentsOf(m Message) []Attachment {
	if u, ok := m.(User); ok {
		return u.Attachments
	}
	return nil
}

type wireMessage struct {
	ID          ID           `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Suggestion  *Suggestion  `json:"suggestion,omitempty"`
}

func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:          u.ID,
		Role:        RoleUser,
		Content:     u.Content,
		Timestamp:   u.Timestamp,
		Attachments: u.Attachments,
	})
}

func (a Assistant) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:         a.ID,
		Role:       RoleAssistant,
		Content:    a.Content,
		Timestamp:  a.Timestamp,
		Suggestion: a.Suggestion,
	})
}

func (s System) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:        s.ID,
		Role:      RoleSystem,
		Content:   s.Content,
		Timestamp: s.Timestamp,
	})
}
