package mapper

import (
	"docassist-be/internal/dto"
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/session"
)

type SessionMapper struct{}

func NewSessionMapper() *SessionMapper {
	return &SessionMapper{}
}

func (m *SessionMapper) ToSessionResponse(s session.State) *dto.SessionResponse {
	res := &dto.SessionResponse{
		Id:               s.ID,
		Messages:         make([]dto.MessageResponse, 0, len(s.Messages)),
		Draft:            s.Draft,
		IsUploading:      s.IsUploading,
		IsSending:        s.IsSending,
		HasBoundDocument: s.HasBoundDocument,
	}
	for _, msg := range s.Messages {
		res.Messages = append(res.Messages, m.ToMessageResponse(msg))
	}
	if s.Document != nil {
		res.Document = &dto.DocumentResponse{
			DocumentId: s.Document.ID,
			Name:       s.Document.Name,
			Kind:       string(s.Document.Kind),
			BoundAt:    s.Document.BoundAt,
		}
	}
	return res
}

func (m *SessionMapper) ToMessageResponse(msg message.Message) dto.MessageResponse {
	res := dto.MessageResponse{
		Id:        string(msg.MessageID()),
		Role:      string(msg.Role()),
		Content:   msg.Text(),
		Timestamp: msg.CreatedAt(),
	}
	for _, a := range message.AttachmentsOf(msg) {
		res.Attachments = append(res.Attachments, dto.AttachmentDTO{
			Kind:        string(a.Kind),
			Name:        a.Name,
			DisplaySize: a.DisplaySize,
		})
	}
	if s, ok := message.Suggest(msg); ok {
		res.Suggestion = &dto.SuggestionDTO{PromptText: s.PromptText, ActionKey: s.ActionKey}
	}
	return res
}

// ToAttachments converts request attachments into message attachments
func (m *SessionMapper) ToAttachments(reqs []dto.AttachmentRequest) []message.Attachment {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]message.Attachment, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, message.NewAttachment(r.Name, r.Size))
	}
	return out
}
