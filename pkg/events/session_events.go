package events

import "time"

// Session event codes. Published under events.<code>.
const (
	SessionCreated            = "SESSION_CREATED"
	SessionClosed             = "SESSION_CLOSED"
	SessionReset              = "SESSION_RESET"
	SessionMessageSent        = "SESSION_MESSAGE_SENT"
	SessionReplyCommitted     = "SESSION_REPLY_COMMITTED"
	SessionReplyFailed        = "SESSION_REPLY_FAILED"
	SessionDocumentBound      = "SESSION_DOCUMENT_BOUND"
	SessionUploadFailed       = "SESSION_UPLOAD_FAILED"
	SessionSuggestionAnswered = "SESSION_SUGGESTION_ANSWERED"
)

// NewSessionEvent builds an event about one session. data may be nil.
func NewSessionEvent(code, sessionID string, at time.Time, data map[string]interface{}) BaseEvent {
	payload := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["session_id"] = sessionID
	payload["occurred_at"] = at.UTC().Format(time.RFC3339Nano)

	return BaseEvent{
		Type:       code,
		Data:       payload,
		OccurredAt: at,
	}
}
