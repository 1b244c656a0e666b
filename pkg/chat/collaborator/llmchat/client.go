package llmchat

import (
	"context"
	"fmt"
	"strings"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/llm"
	"docassist-be/pkg/utils"

	"github.com/jonboulle/clockwork"
)

const systemTemplate = `You are a helpful assistant that answers questions based on the provided document excerpts.
Here are relevant excerpts:
%s

Respond clearly and concisely based only on the given information unless instructed otherwise.`

const (
	chunkSize    = 800
	chunkOverlap = 100
)

// ContentSource looks up extracted document text by id
type ContentSource interface {
	Content(documentID string) (string, bool)
}

// Config bounds how much of the document reaches the model.
// Documents, when set, fills in content for requests that only carry a document id.
type Config struct {
	MaxExcerpts int
	Documents   ContentSource
}

// Client answers conversation requests with an in-process LLM provider.
// It returns the incoming history plus one assistant turn.
type Client struct {
	provider llm.LLMProvider
	clock    clockwork.Clock
	logger   logger.ILogger
	cfg      Config
}

var _ collaborator.ConversationClient = &Client{}

func New(provider llm.LLMProvider, clock clockwork.Clock, log logger.ILogger, cfg Config) *Client {
	if cfg.MaxExcerpts <= 0 {
		cfg.MaxExcerpts = 4
	}
	return &Client{
		provider: provider,
		clock:    clock,
		logger:   log,
		cfg:      cfg,
	}
}

func (c *Client) Reply(ctx context.Context, req collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
	query, ok := lastUserMessage(req.Messages)
	if !ok {
		return nil, collaborator.ErrNoUserMessage
	}

	excerpts := c.excerpts(c.documentContent(req), query)

	history := make([]llm.Message, 0, len(req.Messages)+1)
	history = append(history, llm.Message{Role: "system", Content: SystemPrompt(excerpts)})
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := c.provider.Chat(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}

	c.logger.Debug("LlmConversation", "Reply generated", map[string]interface{}{
		"document_id": req.DocumentID,
		"excerpts":    len(excerpts),
		"turns":       len(req.Messages),
	})

	out := make([]collaborator.WireMessage, 0, len(req.Messages)+1)
	out = append(out, req.Messages...)
	out = append(out, collaborator.WireMessage{
		Role:      "assistant",
		Content:   reply,
		Timestamp: collaborator.FormatTimestamp(c.clock.Now()),
	})
	return out, nil
}

func (c *Client) documentContent(req collaborator.ConversationRequest) string {
	if req.DocumentContent != "" || req.DocumentID == "" || c.cfg.Documents == nil {
		return req.DocumentContent
	}
	content, ok := c.cfg.Documents.Content(req.DocumentID)
	if !ok {
		c.logger.Warn("LlmConversation", "Document content not found", map[string]interface{}{"document_id": req.DocumentID})
	}
	return content
}

func (c *Client) excerpts(content, query string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return utils.RankChunks(utils.SplitText(content, chunkSize, chunkOverlap), query, c.cfg.MaxExcerpts)
}

// SystemPrompt renders the excerpts as a bullet list inside the system instructions
func SystemPrompt(excerpts []string) string {
	if len(excerpts) == 0 {
		return fmt.Sprintf(systemTemplate, "- (no document has been uploaded)")
	}
	lines := make([]string, len(excerpts))
	for i, e := range excerpts {
		lines[i] = "- " + strings.TrimSpace(e)
	}
	return fmt.Sprintf(systemTemplate, strings.Join(lines, "\n\n"))
}

func lastUserMessage(msgs []collaborator.WireMessage) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content, true
		}
	}
	return "", false
}
