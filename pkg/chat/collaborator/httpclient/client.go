package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
)

// maxErrorBody caps how much of a failed response is kept on the error
const maxErrorBody = 2048

// Client reaches the conversation and document services over HTTP
type Client struct {
	chatURL string
	docURL  string
	http    *http.Client
	logger  logger.ILogger
}

var (
	_ collaborator.ConversationClient = &Client{}
	_ collaborator.DocumentClient     = &Client{}
)

// New creates a client. chatBase serves POST /chat, docBase serves POST /upload.
func New(chatBase, docBase string, timeout time.Duration, log logger.ILogger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		chatURL: strings.TrimRight(chatBase, "/") + "/chat",
		docURL:  strings.TrimRight(docBase, "/") + "/upload",
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

func (c *Client) Reply(ctx context.Context, req collaborator.ConversationRequest) ([]collaborator.WireMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create conversation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out collaborator.ConversationResponse
	if err := c.do(httpReq, "chat", &out); err != nil {
		return nil, err
	}

	c.logger.Debug("HttpCollaborator", "Conversation reply received", map[string]interface{}{
		"sent":     len(req.Messages),
		"received": len(out.Messages),
	})
	return out.Messages, nil
}

func (c *Client) Upload(ctx context.Context, file collaborator.File) (*collaborator.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if file.Body != nil {
		if _, err := io.Copy(part, file.Body); err != nil {
			return nil, fmt.Errorf("copy file body: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.docURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out collaborator.UploadResult
	if err := c.do(httpReq, "upload", &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, collaborator.ErrUploadRejected
	}

	c.logger.Info("HttpCollaborator", "Document extracted", map[string]interface{}{
		"file":        file.Name,
		"document_id": out.DocumentID,
	})
	return &out, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &collaborator.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &collaborator.TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &collaborator.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
