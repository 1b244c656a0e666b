package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return New(url, url, 5*time.Second, logger.NewNopLogger())
}

func TestReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)

		var req collaborator.ConversationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "doc-1", req.DocumentID)

		msgs := append(req.Messages, collaborator.WireMessage{Role: "assistant", Content: "The fee is 5%."})
		_ = json.NewEncoder(w).Encode(collaborator.ConversationResponse{Messages: msgs})
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Reply(context.Background(), collaborator.ConversationRequest{
		Messages:   []collaborator.WireMessage{{Role: "user", Content: "What is the fee?"}},
		DocumentID: "doc-1",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "The fee is 5%.", got[1].Content)
}

func TestReplyStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"No user message found in history."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Reply(context.Background(), collaborator.ConversationRequest{})

	var te *collaborator.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "chat", te.Op)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Contains(t, te.Body, "No user message")
}

func TestReplyNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Reply(context.Background(), collaborator.ConversationRequest{})

	var te *collaborator.TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
	assert.Error(t, te.Unwrap())
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)

		assert.Equal(t, "Report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.7", string(body))
		_, _ = w.Write([]byte(`{"success":true,"documentId":"doc-42","content":"Revenue grew"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Upload(context.Background(), collaborator.File{
		Name: "Report.pdf",
		Body: strings.NewReader("%PDF-1.7"),
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-42", res.DocumentID)
	assert.Equal(t, "Revenue grew", res.Content)
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Upload(context.Background(), collaborator.File{Name: "x.png", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, collaborator.ErrUploadRejected)
}
