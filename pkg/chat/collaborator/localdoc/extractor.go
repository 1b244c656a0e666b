package localdoc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/message"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DefaultMaxSize is the upload limit when none is configured (10 MB)
const DefaultMaxSize int64 = 10 << 20

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Extractor is an in-process document service. Text files are returned
// verbatim; PDFs and images get a descriptive placeholder.
type Extractor struct {
	maxSize int64
	cache   *cache.Cache
	logger  logger.ILogger
}

var _ collaborator.DocumentClient = &Extractor{}

// New creates an extractor. Extracted documents are kept for ttl.
func New(maxSize int64, ttl time.Duration, log logger.ILogger) *Extractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Extractor{
		maxSize: maxSize,
		cache:   cache.New(ttl, ttl*2),
		logger:  log,
	}
}

type extracted struct {
	id      string
	content string
}

func (e *Extractor) Upload(ctx context.Context, file collaborator.File) (*collaborator.UploadResult, error) {
	if file.Body == nil {
		return nil, fmt.Errorf("%w: empty body", collaborator.ErrUploadRejected)
	}

	data, err := io.ReadAll(io.LimitReader(file.Body, e.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > e.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", collaborator.ErrUploadRejected, file.Name, e.maxSize)
	}

	key := cacheKey(file, data)
	if cached, ok := e.cache.Get(key); ok {
		doc := cached.(extracted)
		return &collaborator.UploadResult{Success: true, DocumentID: doc.id, Content: doc.content}, nil
	}

	content, err := extract(file, data)
	if err != nil {
		e.logger.Warn("LocalExtractor", "Upload rejected", map[string]interface{}{
			"file":  file.Name,
			"error": err.Error(),
		})
		return nil, err
	}

	doc := extracted{id: uuid.NewString(), content: content}
	e.cache.SetDefault(key, doc)
	e.cache.SetDefault("doc:"+doc.id, doc)

	e.logger.Info("LocalExtractor", "Document extracted", map[string]interface{}{
		"file":        file.Name,
		"document_id": doc.id,
		"bytes":       len(data),
	})
	return &collaborator.UploadResult{Success: true, DocumentID: doc.id, Content: doc.content}, nil
}

// Content returns a previously extracted document
func (e *Extractor) Content(documentID string) (string, bool) {
	v, ok := e.cache.Get("doc:" + documentID)
	if !ok {
		return "", false
	}
	return v.(extracted).content, true
}

// cacheKey identifies an upload by its bytes. Placeholder kinds embed the
// file name in their content, so the name is part of their key.
func cacheKey(file collaborator.File, data []byte) string {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	if kind := classify(file); kind == kindPDF || kind == kindImage {
		key += ":" + file.Name
	}
	return key
}

type fileKind int

const (
	kindUnsupported fileKind = iota
	kindText
	kindPDF
	kindImage
)

func classify(file collaborator.File) fileKind {
	ext := strings.ToLower(filepath.Ext(file.Name))
	ct := strings.ToLower(file.ContentType)

	switch {
	case textExtensions[ext] || strings.HasPrefix(ct, "text/") || ct == "application/json":
		return kindText
	case ext == ".pdf" || ct == "application/pdf":
		return kindPDF
	case imageExtensions[ext] || strings.HasPrefix(ct, "image/"):
		return kindImage
	}
	return kindUnsupported
}

func extract(file collaborator.File, data []byte) (string, error) {
	switch classify(file) {
	case kindText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8 text", collaborator.ErrUploadRejected, file.Name)
		}
		return string(data), nil
	case kindPDF:
		return placeholder("PDF document", file.Name, len(data)), nil
	case kindImage:
		return placeholder("Image", file.Name, len(data)), nil
	}
	return "", fmt.Errorf("%w: unsupported file type %q", collaborator.ErrUploadRejected, file.Name)
}

func placeholder(kind, name string, size int) string {
	return fmt.Sprintf("[%s %s, %s. Text extraction is not available for this file type.]", kind, name, message.FormatSize(int64(size)))
}
