package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"docassist-be/internal/dto"
	"docassist-be/internal/mapper"
	"docassist-be/internal/pkg/logger"
	"docassist-be/internal/repository/memory"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/session"
	"docassist-be/pkg/events"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SnapshotFrameType tags the frame a websocket client receives on connect
const SnapshotFrameType = "session_snapshot"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrBlankInput       = errors.New("input is blank")
	ErrExchangeInFlight = errors.New("an exchange of the same kind is already in flight")
)

// ControllerFactory builds a fresh session controller with the given id
type ControllerFactory func(id string) *session.Controller

type ISessionService interface {
	Create(ctx context.Context) (*dto.SessionResponse, error)
	Get(ctx context.Context, id string) (*dto.SessionResponse, error)
	SetDraft(ctx context.Context, id string, req *dto.SetDraftRequest) (*dto.SessionResponse, error)
	SendMessage(ctx context.Context, id string, req *dto.SendMessageRequest, wait bool) (*dto.IntentResponse, error)
	Upload(ctx context.Context, id string, file collaborator.File, wait bool) (*dto.IntentResponse, error)
	AcceptSuggestion(ctx context.Context, id string, req *dto.AcceptSuggestionRequest, wait bool) (*dto.IntentResponse, error)
	Reset(ctx context.Context, id string) (*dto.SessionResponse, error)
	Delete(ctx context.Context, id string) error
	SnapshotFrame(ctx context.Context, id string) ([]byte, error)
	Count() int
}

type sessionService struct {
	repo      *memory.SessionRepository
	factory   ControllerFactory
	publisher IPublisherService
	events    EventPublisher
	clock     clockwork.Clock
	mapper    *mapper.SessionMapper
	logger    logger.ILogger
}

// NewSessionService wires session lifecycle to the repository. eventPublisher may be nil.
func NewSessionService(
	repo *memory.SessionRepository,
	factory ControllerFactory,
	publisher IPublisherService,
	eventPublisher EventPublisher,
	clock clockwork.Clock,
	log logger.ILogger,
) ISessionService {
	s := &sessionService{
		repo:      repo,
		factory:   factory,
		publisher: publisher,
		events:    eventPublisher,
		clock:     clock,
		mapper:    mapper.NewSessionMapper(),
		logger:    log,
	}
	repo.OnEvicted(func(id string, _ *session.Controller) {
		s.logger.Info("SessionService", "Session closed", map[string]interface{}{"session_id": id})
		s.publishEvent(context.Background(), events.SessionClosed, id, nil)
	})
	return s
}

func (s *sessionService) Create(ctx context.Context) (*dto.SessionResponse, error) {
	c := s.factory(uuid.NewString())
	c.Subscribe(session.ListenerFunc(func(change session.Change) {
		if err := s.publisher.PublishChange(context.Background(), change); err != nil {
			s.logger.Error("SessionService", "Failed to publish session change", map[string]interface{}{
				"session_id": change.State.ID,
				"seq":        change.Seq,
				"error":      err,
			})
		}
	}))
	s.repo.Save(c)

	s.logger.Info("SessionService", "Session created", map[string]interface{}{"session_id": c.ID()})
	s.publishEvent(ctx, events.SessionCreated, c.ID(), nil)

	return s.mapper.ToSessionResponse(c.Snapshot()), nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*dto.SessionResponse, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return s.mapper.ToSessionResponse(c.Snapshot()), nil
}

func (s *sessionService) SetDraft(ctx context.Context, id string, req *dto.SetDraftRequest) (*dto.SessionResponse, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}
	c.SetDraft(req.Text)
	return s.mapper.ToSessionResponse(c.Snapshot()), nil
}

func (s *sessionService) SendMessage(ctx context.Context, id string, req *dto.SendMessageRequest, wait bool) (*dto.IntentResponse, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrBlankInput
	}

	done, ok := c.SendMessage(ctx, req.Text, s.mapper.ToAttachments(req.Attachments)...)
	if !ok {
		return nil, ErrExchangeInFlight
	}
	if wait {
		awaitSignal(ctx, done)
	}
	return s.intent(c), nil
}

func (s *sessionService) Upload(ctx context.Context, id string, file collaborator.File, wait bool) (*dto.IntentResponse, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(file.Name) == "" {
		return nil, ErrBlankInput
	}

	done, ok := c.UploadFile(ctx, file)
	if !ok {
		return nil, ErrExchangeInFlight
	}
	if wait {
		awaitSignal(ctx, done)
	}
	return s.intent(c), nil
}

func (s *sessionService) AcceptSuggestion(ctx context.Context, id string, req *dto.AcceptSuggestionRequest, wait bool) (*dto.IntentResponse, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}

	res := c.AcceptSuggestion(ctx, req.ActionKey)
	if wait {
		select {
		case <-res:
		case <-ctx.Done():
		}
	}
	return s.intent(c), nil
}

func (s *sessionService) Reset(ctx context.Context, id string) (*dto.SessionResponse, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := c.Reset(); err != nil {
		return nil, err
	}
	return s.mapper.ToSessionResponse(c.Snapshot()), nil
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	if !s.repo.Delete(id) {
		return ErrSessionNotFound
	}
	return nil
}

func (s *sessionService) SnapshotFrame(ctx context.Context, id string) ([]byte, error) {
	c, err := s.find(id)
	if err != nil {
		return nil, err
	}

	latest := c.Latest()
	state, err := json.Marshal(s.mapper.ToSessionResponse(latest.State))
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto.SessionFrame{Type: SnapshotFrameType, Seq: latest.Seq, Data: state})
}

func (s *sessionService) Count() int {
	return s.repo.Count()
}

func (s *sessionService) find(id string) (*session.Controller, error) {
	c, found := s.repo.Get(id)
	if !found {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

func (s *sessionService) intent(c *session.Controller) *dto.IntentResponse {
	return &dto.IntentResponse{
		Accepted: true,
		Session:  s.mapper.ToSessionResponse(c.Snapshot()),
	}
}

func (s *sessionService) publishEvent(ctx context.Context, code, id string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.NewSessionEvent(code, id, s.clock.Now(), data)); err != nil {
		s.logger.Warn("SessionService", "Failed to publish session event", map[string]interface{}{
			"session_id": id,
			"event":      code,
			"error":      err.Error(),
		})
	}
}

func awaitSignal(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}
