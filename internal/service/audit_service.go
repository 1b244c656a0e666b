package service

import (
	"context"
	"sync"

	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/events"
	pktNats "docassist-be/pkg/nats"
)

const (
	AuditSubject = pktNats.SubjectPrefix + "SESSION_*"
	AuditDurable = "session-audit"
)

// EventSubscriber attaches a handler to a durable bus consumer
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type IAuditService interface {
	Start(ctx context.Context) error
	Counts() map[string]int64
}

// auditService logs every session event seen on the bus and keeps per-type totals
type auditService struct {
	subscriber EventSubscriber
	logger     logger.ILogger

	mu     sync.Mutex
	counts map[string]int64
}

func NewAuditService(subscriber EventSubscriber, log logger.ILogger) IAuditService {
	return &auditService{
		subscriber: subscriber,
		logger:     log,
		counts:     make(map[string]int64),
	}
}

func (a *auditService) Start(ctx context.Context) error {
	return a.subscriber.Subscribe(ctx, AuditSubject, AuditDurable, a.handle)
}

func (a *auditService) handle(ctx context.Context, event events.Event) error {
	a.mu.Lock()
	a.counts[event.EventType()]++
	a.mu.Unlock()

	a.logger.Info("SessionAudit", event.EventType(), event.Payload())
	return nil
}

func (a *auditService) Counts() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int64, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
