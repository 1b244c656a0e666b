package bootstrap

import (
	"context"
	"log"

	"docassist-be/internal/config"
	"docassist-be/internal/controller"
	"docassist-be/internal/pkg/logger"
	"docassist-be/internal/pkg/serverutils"
	"docassist-be/internal/repository/memory"
	"docassist-be/internal/service"
	"docassist-be/internal/websocket"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/collaborator/httpclient"
	"docassist-be/pkg/chat/collaborator/llmchat"
	"docassist-be/pkg/chat/collaborator/localdoc"
	"docassist-be/pkg/chat/session"
	"docassist-be/pkg/llm/factory"
	pktNats "docassist-be/pkg/nats"
	"docassist-be/pkg/notify/slack"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	SessionController controller.ISessionController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	AuditService    service.IAuditService // nil without NATS

	// WebSockets
	WebSocketHub *websocket.Hub

	Logger  logger.ILogger
	closers []func()
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	clock := clockwork.NewRealClock()

	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Collaborators
	conversation, documents := NewCollaborators(cfg, clock, sysLogger)

	// 4. Infrastructure
	// NATS
	var eventPublisher service.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}

		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.AuditService = service.NewAuditService(natsSub, sysLogger)
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// Redis (optional, cross-instance websocket delivery)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Invalid REDIS_URL, websocket fan-out stays local: %v", err)
		} else {
			rdb = redis.NewClient(opts)
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}

	// Slack
	var notifier service.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = slack.NewWebhook(cfg.Notify.SlackWebhookURL, cfg.Collaborator.Timeout)
	}

	// 5. WebSocket Hub
	hubLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	c.WebSocketHub = websocket.NewHub(rdb, uuid.NewString(), hubLogger)

	// 6. Services
	sessionRepo := memory.NewSessionRepository(cfg.Session.TTL, cfg.Session.CleanupInterval)
	publisherService := service.NewPublisherService(pubSub, service.ChangesTopic)
	c.ConsumerService = service.NewConsumerService(pubSub, service.ChangesTopic, c.WebSocketHub, eventPublisher, notifier, sysLogger)

	newController := func(id string) *session.Controller {
		return session.New(conversation, documents, session.Options{
			ID:     id,
			Clock:  clock,
			Delay:  cfg.Session.ProcessingDelay,
			Logger: sysLogger,
		})
	}
	sessionService := service.NewSessionService(sessionRepo, newController, publisherService, eventPublisher, clock, sysLogger)

	// 7. Controllers
	var auth fiber.Handler
	if cfg.App.JwtSecret != "" {
		auth = serverutils.NewJwtMiddleware(cfg.App.JwtSecret)
	}
	c.SessionController = controller.NewSessionController(sessionService, c.WebSocketHub, auth, sysLogger)

	return c
}

// Start runs the hub, the change consumer and the audit subscriber
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.ConsumerService.Consume(ctx); err != nil {
		return err
	}
	if c.AuditService != nil {
		if err := c.AuditService.Start(ctx); err != nil {
			c.Logger.Warn("Container", "Audit subscriber not started", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// Close releases bus and broker connections in reverse order
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

// NewCollaborators picks the conversation and document clients for the configured mode
func NewCollaborators(cfg *config.Config, clock clockwork.Clock, sysLogger logger.ILogger) (collaborator.ConversationClient, collaborator.DocumentClient) {
	if cfg.Collaborator.Mode == "http" {
		client := httpclient.New(cfg.Collaborator.ChatURL, cfg.Collaborator.DocumentURL, cfg.Collaborator.Timeout, sysLogger)
		log.Printf("[INFO] Using HTTP collaborators (chat: %s, documents: %s)", cfg.Collaborator.ChatURL, cfg.Collaborator.DocumentURL)
		return client, client
	}

	baseURL := cfg.Ai.LLMBaseURL
	if baseURL == "" && cfg.Ai.LLMProvider == "ollama" {
		baseURL = cfg.Ai.OllamaBaseURL
	}

	// Initialize LLM Provider based on Config
	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  baseURL,
		APIKey:   cfg.Ai.LLMAPIKey,
		Timeout:  cfg.Collaborator.Timeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	documents := localdoc.New(cfg.Session.MaxUploadBytes, cfg.Session.TTL, sysLogger)
	conversation := llmchat.New(llmProvider, clock, sysLogger, llmchat.Config{
		MaxExcerpts: cfg.Ai.MaxExcerpts,
		Documents:   documents,
	})
	return conversation, documents
}
