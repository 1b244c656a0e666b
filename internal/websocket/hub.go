package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"docassist-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries session frames between instances
const ClusterChannel = "session_events"

var (
	ErrHubStopped    = errors.New("hub stopped")
	ErrClientDropped = errors.New("client dropped before snapshot")
)

type Hub struct {
	// session id -> connected clients (several tabs may watch one session)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	// closed once Run returns
	done chan struct{}

	mu sync.RWMutex

	// optional, for cross-instance delivery
	rdb *redis.Client

	// tags our own redis messages so they are not delivered twice
	instanceID string

	logger logger.ILogger
}

type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, instanceID string, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceID: instanceID,
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			close(client.registered)
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// join returns once client receives deliveries, or false when the hub has stopped
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
	case <-h.done:
		return false
	}
	select {
	case <-client.registered:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Attach registers client and then queues the frame built by snapshot, so any
// change committed after the snapshot is taken still reaches the client.
func (h *Hub) Attach(client *Client, snapshot func() ([]byte, error)) error {
	if !h.join(client) {
		return ErrHubStopped
	}
	frame, err := snapshot()
	if err != nil {
		h.leave(client)
		return err
	}
	if !h.sendTo(client, frame) {
		return ErrClientDropped
	}
	return nil
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.SessionID]
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionID]) == 0 {
		delete(h.clients, client.SessionID)
		h.logger.Info("Hub", "Session has no more watchers", map[string]interface{}{"session_id": client.SessionID})
	}
}

// Deliver pushes a frame to every local watcher of sessionID and to the other instances
func (h *Hub) Deliver(sessionID string, frame []byte) {
	h.deliverLocal(sessionID, frame)

	if h.rdb == nil {
		return
	}
	payload, _ := json.Marshal(clusterMessage{Origin: h.instanceID, SessionID: sessionID, Message: frame})
	if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
	}
}

// Watchers returns how many local clients follow sessionID
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// deliverLocal holds the read lock while sending; remove closes Send under the write lock
func (h *Hub) deliverLocal(sessionID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[sessionID] {
		h.offer(client, frame)
	}
}

// sendTo queues frame for client if it is still registered
func (h *Hub) sendTo(client *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients[client.SessionID] {
		if c == client {
			return h.offer(client, frame)
		}
	}
	return false
}

// offer must be called with h.mu held
func (h *Hub) offer(client *Client, frame []byte) bool {
	select {
	case client.Send <- frame:
		return true
	default:
		if client.dropped.CompareAndSwap(false, true) {
			h.logger.Warn("Hub", "Client buffer full, dropping connection", map[string]interface{}{"session_id": client.SessionID})
			go h.leave(client)
		}
		return false
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.instanceID {
			continue
		}
		h.deliverLocal(payload.SessionID, payload.Message)
	}
}
