package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection for sessionID, queues the snapshot and
// blocks until the peer goes away. Change frames committed while the snapshot
// is read may arrive ahead of it; clients keep the frame with the highest seq.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string, snapshot func() ([]byte, error)) {
	client := NewClient(hub, c, sessionID)
	if err := hub.Attach(client, snapshot); err != nil {
		hub.logger.Warn("Hub", "Attach failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		_ = c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
