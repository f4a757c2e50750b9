package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slyxzy/collab-code-editor/internal/logger"
)

func NewClient(id, ipAddress string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:        id,
		IPAddress: ipAddress,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, 256),
	}
}

// returns the session the client has joined, or "" when unjoined
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) setSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// queues a message for delivery to the client
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// the lock is held across the channel send so Close cannot close
	// the buffer out from under us
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	select {
	case c.send <- data:
		c.mu.RUnlock()
		return nil
	default:
		sessionID := c.sessionID
		c.mu.RUnlock()
		// send buffer full, client is too slow to keep up. The
		// unregister is pushed from a goroutine because Send may run
		// on the hub loop itself during a broadcast.
		logger.Warn("client send buffer full, disconnecting",
			"client_id", c.ID,
			"session_id", sessionID,
		)

		go func() {
			c.hub.Unregister <- c
		}()
		return ErrConnectionClosed
	}
}

// sends an error message to the client
func (c *Client) SendError(code, message, details string) {
	errorMsg, err := NewMessage(TypeError, c.Session(), "", ErrorPayload{
		Code:    code,
		Message: message,
		Details: sanitizeErrorString(details),
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create error message", "client_id", c.ID)
		return
	}

	if sendErr := c.Send(errorMsg); sendErr != nil {
		logger.ErrorErr(sendErr, "failed to send error message", "client_id", c.ID)
	}
}

// marks the client closed and closes the underlying connection. Safe
// to call multiple times.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)

	if c.conn != nil {
		c.conn.Close()
	}
}

// reads messages from the websocket connection and forwards them to
// the hub. Runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.ErrorErr(err, "websocket read error",
					"client_id", c.ID,
					"session_id", c.Session(),
				)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("received malformed message",
				"client_id", c.ID,
				"error", err.Error(),
			)
			c.SendError("bad_request", "malformed message", "message must be valid JSON")
			continue
		}

		msg.ClientID = c.ID
		msg.Timestamp = time.Now()

		c.hub.Broadcast <- &msg
	}
}

// writes queued messages to the websocket connection and keeps the
// connection alive with periodic pings. Runs in its own goroutine per
// connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.ErrorErr(err, "websocket write error",
					"client_id", c.ID,
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enforces the sliding-window limit on code-change messages
func (c *Client) checkCodeUpdateRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Second)

	// drop timestamps outside the window
	kept := c.codeUpdateTimestamps[:0]
	for _, ts := range c.codeUpdateTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.codeUpdateTimestamps = kept

	if len(c.codeUpdateTimestamps) >= maxCodeUpdatesPerSecond {
		return ErrRateLimitExceeded
	}

	c.codeUpdateTimestamps = append(c.codeUpdateTimestamps, now)
	return nil
}
