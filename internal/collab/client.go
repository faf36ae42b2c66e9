package collab

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID          string
	UserID      string
	DisplayName string

	hub  *Hub
	conn *websocket.Conn
	// Buffered channel of outbound messages. Only the hub closes it.
	send chan []byte

	maxMessageSize int64
	storeTimeout   time.Duration
	log            *slog.Logger
}

// ClientConfig holds the per-connection transport limits.
type ClientConfig struct {
	MaxMessageSize int64
	SendBufferSize int
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, displayName string, cfg ClientConfig) *Client {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	id := uuid.NewString()
	return &Client{
		ID:             id,
		UserID:         userID,
		DisplayName:    displayName,
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		maxMessageSize: cfg.MaxMessageSize,
		storeTimeout:   hub.storeTimeout,
		log:            hub.log.With("conn", id),
	}
}

// ReadPump pumps events from the websocket connection to the hub.
// A closed socket, a read error or a missed pong all end here, and all of
// them unregister the client the same way.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)

	// Heartbeat logic (Keep-Alive)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		cmd, err := Decode(message)
		if err != nil {
			c.log.Warn("Protocol violation, event dropped", "reason", err)
			continue
		}
		if join, ok := cmd.(JoinDocument); ok && !c.mayJoin(join) {
			continue
		}

		// PIPELINE: Browser -> ReadPump -> Hub.inbound
		if !c.hub.Submit(c, cmd) {
			return
		}
	}
}

// mayJoin runs the document access check on this goroutine so the
// database round-trip never holds up the hub.
func (c *Client) mayJoin(join JoinDocument) bool {
	if c.hub.authorizer == nil {
		return true
	}
	userID := join.UserID
	if c.UserID != "" {
		userID = c.UserID
	}
	if userID == "" {
		c.log.Warn("Protocol violation, event dropped", "event", EventJoinDocument, "reason", ErrMissingIdentity)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.storeTimeout)
	defer cancel()
	ok, err := c.hub.authorizer.CanAccess(ctx, userID, join.DocumentID)
	if err != nil {
		c.log.Error("Document access check failed", "document", join.DocumentID, "error", err)
		return false
	}
	if !ok {
		c.log.Warn("Document access denied", "document", join.DocumentID, "user", userID)
	}
	return ok
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn("Unexpected websocket close", "error", err)
	default:
		c.log.Debug("Client disconnected", "error", err)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// One envelope per frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			// Set a write deadline so we don't hang forever
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}

		case <-ticker.C:
			// Heartbeat: Send a Ping every 54 seconds to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
