package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API carries no browser credentials, so cross-origin upgrades are
	// accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeMessage is the client-to-server subscription protocol.
type subscribeMessage struct {
	Model  string `json:"model"`
	ID     string `json:"id"`
	Action string `json:"action"` // SUBSCRIBE or UNSUBSCRIBE
}

// Client is one websocket connection. Writes go through a buffered send
// channel owned by the write pump; the hub closes the channel to disconnect.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// ServeWS upgrades the request and registers the connection with the hub. The
// acting user is identified by the user query parameter.
func ServeWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			userID: r.URL.Query().Get("user"),
		}
		hub.register <- client

		go client.writePump()
		// The request context dies when the handler returns; the connection
		// outlives it.
		go client.readPump(context.Background())
	}
}

// readPump consumes subscription messages until the connection drops. Each
// message gets an explicit {ok} or {error} reply.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply("error", "malformed subscription message")
			continue
		}

		c.handleSubscription(ctx, msg)
	}
}

func (c *Client) handleSubscription(ctx context.Context, msg subscribeMessage) {
	key := subscriptionKey{kind: msg.Model, id: msg.ID}

	switch msg.Action {
	case "SUBSCRIBE":
		ok, err := c.hub.visibility.Subscribable(ctx, msg.Model, msg.ID, c.userID)
		if err != nil {
			c.reply("error", "cannot subscribe to "+msg.Model+" "+msg.ID)
			return
		}
		if !ok {
			c.reply("error", "not allowed to subscribe to "+msg.Model+" "+msg.ID)
			return
		}
		c.hub.subscribe <- subRequest{client: c, key: key, add: true}
		c.reply("ok", "subscribed to "+msg.Model+" "+msg.ID)

	case "UNSUBSCRIBE":
		c.hub.subscribe <- subRequest{client: c, key: key, add: false}
		c.reply("ok", "unsubscribed from "+msg.Model+" "+msg.ID)

	default:
		c.reply("error", "unknown action "+msg.Action)
	}
}

// reply routes through the hub rather than writing to the send channel
// directly; the hub may close that channel concurrently.
func (c *Client) reply(status, message string) {
	data, err := json.Marshal(map[string]string{status: message})
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, data: data}:
	default:
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
