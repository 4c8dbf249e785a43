// Package ws implements the Notifier port as a websocket fan-out hub.
// Clients subscribe to (kind, id) pairs and receive every event finalized for
// that entity, in finalize order.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Hub)(nil)

// inboxSize bounds how many undelivered notifications the hub buffers before
// dropping. Finalize callers are never blocked on slow fan-out.
const inboxSize = 256

type subscriptionKey struct {
	kind string
	id   string
}

type outbound struct {
	key  subscriptionKey
	data []byte
}

type subRequest struct {
	client *Client
	key    subscriptionKey
	add    bool
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub owns the subscription maps. All map access happens on the Run
// goroutine; clients and notifiers communicate through channels. Run is also
// the only goroutine that sends on or closes a client's send channel, so a
// reply can never race a disconnect.
type Hub struct {
	visibility Visibility

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subRequest
	inbox       chan outbound
	direct      chan directMessage
	subscribers map[subscriptionKey]map[*Client]struct{}
	clients     map[*Client]struct{}
}

// NewHub creates a hub using the given visibility check for subscription
// requests.
func NewHub(visibility Visibility) *Hub {
	return &Hub{
		visibility:  visibility,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subRequest),
		inbox:       make(chan outbound, inboxSize),
		direct:      make(chan directMessage, inboxSize),
		subscribers: make(map[subscriptionKey]map[*Client]struct{}),
		clients:     make(map[*Client]struct{}),
	}
}

// Run processes registrations, subscription changes, and outbound events
// until the context is canceled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case req := <-h.subscribe:
			if req.add {
				subs, ok := h.subscribers[req.key]
				if !ok {
					subs = make(map[*Client]struct{})
					h.subscribers[req.key] = subs
				}
				subs[req.client] = struct{}{}
			} else {
				h.removeSubscription(req.client, req.key)
			}

		case msg := <-h.inbox:
			for client := range h.subscribers[msg.key] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer: drop the connection rather than
					// blocking delivery to everyone else.
					h.drop(client)
				}
			}

		case msg := <-h.direct:
			// A reply for a client already dropped is discarded.
			if _, ok := h.clients[msg.client]; !ok {
				break
			}
			select {
			case msg.client.send <- msg.data:
			default:
				h.drop(msg.client)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	for key, subs := range h.subscribers {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, key)
		}
	}
	close(client.send)
}

func (h *Hub) removeSubscription(client *Client, key subscriptionKey) {
	subs, ok := h.subscribers[key]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscribers, key)
	}
}

// Notify delivers {type: event, payload: payload} to every subscriber of
// (kind, id). Delivery is best-effort; the caller is never blocked beyond the
// buffered inbox send.
func (h *Hub) Notify(kind, id, event string, payload map[string]any) {
	data, err := json.Marshal(map[string]any{
		"type":    event,
		"payload": payload,
	})
	if err != nil {
		slog.Error("marshaling notification", "event", event, "error", err)
		return
	}
	h.push(subscriptionKey{kind: kind, id: id}, event, data)
}

// NotifyError delivers an error-shaped payload without a model key.
func (h *Hub) NotifyError(kind, id, event string, notifyErr error, extra map[string]any) {
	payload := map[string]any{"message": notifyErr.Error()}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(map[string]any{
		"type":    event,
		"payload": payload,
	})
	if err != nil {
		slog.Error("marshaling error notification", "event", event, "error", err)
		return
	}
	h.push(subscriptionKey{kind: kind, id: id}, event, data)
}

func (h *Hub) push(key subscriptionKey, event string, data []byte) {
	select {
	case h.inbox <- outbound{key: key, data: data}:
	default:
		slog.Warn("notification inbox full, dropped event",
			"kind", key.kind, "id", key.id, "event", event)
	}
}
