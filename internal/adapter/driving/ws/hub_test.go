package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVisibility struct {
	allow bool
	err   error
}

func (v stubVisibility) Subscribable(ctx context.Context, kind, id, userID string) (bool, error) {
	return v.allow, v.err
}

// dialTestHub starts a hub with the given visibility, serves it, and returns
// a connected client.
func dialTestHub(t *testing.T, visibility Visibility) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(visibility)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(ServeWS(hub))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return hub, conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, kind, id string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(subscribeMessage{Model: kind, ID: id, Action: "SUBSCRIBE"}))
	reply := readJSON(t, conn)
	require.Contains(t, reply, "ok")
}

func TestHub_SubscribeAndNotify(t *testing.T) {
	hub, conn := dialTestHub(t, stubVisibility{allow: true})
	subscribe(t, conn, "task", "task-1")

	hub.Notify("task", "task-1", "TASK_UPDATE", map[string]any{
		"model": map[string]any{"id": "task-1", "name": "Add Button"},
	})

	msg := readJSON(t, conn)
	assert.Equal(t, "TASK_UPDATE", msg["type"])
	payload, ok := msg["payload"].(map[string]any)
	require.True(t, ok)
	model, ok := payload["model"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Add Button", model["name"])
}

func TestHub_NotifyError(t *testing.T) {
	hub, conn := dialTestHub(t, stubVisibility{allow: true})
	subscribe(t, conn, "scratchorg", "org-1")

	hub.NotifyError("scratchorg", "org-1", "SCRATCH_ORG_PROVISION_FAILED",
		errors.New("signup rejected"),
		map[string]any{"originating_user_id": "user-1"})

	msg := readJSON(t, conn)
	assert.Equal(t, "SCRATCH_ORG_PROVISION_FAILED", msg["type"])
	payload, ok := msg["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "signup rejected", payload["message"])
	assert.Equal(t, "user-1", payload["originating_user_id"])
	_, hasModel := payload["model"]
	assert.False(t, hasModel)
}

func TestHub_UnsubscribedClientsGetNothing(t *testing.T) {
	hub, conn := dialTestHub(t, stubVisibility{allow: true})
	subscribe(t, conn, "task", "task-1")

	// Events for other entities are invisible.
	hub.Notify("task", "task-2", "TASK_UPDATE", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var msg map[string]any
	assert.Error(t, conn.ReadJSON(&msg))
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, conn := dialTestHub(t, stubVisibility{allow: true})
	subscribe(t, conn, "task", "task-1")

	require.NoError(t, conn.WriteJSON(subscribeMessage{Model: "task", ID: "task-1", Action: "UNSUBSCRIBE"}))
	reply := readJSON(t, conn)
	require.Contains(t, reply, "ok")

	hub.Notify("task", "task-1", "TASK_UPDATE", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var msg map[string]any
	assert.Error(t, conn.ReadJSON(&msg))
}

func TestHub_VisibilityDenied(t *testing.T) {
	_, conn := dialTestHub(t, stubVisibility{allow: false})

	require.NoError(t, conn.WriteJSON(subscribeMessage{Model: "task", ID: "task-1", Action: "SUBSCRIBE"}))
	reply := readJSON(t, conn)
	assert.Contains(t, reply, "error")
}

func TestHub_UnknownKindRejected(t *testing.T) {
	_, conn := dialTestHub(t, stubVisibility{err: errors.New("unknown model kind")})

	require.NoError(t, conn.WriteJSON(subscribeMessage{Model: "gizmo", ID: "x", Action: "SUBSCRIBE"}))
	reply := readJSON(t, conn)
	assert.Contains(t, reply, "error")
}

func TestHub_ReplyAfterDisconnect(t *testing.T) {
	hub := NewHub(stubVisibility{allow: true})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	client := &Client{hub: hub, send: make(chan []byte, sendBuffer), userID: "user-1"}
	hub.register <- client
	// The hub closes the send channel when the client goes away.
	hub.unregister <- client

	// A protocol reply racing the disconnect must not write to the closed
	// channel.
	assert.NotPanics(t, func() { client.reply("ok", "task:task-1") })

	// The same hub keeps serving other clients.
	srv := httptest.NewServer(ServeWS(hub))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	subscribe(t, conn, "task", "task-1")
	hub.Notify("task", "task-1", "TASK_UPDATE", nil)
	msg := readJSON(t, conn)
	assert.Equal(t, "TASK_UPDATE", msg["type"])
}

func TestHub_MalformedMessage(t *testing.T) {
	_, conn := dialTestHub(t, stubVisibility{allow: true})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply := readJSON(t, conn)
	assert.Contains(t, reply, "error")
}

func TestHub_UnknownAction(t *testing.T) {
	_, conn := dialTestHub(t, stubVisibility{allow: true})

	require.NoError(t, conn.WriteJSON(subscribeMessage{Model: "task", ID: "task-1", Action: "PEEK"}))
	reply := readJSON(t, conn)
	assert.Contains(t, reply, "error")
}
