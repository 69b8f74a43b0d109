package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-pixels/internal/auth"
	"github.com/nerrad567/gray-logic-pixels/internal/effect"
	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
	"github.com/nerrad567/gray-logic-pixels/internal/relay"
)

// startedFixture runs the server on a real listener so WebSocket upgrades work.
func startedFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := newFixture(t, mutate)
	require.NoError(t, f.server.Start(context.Background()))
	t.Cleanup(func() { f.server.Close() })
	return f
}

func dialWS(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+f.server.Addr()+"/api/v1/ws"+query, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, sub WSSubscribePayload) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "sub-1", Payload: sub}))
	resp := readWS(t, conn)
	require.Equal(t, WSTypeResponse, resp.Type)
	require.Equal(t, "sub-1", resp.ID)
}

func TestWebSocket_StreamsDeviceFrames(t *testing.T) {
	f := startedFixture(t, nil)
	f.do(t, "POST", "/api/v1/devices", deskRequest("desk"), "")
	f.do(t, "POST", "/api/v1/devices", deskRequest("shelf"), "")

	conn := dialWS(t, f, "")
	subscribe(t, conn, WSSubscribePayload{Channels: []string{ChannelDeviceFrame}, DeviceIDs: []string{"desk"}})

	shelf, _ := f.registry.Get("shelf")
	shelfBuf := &effect.Buffer{}
	require.NoError(t, shelf.SetEffect(shelfBuf))
	shelfBuf.Publish([]pixel.RGB{{1, 1, 1}})

	desk, _ := f.registry.Get("desk")
	buf := &effect.Buffer{}
	require.NoError(t, desk.SetEffect(buf))
	buf.Publish([]pixel.RGB{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {255, 255, 255}})

	// Only desk frames arrive; wait for the first one carrying the published pixels.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no desk frame received")

		msg := readWS(t, conn)
		require.Equal(t, WSTypeEvent, msg.Type)
		require.Equal(t, ChannelDeviceFrame, msg.EventType)

		raw, err := json.Marshal(msg.Payload)
		require.NoError(t, err)
		var frame relay.FramePayload
		require.NoError(t, json.Unmarshal(raw, &frame))

		require.Equal(t, "desk", frame.DeviceID)
		if len(frame.Pixels) == 4 && frame.Pixels[0] == [3]int{255, 0, 0} {
			assert.Equal(t, [3]int{255, 255, 255}, frame.Pixels[3])
			break
		}
	}
}

func TestWebSocket_ShutdownNotice(t *testing.T) {
	f := startedFixture(t, nil)

	conn := dialWS(t, f, "")
	subscribe(t, conn, WSSubscribePayload{Channels: []string{ChannelShutdown}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.PublishWait(ctx, events.Shutdown{Reason: "maintenance"}))

	msg := readWS(t, conn)
	assert.Equal(t, ChannelShutdown, msg.EventType)
	assert.Equal(t, map[string]any{"reason": "maintenance"}, msg.Payload)
}

func TestWebSocket_Protocol(t *testing.T) {
	f := startedFixture(t, nil)
	conn := dialWS(t, f, "")

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}))
	msg := readWS(t, conn)
	assert.Equal(t, WSTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "dance", ID: "d1"}))
	msg = readWS(t, conn)
	assert.Equal(t, WSTypeError, msg.Type)
	assert.Equal(t, "d1", msg.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "s1",
		Payload: WSSubscribePayload{Channels: []string{"device.state"}},
	}))
	msg = readWS(t, conn)
	assert.Equal(t, WSTypeError, msg.Type, "unknown channel")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readWS(t, conn)
	assert.Equal(t, WSTypeError, msg.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "u1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceFrame}},
	}))
	msg = readWS(t, conn)
	assert.Equal(t, WSTypeResponse, msg.Type)
	assert.Equal(t, "u1", msg.ID)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	f := startedFixture(t, func(d *Deps) { d.Config.Auth.JWTSecret = testJWTSecret })

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+f.server.Addr()+"/api/v1/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)

	token, err := auth.GenerateToken("wall-panel", auth.ScopeViewer, testJWTSecret, time.Minute)
	require.NoError(t, err)
	conn := dialWS(t, f, "?token="+token)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}))
	assert.Equal(t, WSTypePong, readWS(t, conn).Type)
}

func TestWebSocket_CloseDisconnectsClients(t *testing.T) {
	f := startedFixture(t, nil)
	conn := dialWS(t, f, "")

	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.server.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, f.server.Hub().ClientCount())
}

// ============================================================================
// Hub
// ============================================================================

func newTestClient(h *Hub, buffer int, channels, devices []string) *WSClient {
	c := &WSClient{
		hub:           h,
		send:          make(chan []byte, buffer),
		subscriptions: make(map[string]struct{}),
		devices:       make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	for _, id := range devices {
		c.devices[id] = struct{}{}
	}
	return c
}

func TestHub_BroadcastFilters(t *testing.T) {
	h := NewHub(testConfig().WebSocket, testLogger())

	all := newTestClient(h, 4, []string{ChannelDeviceFrame}, nil)
	deskOnly := newTestClient(h, 4, []string{ChannelDeviceFrame}, []string{"desk"})
	shutdownOnly := newTestClient(h, 4, []string{ChannelShutdown}, nil)
	for _, c := range []*WSClient{all, deskOnly, shutdownOnly} {
		require.True(t, h.Register(c))
	}

	h.Broadcast(ChannelDeviceFrame, "shelf", map[string]string{"device_id": "shelf"})
	h.Broadcast(ChannelDeviceFrame, "desk", map[string]string{"device_id": "desk"})
	h.Broadcast(ChannelShutdown, "", map[string]string{"reason": "x"})

	assert.Len(t, all.send, 2)
	assert.Len(t, deskOnly.send, 1)
	assert.Len(t, shutdownOnly.send, 1)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(<-deskOnly.send, &msg))
	assert.Equal(t, map[string]any{"device_id": "desk"}, msg.Payload)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	h := NewHub(testConfig().WebSocket, testLogger())
	slow := newTestClient(h, 1, []string{ChannelDeviceFrame}, nil)
	require.True(t, h.Register(slow))

	h.Broadcast(ChannelDeviceFrame, "desk", 1)
	h.Broadcast(ChannelDeviceFrame, "desk", 2)
	h.Broadcast(ChannelDeviceFrame, "desk", 3)

	assert.Len(t, slow.send, 1)
	assert.Equal(t, uint64(2), h.Dropped())
}

func TestHub_RunClosesClients(t *testing.T) {
	h := NewHub(testConfig().WebSocket, testLogger())
	c := newTestClient(h, 1, nil, nil)
	require.True(t, h.Register(c))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, open := <-c.send
	assert.False(t, open, "send channel closed")
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.Register(newTestClient(h, 1, nil, nil)), "closed hub rejects clients")

	// Unregister after close must not double-close.
	h.Unregister(c)
}
