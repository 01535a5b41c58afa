package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-explorer-be/internal/pkg/logger"
)

func TestHub_DeliversPerSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, logger.NewNopLogger())
	go hub.Run(ctx)

	a := &Client{hub: hub, sessionID: "a", send: make(chan []byte, 4)}
	b := &Client{hub: hub, sessionID: "b", send: make(chan []byte, 4)}
	require.True(t, hub.join(a))
	require.True(t, hub.join(b))
	require.Eventually(t, func() bool { return hub.ClientCount("a") == 1 && hub.ClientCount("b") == 1 }, time.Second, 5*time.Millisecond)

	hub.SendToSession("a", []byte(`{"type":"TURN_COMPLETED"}`))

	select {
	case msg := <-a.send:
		assert.JSONEq(t, `{"type":"TURN_COMPLETED"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("client a got nothing")
	}
	assert.Empty(t, b.send)

	hub.leave(a)
	require.Eventually(t, func() bool { return hub.ClientCount("a") == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-a.send
	assert.False(t, open)
}

func TestHub_FullBufferDropsMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, logger.NewNopLogger())
	go hub.Run(ctx)

	c := &Client{hub: hub, sessionID: "s", send: make(chan []byte, 1)}
	require.True(t, hub.join(c))
	require.Eventually(t, func() bool { return hub.ClientCount("s") == 1 }, time.Second, 5*time.Millisecond)

	hub.SendToSession("s", []byte("1"))
	hub.SendToSession("s", []byte("2"))

	assert.Equal(t, []byte("1"), <-c.send)
	assert.Equal(t, 1, hub.ClientCount("s"))
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, logger.NewNopLogger())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := &Client{hub: hub, sessionID: "s", send: make(chan []byte, 1)}
	require.True(t, hub.join(c))
	cancel()
	<-stopped

	_, open := <-c.send
	assert.False(t, open)
	assert.False(t, hub.join(&Client{hub: hub, sessionID: "late", send: make(chan []byte, 1)}))
	hub.leave(c)
}
