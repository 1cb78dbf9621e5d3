package ws_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/bell/internal/core/auth"
	"github.com/hay-kot/bell/internal/core/push"
	"github.com/hay-kot/bell/internal/integration/ws"
	"github.com/hay-kot/bell/internal/relay"
)

func startRelay(t *testing.T) (*relay.Server, *auth.Signer, string) {
	t.Helper()

	signer, err := auth.NewSigner("ws-secret", time.Minute)
	require.NoError(t, err)

	srv, err := relay.New(relay.Options{Signer: signer})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, signer, ln.Addr().String()
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestClient_DialError(t *testing.T) {
	c := ws.New("ws://" + closedAddr(t) + "/ws")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Connect(ctx, push.Auth{UserID: "alice"})
	require.ErrorContains(t, err, "dial relay")
}

func TestClient_InvalidURL(t *testing.T) {
	c := ws.New("://nope")
	require.Error(t, c.Connect(context.Background(), push.Auth{UserID: "alice"}))
}

func TestClient_DisconnectWithoutConnection(t *testing.T) {
	c := ws.New("ws://127.0.0.1:1/ws")
	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())
}

func TestClient_ReceivesNotification(t *testing.T) {
	srv, signer, addr := startRelay(t)

	token, err := signer.Sign("alice")
	require.NoError(t, err)

	got := make(chan []byte, 1)
	dropped := make(chan struct{}, 1)

	c := ws.New("ws://" + addr + "/ws")
	c.On(push.EventNotification, func(data []byte) { got <- data })
	c.On(push.EventDisconnect, func([]byte) { dropped <- struct{}{} })

	require.NoError(t, c.Connect(context.Background(), push.Auth{UserID: "alice", Token: token}))
	t.Cleanup(func() { _ = c.Disconnect() })

	require.Eventually(t, func() bool {
		return srv.Hub().Count("alice") == 1
	}, 5*time.Second, 10*time.Millisecond)

	frame, err := push.NewEnvelope(push.EventNotification, map[string]string{"id": "n-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Hub().Publish("alice", frame))

	select {
	case data := <-got:
		assert.JSONEq(t, `{"id":"n-1"}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not delivered")
	}

	require.NoError(t, c.Disconnect())

	select {
	case <-dropped:
		t.Fatal("local disconnect must not emit a disconnect event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_RejectedToken(t *testing.T) {
	_, _, addr := startRelay(t)

	c := ws.New("ws://" + addr + "/ws")
	err := c.Connect(context.Background(), push.Auth{UserID: "alice", Token: "garbage"})
	require.ErrorContains(t, err, "dial relay")
}
