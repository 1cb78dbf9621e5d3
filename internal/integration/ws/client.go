// Package ws implements push.Channel over a websocket connection to the relay.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/logging"
	"github.com/hay-kot/bell/internal/core/push"
)

const (
	writeWait = 5 * time.Second
	// readWait must exceed the relay ping interval.
	readWait = 75 * time.Second
)

// Client is a websocket push.Channel holding at most one connection.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	log      zerolog.Logger

	mu       sync.Mutex
	handlers map[string]push.Handler
	conn     *websocket.Conn
	done     chan struct{}
}

var _ push.Channel = (*Client)(nil)

// New creates a client for the relay websocket endpoint, e.g.
// ws://localhost:7420/ws.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log:      logging.Component("ws"),
		handlers: make(map[string]push.Handler),
	}
}

// On registers handler for event, replacing any previous handler.
func (c *Client) On(event string, handler push.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Connect dials the relay and starts reading events. Any existing connection
// is closed first.
func (c *Client) Connect(ctx context.Context, auth push.Auth) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse relay url: %w", err)
	}

	header := http.Header{}
	if auth.Token != "" {
		q := u.Query()
		q.Set("token", auth.Token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+auth.Token)
	}

	if err := c.Disconnect(); err != nil {
		c.log.Debug().Err(err).Msg("closing previous connection")
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

// Disconnect closes the live connection and waits for its reader to exit.
// It must not be called from inside an event handler.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn, c.done = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	err := conn.Close()
	<-done

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			remote := c.conn == conn
			if remote {
				c.conn, c.done = nil, nil
			}
			c.mu.Unlock()

			_ = conn.Close()
			if remote {
				c.emit(push.EventDisconnect, []byte(err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var env push.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.emit(env.Type, env.Data)
	}
}

func (c *Client) emit(event string, data []byte) {
	c.mu.Lock()
	h := c.handlers[event]
	c.mu.Unlock()

	if h != nil {
		h(data)
	}
}
