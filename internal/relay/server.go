// Package relay is the push server: clients hold a websocket per user and
// publishers deliver notifications to them over HTTP.
package relay

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/auth"
	"github.com/hay-kot/bell/internal/core/logging"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second

	localUserID = "userId"
)

// Options configures a Server. Broker defaults to an in-process hub.
type Options struct {
	Signer *auth.Signer
	Broker Broker
	Hub    *Hub
	Now    func() time.Time
}

// Server is the relay HTTP and websocket server.
type Server struct {
	app    *fiber.App
	hub    *Hub
	broker Broker
	signer *auth.Signer
	now    func() time.Time
	log    zerolog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// PublishResponse is returned by POST /api/notifications.
type PublishResponse struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
}

// New builds the relay routes.
func New(opts Options) (*Server, error) {
	if opts.Signer == nil {
		return nil, errors.New("relay: signer is required")
	}

	s := &Server{
		hub:     opts.Hub,
		broker:  opts.Broker,
		signer:  opts.Signer,
		now:     opts.Now,
		log:     logging.Component("relay"),
		closing: make(chan struct{}),
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.broker == nil {
		s.broker = NewLocalBroker(s.hub)
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "bell-relay",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/ws", s.upgrade, websocket.New(s.handleSocket))
	s.app.Post("/api/notifications", s.requireRole(auth.RolePublisher), s.handlePublish)

	return s, nil
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("relay listening")
	return s.app.Listen(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown closes open sockets and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// bearer reads the token from ?token= or an Authorization header.
func bearer(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) authenticate(c *fiber.Ctx) (*auth.Claims, error) {
	token := bearer(c)
	if token == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing authentication token")
	}
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, auth.ErrInvalidToken.Error())
	}
	return claims, nil
}

func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claims, err := s.authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(localUserID, claims.UserID)
	return c.Next()
}

func (s *Server) requireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := s.authenticate(c)
		if err != nil {
			return err
		}
		if claims.Role != role {
			return fiber.NewError(fiber.StatusForbidden, "token not allowed to publish")
		}
		return c.Next()
	}
}

func (s *Server) handleSocket(c *websocket.Conn) {
	userID, _ := c.Locals(localUserID).(string)
	if userID == "" {
		_ = c.Close()
		return
	}

	ctx := logging.WithConnID(logging.WithUserID(context.Background(), userID), uuid.NewString())
	log := s.log.With().Ctx(ctx).Str("remote", c.RemoteAddr().String()).Logger()

	frames, unsubscribe := s.hub.Subscribe(userID)
	defer unsubscribe()
	log.Debug().Int("connections", s.hub.Count(userID)).Msg("socket opened")

	// Inbound frames are ignored; reading surfaces the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			log.Debug().Msg("socket closed by peer")
			return
		case <-s.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case frame := <-frames:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Msg("socket write failed")
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handlePublish(c *fiber.Ctx) error {
	var p notify.Payload
	if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid notification body")
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	p.Type = p.Type.OrDefault()

	if err := p.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	frame, err := push.NewEnvelope(push.EventNotification, p)
	if err != nil {
		return err
	}

	delivered, err := s.broker.Publish(c.UserContext(), p.UserID, frame)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("id", p.ID).
		Str("user_id", p.UserID).
		Int("delivered", delivered).
		Msg("notification published")

	return c.Status(fiber.StatusAccepted).JSON(PublishResponse{ID: p.ID, Delivered: delivered})
}
