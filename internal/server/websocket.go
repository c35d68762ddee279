package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goevery/relay/internal/broadcast"
	"github.com/goevery/relay/internal/handler"
	"github.com/goevery/relay/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10

	// audio arrives base64 encoded inside a single frame
	maxFrameSize = 16 << 20
)

var ErrSendBufferFull = errors.New("connection send buffer is full")

type ConnectedResponse struct {
	Message     string    `json:"message"`
	Sid         string    `json:"sid"`
	Timestamp   time.Time `json:"timestamp"`
	Connections int       `json:"connections"`
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	registry session.Registry
	router   *Router
	path     string
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry session.Registry,
	router *Router,
	path string,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		router,
		path,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc(s.path, s.serve)
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	sessionId := gonanoid.Must()
	connection := NewConnection(sessionId, conn, s.logger.With(zap.String("sessionId", sessionId)))

	go connection.writePump()

	s.session(r.Context(), connection)
}

// session registers connection, greets it and reads frames until the socket
// closes. The write pump must be started by the caller.
func (s *WebSocketServer) session(ctx context.Context, connection *Connection) {
	sessionId := connection.Id()
	logger := connection.logger

	if err := s.registry.Add(connection); err != nil {
		logger.Error("failed to register session", zap.Error(err))
		_ = connection.Close()
		return
	}

	defer func() {
		s.registry.Remove(sessionId)
		_ = connection.Close()
		logger.Info("websocket connection closed")
	}()

	logger.Info("websocket connection established")

	ctx = handler.WithSessionId(ctx, sessionId)

	err := connection.Send(ctx, broadcast.EventConnected, ConnectedResponse{
		Message:     "Connected to server",
		Sid:         sessionId,
		Timestamp:   time.Now().UTC(),
		Connections: s.registry.Count(),
	})
	if err != nil {
		logger.Warn("failed to greet session", zap.Error(err))
		return
	}

	s.readPump(ctx, connection)
}

func (s *WebSocketServer) readPump(ctx context.Context, connection *Connection) {
	conn := connection.conn

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				connection.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var frame handler.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = connection.Send(ctx, broadcast.EventError, handler.ErrorResponse{Message: "Invalid message format"})
			continue
		}

		reply := s.router.RouteFrame(ctx, frame)
		if reply == nil {
			continue
		}

		if err := connection.sendFrame(*reply); err != nil {
			return
		}
	}
}

// Connection is one live socket. Frames are queued on a bounded buffer and
// written by a single goroutine; a session that cannot keep up is closed.
type Connection struct {
	id     string
	conn   *websocket.Conn
	send   chan handler.Frame
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
}

func NewConnection(id string, conn *websocket.Conn, logger *zap.Logger) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		send:   make(chan handler.Frame, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *Connection) Id() string {
	return c.id
}

func (c *Connection) Send(_ context.Context, event string, payload any) error {
	frame, err := handler.NewFrame(event, payload)
	if err != nil {
		return err
	}

	return c.sendFrame(frame)
}

func (c *Connection) sendFrame(frame handler.Frame) error {
	select {
	case <-c.done:
		return session.ErrSessionNotFound
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return session.ErrSessionNotFound
	default:
		c.logger.Warn("connection send buffer is full, closing connection")
		_ = c.Close()

		return ErrSendBufferFull
	}
}

func (c *Connection) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})

	return err
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
