package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"triprelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be < pongWait
	maxMessageSize = 4096
)

type Options struct {
	// QueueDepth bounds the outbound frames held per connection.
	QueueDepth int
	// AllowedOrigin is matched against the Origin header; "*" or "" allows all.
	AllowedOrigin string
}

type WsServer struct {
	lifecycle  *relay.Lifecycle
	router     *Router
	upgrader   websocket.Upgrader
	queueDepth int
}

func NewWsServer(lc *relay.Lifecycle, opts Options) *WsServer {
	srv := &WsServer{
		lifecycle:  lc,
		router:     NewRouter(),
		queueDepth: opts.QueueDepth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigin),
		},
	}
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

func originChecker(allowed string) func(r *http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle upgrades GET /ws?role=<driver|user>&room=<id>. Both query
// parameters are optional shortcuts for declare-role and join-room.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	s.ServeHTTP(ginCtx.Writer, ginCtx.Request)
}

func (s *WsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "" {
		if _, err := relay.ParseRole(role); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	roomID := r.URL.Query().Get("room")

	rawConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	// ─────────────────── Client connected ────────────────────────
	conn := newClientConn(uuid.NewString(), rawConn, s.queueDepth)
	if err := s.lifecycle.OnConnect(conn.id, conn); err != nil {
		zap.L().Error("ws.register", zap.String("conn", conn.id), zap.Error(err))
		conn.Close()
		return
	}
	s.enqueue(conn, EventConnected, ConnectedBody{ConnectionID: conn.id})

	if role != "" {
		s.logRelayErr(conn.id, EventDeclareRole, s.lifecycle.OnDeclareRole(conn.id, role))
	}
	if roomID != "" {
		s.logRelayErr(conn.id, EventJoinRoom, s.lifecycle.OnJoinRoom(conn.id, roomID))
	}

	go conn.writePump()
	go s.reader(conn)
}

// Shutdown closes every open websocket. Readers then run the usual
// disconnect path.
func (s *WsServer) Shutdown() {
	s.lifecycle.Registry().CloseAll()
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, EventJoinRoom,
		func(_ context.Context, cc *ConnContext, roomID string) error {
			return s.lifecycle.OnJoinRoom(cc.ConnID, roomID)
		},
	)

	Register(s.router, EventDeclareRole,
		func(_ context.Context, cc *ConnContext, role string) error {
			return s.lifecycle.OnDeclareRole(cc.ConnID, role)
		},
	)

	Register(s.router, EventDriverLocation,
		func(_ context.Context, cc *ConnContext, req LocationBody) error {
			if req.Location == nil {
				return fmt.Errorf("%w: missing location", ErrInvalidBody)
			}
			return s.lifecycle.OnDriverLocation(cc.ConnID, s.roomFor(cc.ConnID, req.RoomID), *req.Location)
		},
	)

	Register(s.router, EventUserLocation,
		func(_ context.Context, cc *ConnContext, req LocationBody) error {
			if req.Location == nil {
				return fmt.Errorf("%w: missing location", ErrInvalidBody)
			}
			return s.lifecycle.OnUserLocation(cc.ConnID, s.roomFor(cc.ConnID, req.RoomID), *req.Location)
		},
	)

	for alias, event := range legacyEvents {
		s.router.Alias(alias, event)
	}
}

// roomFor falls back to the joined room when the event names none.
func (s *WsServer) roomFor(connID, roomID string) string {
	if roomID != "" {
		return roomID
	}
	if c, err := s.lifecycle.Registry().Get(connID); err == nil {
		return c.RoomID
	}
	return ""
}

func (s *WsServer) reader(conn *clientConn) {
	defer func() {
		conn.Close()
		if err := s.lifecycle.OnDisconnect(conn.id); err != nil {
			zap.L().Warn("ws.disconnect", zap.String("conn", conn.id), zap.Error(err))
		}
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{ConnID: conn.id, Server: s}
	ctx := context.Background()

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.enqueue(conn, EventError, ErrorBody{Error: ErrInvalidBody.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read", zap.String("conn", conn.id), zap.Error(err))
			}
			return // client closed or errored
		}

		err := s.router.dispatch(ctx, cc, env)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrInvalidBody):
			// ---- protocol error -> {"event":"error", "body":{...}} ------
			s.enqueue(conn, EventError, ErrorBody{Error: err.Error()})
		default:
			// relay errors drop the event; the sender is not told
			s.logRelayErr(conn.id, env.Event, err)
		}
	}
}

func (s *WsServer) enqueue(conn *clientConn, event string, body any) {
	msg, err := json.Marshal(relay.Envelope{Event: event, Body: body})
	if err != nil {
		zap.L().Error("ws.encode", zap.String("event", event), zap.Error(err))
		return
	}
	if !conn.Enqueue(msg) {
		zap.L().Warn("ws.queue_full", zap.String("conn", conn.id), zap.String("event", event))
	}
}

func (s *WsServer) logRelayErr(connID, event string, err error) {
	if err == nil {
		return
	}
	zap.L().Info("ws.event_dropped",
		zap.String("conn", connID),
		zap.String("event", event),
		zap.Error(err),
	)
}
