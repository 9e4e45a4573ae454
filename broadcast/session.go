package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Control frame types exchanged on a board socket besides domain events.
const (
	FrameConnected = "connected"
	FrameError     = "error"
	FrameJoined    = "board-joined"
	FrameLeft      = "board-left"
	FrameJoin      = "join-board"
	FrameLeave     = "leave-board"
)

// Authenticator resolves the principal behind a bearer header.
type Authenticator interface {
	PrincipalFromAuthHeader(string) (domain.Principal, error)
}

// Authorizer gates board subscriptions.
type Authorizer interface {
	AuthorizeView(ctx context.Context, userID, boardID string) error
}

// SessionConfig tunes socket timing and queueing.
type SessionConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 8 << 10
	}
	return c
}

// ControlFrame is a non-event frame: handshake, join acks, errors and
// client commands.
type ControlFrame struct {
	Type    string          `json:"type"`
	BoardID string          `json:"boardId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ConnectedData struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type JoinedData struct {
	Present []domain.Presence `json:"present"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type typingData struct {
	CardID string `json:"cardId"`
}

func encodeControl(typ, boardID string, data any) ([]byte, error) {
	f := ControlFrame{Type: typ, BoardID: boardID}
	if data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return sonic.Marshal(f)
}

// Session is one websocket connection. The hub writes to it through Deliver;
// a single goroutine owns the socket's write side.
type Session struct {
	id    string
	user  domain.Principal
	conn  *websocket.Conn
	send  chan []byte
	hub   *Hub
	authz Authorizer
	cfg   SessionConfig
	log   *log.Entry

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, user domain.Principal, hub *Hub, authz Authorizer, cfg SessionConfig, logger *log.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		user:  user,
		conn:  conn,
		send:  make(chan []byte, cfg.SendBuffer),
		hub:   hub,
		authz: authz,
		cfg:   cfg,
		log:   logger.WithFields(log.Fields{"session": id, "user": user.ID}),
		done:  make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Presence() domain.Presence {
	return domain.Presence{UserID: s.user.ID, UserName: s.user.Name, SessionID: s.id}
}

func (s *Session) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) control(typ, boardID string, data any) {
	frame, err := encodeControl(typ, boardID, data)
	if err != nil {
		s.log.WithError(err).Error("encode control frame failed")
		return
	}
	if !s.Deliver(frame) {
		s.log.WithField("frame", typ).Warn("session queue full, control frame dropped")
	}
}

func (s *Session) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump()
	}()

	s.control(FrameConnected, "", ConnectedData{SessionID: s.id, UserID: s.user.ID})
	s.readPump(ctx)

	s.hub.Leave(s.id)
	s.close()
	wg.Wait()
}

func (s *Session) readPump(ctx context.Context) {
	defer s.conn.Close()
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("socket closed")
			}
			return
		}
		var f ControlFrame
		if err := sonic.Unmarshal(msg, &f); err != nil {
			s.control(FrameError, "", ErrorData{Message: "malformed frame"})
			continue
		}
		s.handle(ctx, f)
	}
}

func (s *Session) handle(ctx context.Context, f ControlFrame) {
	switch f.Type {
	case FrameJoin:
		if f.BoardID == "" {
			s.control(FrameError, "", ErrorData{Message: "boardId is required"})
			return
		}
		if err := s.authz.AuthorizeView(ctx, s.user.ID, f.BoardID); err != nil {
			s.log.WithError(err).WithField("board", f.BoardID).Info("join denied")
			s.control(FrameError, f.BoardID, ErrorData{Message: joinError(err)})
			return
		}
		s.hub.Join(f.BoardID, s)
		s.control(FrameJoined, f.BoardID, JoinedData{Present: s.hub.Present(f.BoardID)})
	case FrameLeave:
		if board, ok := s.hub.Leave(s.id); ok {
			s.control(FrameLeft, board, nil)
		}
	case string(domain.TypingStarted), string(domain.TypingStopped):
		var d typingData
		if len(f.Data) > 0 {
			if err := sonic.Unmarshal(f.Data, &d); err != nil {
				s.control(FrameError, "", ErrorData{Message: "malformed typing frame"})
				return
			}
		}
		s.hub.Typing(s.id, d.CardID, f.Type == string(domain.TypingStarted))
	default:
		s.control(FrameError, "", ErrorData{Message: "unknown frame type " + f.Type})
	}
}

func joinError(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "board not found"
	case errors.Is(err, domain.ErrForbidden):
		return "access denied"
	}
	return "unable to join board"
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.WithError(err).Debug("write failed")
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

// Handler upgrades authenticated requests to board sockets. The bearer token
// comes from the Authorization header or, for browsers, the token query
// parameter.
func Handler(hub *Hub, auth Authenticator, authz Authorizer, cfg SessionConfig, logger *log.Logger) echo.HandlerFunc {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.StandardLogger()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		user, err := auth.PrincipalFromAuthHeader(authHeader)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": err.Error()})
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return nil
		}
		s := newSession(conn, user, hub, authz, cfg, logger)
		s.log.Debug("session connected")
		s.run(context.WithoutCancel(c.Request().Context()))
		s.log.Debug("session disconnected")
		return nil
	}
}
