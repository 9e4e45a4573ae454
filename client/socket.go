package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"taskboard/broadcast"
	"taskboard/domain"
)

const writeWait = 10 * time.Second

// Socket is the client end of a board websocket.
type Socket struct {
	conn    *websocket.Conn
	session string
	userID  string

	writeMu sync.Mutex
}

// Handlers receive what a socket reads. Nil handlers are skipped.
type Handlers struct {
	Event   func(domain.Event)
	Joined  func(boardID string, present []domain.Presence)
	Left    func(boardID string)
	Failure func(boardID, message string)
}

// Dial connects to a board socket at wsURL and waits for the server's
// connected frame, which carries this connection's session id.
func Dial(ctx context.Context, wsURL, bearer string) (*Socket, error) {
	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	var f broadcast.ControlFrame
	var hello broadcast.ConnectedData
	if err := sonic.Unmarshal(msg, &f); err != nil || f.Type != broadcast.FrameConnected {
		conn.Close()
		return nil, errors.New("unexpected handshake frame")
	}
	if err := sonic.Unmarshal(f.Data, &hello); err != nil || hello.SessionID == "" {
		conn.Close()
		return nil, errors.New("handshake without session id")
	}
	return &Socket{conn: conn, session: hello.SessionID, userID: hello.UserID}, nil
}

// Session is the id the server assigned to this connection.
func (s *Socket) Session() string { return s.session }

// UserID is the authenticated user behind the connection.
func (s *Socket) UserID() string { return s.userID }

func (s *Socket) Join(boardID string) error {
	return s.send(broadcast.ControlFrame{Type: broadcast.FrameJoin, BoardID: boardID})
}

func (s *Socket) Leave(boardID string) error {
	return s.send(broadcast.ControlFrame{Type: broadcast.FrameLeave, BoardID: boardID})
}

// Typing announces that the user started or stopped editing a card.
func (s *Socket) Typing(cardID string, started bool) error {
	typ := domain.TypingStopped
	if started {
		typ = domain.TypingStarted
	}
	data, err := sonic.Marshal(domain.TypingStartData{CardID: cardID})
	if err != nil {
		return err
	}
	return s.send(broadcast.ControlFrame{Type: string(typ), Data: data})
}

// Listen reads frames until the connection fails or ctx is done.
func (s *Socket) Listen(ctx context.Context, h Handlers) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.dispatch(msg, h)
	}
}

// Follow joins boardID and feeds what the socket reads into rec until ctx
// is done, the connection drops or the join is refused.
func (s *Socket) Follow(ctx context.Context, boardID string, rec *Reconciler) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if err := s.Join(boardID); err != nil {
		return err
	}
	err := s.Listen(ctx, Handlers{
		Event: func(ev domain.Event) { _ = rec.Receive(ctx, ev) },
		Joined: func(b string, present []domain.Presence) {
			if b == boardID {
				_ = rec.SetPresent(ctx, present)
			}
		},
		Failure: func(b, message string) {
			if b == boardID {
				cancel(fmt.Errorf("join %s: %s", b, message))
			}
		},
	})
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

func (s *Socket) dispatch(msg []byte, h Handlers) {
	var f broadcast.ControlFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return
	}
	switch f.Type {
	case broadcast.FrameJoined:
		var d broadcast.JoinedData
		if sonic.Unmarshal(f.Data, &d) == nil && h.Joined != nil {
			h.Joined(f.BoardID, d.Present)
		}
	case broadcast.FrameLeft:
		if h.Left != nil {
			h.Left(f.BoardID)
		}
	case broadcast.FrameError:
		var d broadcast.ErrorData
		_ = sonic.Unmarshal(f.Data, &d)
		if h.Failure != nil {
			h.Failure(f.BoardID, d.Message)
		}
	case broadcast.FrameConnected:
	default:
		ev, err := domain.DecodeEvent(msg)
		if err == nil && h.Event != nil {
			h.Event(ev)
		}
	}
}

func (s *Socket) send(f broadcast.ControlFrame) error {
	raw, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close sends a close frame and closes the connection.
func (s *Socket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
