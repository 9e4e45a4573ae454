package broadcast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
)

type tokenAuth struct{}

// PrincipalFromAuthHeader accepts "Bearer <userID>".
func (tokenAuth) PrincipalFromAuthHeader(h string) (domain.Principal, error) {
	id, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || id == "" {
		return domain.Principal{}, errors.New("missing token")
	}
	return domain.Principal{ID: id, Name: strings.ToUpper(id)}, nil
}

type boardACL map[string][]string

func (a boardACL) AuthorizeView(_ context.Context, userID, boardID string) error {
	users, ok := a[boardID]
	if !ok {
		return domain.NotFoundError("board", boardID)
	}
	for _, u := range users {
		if u == userID {
			return nil
		}
	}
	return domain.ErrForbidden
}

func newSocketServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	acl := boardACL{"b1": {"ann", "bob"}}
	e := echo.New()
	e.GET("/ws", Handler(hub, tokenAuth{}, acl, SessionConfig{}, logger))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (ControlFrame, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f ControlFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return f, msg
}

func send(t *testing.T, conn *websocket.Conn, f ControlFrame) {
	t.Helper()
	data, _ := sonic.Marshal(f)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func join(t *testing.T, conn *websocket.Conn, boardID string) ControlFrame {
	t.Helper()
	send(t, conn, ControlFrame{Type: FrameJoin, BoardID: boardID})
	f, _ := readFrame(t, conn)
	return f
}

func TestSessionHandshake(t *testing.T) {
	srv := newSocketServer(t, newTestHub())
	conn := dial(t, srv, "ann")
	f, _ := readFrame(t, conn)
	if f.Type != FrameConnected {
		t.Fatalf("expected connected frame first, got %s", f.Type)
	}
	var d ConnectedData
	if err := sonic.Unmarshal(f.Data, &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.UserID != "ann" || d.SessionID == "" {
		t.Fatalf("unexpected handshake: %+v", d)
	}
}

func TestSessionRejectsMissingToken(t *testing.T) {
	srv := newSocketServer(t, newTestHub())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestSessionJoinDenied(t *testing.T) {
	srv := newSocketServer(t, newTestHub())
	conn := dial(t, srv, "eve")
	readFrame(t, conn)

	f := join(t, conn, "b1")
	if f.Type != FrameError || f.BoardID != "b1" {
		t.Fatalf("expected error frame, got %+v", f)
	}
	var d ErrorData
	_ = sonic.Unmarshal(f.Data, &d)
	if d.Message != "access denied" {
		t.Fatalf("unexpected message %q", d.Message)
	}
	if f := join(t, conn, "missing"); f.Type != FrameError {
		t.Fatalf("expected error for unknown board, got %s", f.Type)
	}
}

func TestSessionReceivesBoardEvents(t *testing.T) {
	hub := newTestHub()
	srv := newSocketServer(t, hub)

	ann := dial(t, srv, "ann")
	readFrame(t, ann)
	if f := join(t, ann, "b1"); f.Type != FrameJoined {
		t.Fatalf("expected join ack, got %+v", f)
	}

	bob := dial(t, srv, "bob")
	f, _ := readFrame(t, bob)
	var hello ConnectedData
	_ = sonic.Unmarshal(f.Data, &hello)
	joined := join(t, bob, "b1")
	var present JoinedData
	_ = sonic.Unmarshal(joined.Data, &present)
	if len(present.Present) != 2 {
		t.Fatalf("expected two present sessions, got %+v", present.Present)
	}

	_, raw := readFrame(t, ann)
	ev, err := domain.DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != domain.UserJoinedBoard || ev.Data.(domain.UserJoinedData).SessionID != hello.SessionID {
		t.Fatalf("expected bob's presence, got %+v", ev)
	}

	// bob's own mutation is not echoed back to bob
	hub.Deliver(moved("b1", hello.SessionID))
	_, raw = readFrame(t, ann)
	if ev, _ := domain.DecodeEvent(raw); ev.Type != domain.CardMoved {
		t.Fatalf("expected card-moved, got %s", ev.Type)
	}

	send(t, bob, ControlFrame{Type: string(domain.TypingStarted), Data: []byte(`{"cardId":"c1"}`)})
	_, raw = readFrame(t, ann)
	if ev, _ := domain.DecodeEvent(raw); ev.Type != domain.TypingStarted || ev.ActorName != "BOB" {
		t.Fatalf("expected typing-start from bob, got %+v", ev)
	}

	_ = bob.Close()
	_, raw = readFrame(t, ann)
	if ev, _ := domain.DecodeEvent(raw); ev.Type != domain.UserLeftBoard {
		t.Fatalf("expected user-left on disconnect, got %s", ev.Type)
	}
}

func TestSessionUnknownFrame(t *testing.T) {
	srv := newSocketServer(t, newTestHub())
	conn := dial(t, srv, "ann")
	readFrame(t, conn)
	send(t, conn, ControlFrame{Type: "explode"})
	if f, _ := readFrame(t, conn); f.Type != FrameError {
		t.Fatalf("expected error frame, got %s", f.Type)
	}
}
