package broadcast

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Subscriber is one connected session as seen by the hub.
type Subscriber interface {
	Presence() domain.Presence
	// Deliver queues an encoded frame without blocking. It reports false
	// when the frame was dropped.
	Deliver(frame []byte) bool
}

// Hub is the in-process registry of board channels. A session is subscribed
// to at most one board at a time.
type Hub struct {
	mu     sync.RWMutex
	boards map[string]map[string]Subscriber
	joined map[string]string

	// route carries presence and typing events; nil delivers them locally.
	route domain.Publisher
	log   *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		boards: make(map[string]map[string]Subscriber),
		joined: make(map[string]string),
		log:    logger,
	}
}

// Route sends hub-originated events (presence, typing) through p so other
// instances see them too. p must eventually call Deliver on this hub.
func (h *Hub) Route(p domain.Publisher) {
	h.mu.Lock()
	h.route = p
	h.mu.Unlock()
}

// Join subscribes s to boardID, leaving any board it was on before, and
// announces it to the board's other subscribers.
func (h *Hub) Join(boardID string, s Subscriber) {
	p := s.Presence()
	h.Leave(p.SessionID)

	h.mu.Lock()
	subs, ok := h.boards[boardID]
	if !ok {
		subs = make(map[string]Subscriber)
		h.boards[boardID] = subs
	}
	subs[p.SessionID] = s
	h.joined[p.SessionID] = boardID
	h.mu.Unlock()

	h.emit(domain.NewEvent(boardID, domain.Principal{ID: p.UserID, Name: p.UserName}, p.SessionID, domain.UserJoinedData{Presence: p}))
}

// Leave unsubscribes the session from its current board and announces it.
// It returns the board left, if any.
func (h *Hub) Leave(sessionID string) (string, bool) {
	h.mu.Lock()
	boardID, ok := h.joined[sessionID]
	if !ok {
		h.mu.Unlock()
		return "", false
	}
	delete(h.joined, sessionID)
	subs := h.boards[boardID]
	s := subs[sessionID]
	delete(subs, sessionID)
	if len(subs) == 0 {
		delete(h.boards, boardID)
	}
	h.mu.Unlock()

	if s != nil {
		p := s.Presence()
		h.emit(domain.NewEvent(boardID, domain.Principal{ID: p.UserID, Name: p.UserName}, sessionID, domain.UserLeftData{Presence: p}))
	}
	return boardID, true
}

// BoardOf returns the board the session is subscribed to.
func (h *Hub) BoardOf(sessionID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.joined[sessionID]
	return b, ok
}

// Present lists the sessions currently subscribed to boardID.
func (h *Hub) Present(boardID string) []domain.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Presence, 0, len(h.boards[boardID]))
	for _, s := range h.boards[boardID] {
		out = append(out, s.Presence())
	}
	return out
}

// Typing relays a typing indicator from the session to its board.
func (h *Hub) Typing(sessionID, cardID string, started bool) bool {
	h.mu.RLock()
	boardID, ok := h.joined[sessionID]
	var s Subscriber
	if ok {
		s = h.boards[boardID][sessionID]
	}
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	p := s.Presence()
	var data domain.EventData = domain.TypingStopData{CardID: cardID}
	if started {
		data = domain.TypingStartData{CardID: cardID}
	}
	h.emit(domain.NewEvent(boardID, domain.Principal{ID: p.UserID, Name: p.UserName}, sessionID, data))
	return true
}

// Publish delivers ev to the local subscribers of its board.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	_, err := h.deliver(ev)
	return err
}

// Deliver fans ev out to every local subscriber of ev.BoardID except the
// originating session and returns how many frames were queued.
func (h *Hub) Deliver(ev domain.Event) int {
	n, err := h.deliver(ev)
	if err != nil {
		h.log.WithError(err).WithFields(log.Fields{"board": ev.BoardID, "event": ev.Type}).Error("encode event failed")
	}
	return n
}

func (h *Hub) deliver(ev domain.Event) (int, error) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.boards[ev.BoardID]))
	for id, s := range h.boards[ev.BoardID] {
		if id == ev.Origin {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0, nil
	}

	frame, err := sonic.Marshal(ev)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, s := range targets {
		if s.Deliver(frame) {
			sent++
			continue
		}
		h.log.WithFields(log.Fields{
			"board":   ev.BoardID,
			"event":   ev.Type,
			"session": s.Presence().SessionID,
		}).Warn("subscriber queue full, event dropped")
	}
	return sent, nil
}

// Close drops every subscription without announcing departures.
func (h *Hub) Close() {
	h.mu.Lock()
	h.boards = make(map[string]map[string]Subscriber)
	h.joined = make(map[string]string)
	h.mu.Unlock()
}

func (h *Hub) emit(ev domain.Event) {
	h.mu.RLock()
	route := h.route
	h.mu.RUnlock()
	if route == nil {
		h.Deliver(ev)
		return
	}
	if err := route.Publish(context.Background(), ev); err != nil {
		h.log.WithError(err).WithFields(log.Fields{"board": ev.BoardID, "event": ev.Type}).Warn("route hub event failed")
	}
}
