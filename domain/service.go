package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Service is the authorization and orchestration boundary for every board
// mutation. It persists through the Store, appends activity records and hands
// the outcome to the Publisher without waiting for delivery.
type Service struct {
	store      Store
	activities ActivityLog
	events     Publisher
	log        *log.Logger

	now   func() time.Time
	newID func() string
}

// NewService builds a Service. activities and events may be nil.
func NewService(store Store, activities ActivityLog, events Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		store:      store,
		activities: activities,
		events:     events,
		log:        logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// MoveRequest targets either an explicit position or an index among the
// destination's siblings. ListID is only meaningful for cards; empty keeps the
// current list.
type MoveRequest struct {
	ListID   string   `json:"listId,omitempty"`
	Position *float64 `json:"position,omitempty"`
	Index    *int     `json:"index,omitempty"`
}

func (r MoveRequest) validate() error {
	switch {
	case r.Position != nil && r.Index != nil:
		return invalid("position", "position and index are mutually exclusive")
	case r.Position != nil:
		return checkPosition(*r.Position)
	case r.Index != nil:
		if *r.Index < 0 {
			return invalid("index", "must not be negative")
		}
		return nil
	}
	return invalid("position", "position or index is required")
}

// writableBoard loads the board and checks write access.
func (s *Service) writableBoard(ctx context.Context, actor Principal, boardID string) (Board, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return Board{}, err
	}
	if !CanWrite(b, actor.ID) {
		return Board{}, ErrForbidden
	}
	return b, nil
}

func (s *Service) viewableBoard(ctx context.Context, actor Principal, boardID string) (Board, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return Board{}, err
	}
	if !CanView(b, actor.ID) {
		return Board{}, ErrForbidden
	}
	return b, nil
}

// AuthorizeView is the join gate for board channels.
func (s *Service) AuthorizeView(ctx context.Context, userID, boardID string) error {
	_, err := s.viewableBoard(ctx, Principal{ID: userID}, boardID)
	return err
}

// record appends an activity entry. The mutation has already committed, so a
// failure is logged rather than returned.
func (s *Service) record(ctx context.Context, actor Principal, a Activity) {
	if s.activities == nil {
		return
	}
	a.ID = s.newID()
	a.UserID = actor.ID
	a.UserName = actor.Name
	a.CreatedAt = s.now()
	if err := s.activities.AppendActivity(ctx, a); err != nil {
		s.log.WithError(err).WithFields(log.Fields{
			"board": a.BoardID,
			"type":  a.Type,
		}).Error("append activity failed")
	}
}

// publish hands the event to the broadcaster. Delivery problems never fail the mutation.
func (s *Service) publish(ctx context.Context, boardID string, actor Principal, data EventData) {
	if s.events == nil {
		return
	}
	ev := NewEvent(boardID, actor, OriginFrom(ctx), data)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(log.Fields{
			"board": boardID,
			"event": ev.Type,
		}).Warn("publish event failed")
	}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func positionsOf[T any](items []T, pos func(T) float64) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = pos(it)
	}
	return out
}

func respaceMap[T any](items []T, id func(T) string, positions []float64) map[string]float64 {
	m := make(map[string]float64, len(items))
	for i, it := range items {
		m[id(it)] = positions[i]
	}
	return m
}
