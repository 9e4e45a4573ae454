package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// EventType names a broadcast event.
type EventType string

const (
	CardMoved       EventType = "card-moved"
	CardCreated     EventType = "card-created"
	CardUpdated     EventType = "card-updated"
	CardDeleted     EventType = "card-deleted"
	ListMoved       EventType = "list-moved"
	ListCreated     EventType = "list-created"
	ListUpdated     EventType = "list-updated"
	ListArchived    EventType = "list-archived"
	CommentAdded    EventType = "comment-added"
	UserJoinedBoard EventType = "user-joined-board"
	UserLeftBoard   EventType = "user-left-board"
	TypingStarted   EventType = "typing-start"
	TypingStopped   EventType = "typing-stop"
)

// EventData is implemented by every event payload variant.
type EventData interface {
	EventType() EventType
}

// Event is one mutation outcome (or presence change) scoped to a board.
// Origin is the session that caused it; that session never receives it back.
type Event struct {
	Type      EventType
	BoardID   string
	ActorID   string
	ActorName string
	Origin    string
	Data      EventData
}

// NewEvent builds an event whose type is taken from data.
func NewEvent(boardID string, actor Principal, origin string, data EventData) Event {
	return Event{
		Type:      data.EventType(),
		BoardID:   boardID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Origin:    origin,
		Data:      data,
	}
}

type CardMovedData struct {
	CardID      string  `json:"cardId"`
	FromListID  string  `json:"fromListId"`
	ToListID    string  `json:"toListId"`
	NewPosition float64 `json:"newPosition"`
	// Rebalanced holds respaced positions of the destination list's cards.
	Rebalanced map[string]float64 `json:"rebalanced,omitempty"`
}

type CardCreatedData struct {
	Card Card `json:"card"`
}

// CardChanges is a partial card update; nil fields are unchanged.
type CardChanges struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
	Assignees   *[]string  `json:"assignees,omitempty"`
}

func (ch CardChanges) empty() bool {
	return ch.Title == nil && ch.Description == nil && ch.DueDate == nil &&
		ch.Completed == nil && ch.Labels == nil && ch.Assignees == nil
}

type CardUpdatedData struct {
	CardID  string      `json:"cardId"`
	ListID  string      `json:"listId"`
	Updates CardChanges `json:"updates"`
	// CompletedAt is the server stamp after the update; nil when not completed.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type CardDeletedData struct {
	CardID string `json:"cardId"`
	ListID string `json:"listId"`
}

type ListMovedData struct {
	ListID      string             `json:"listId"`
	NewPosition float64            `json:"newPosition"`
	Rebalanced  map[string]float64 `json:"rebalanced,omitempty"`
}

type ListCreatedData struct {
	List List `json:"list"`
}

// ListChanges is a partial list update; nil fields are unchanged.
type ListChanges struct {
	Title    *string  `json:"title,omitempty"`
	Position *float64 `json:"position,omitempty"`
}

type ListUpdatedData struct {
	ListID  string      `json:"listId"`
	Updates ListChanges `json:"updates"`
}

type ListArchivedData struct {
	ListID string `json:"listId"`
}

type CommentAddedData struct {
	Comment Comment `json:"comment"`
	CardID  string  `json:"cardId"`
}

// Presence identifies a session on a board channel.
type Presence struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	SessionID string `json:"sessionId"`
}

type UserJoinedData struct{ Presence }

type UserLeftData struct{ Presence }

type TypingStartData struct {
	CardID string `json:"cardId"`
}

type TypingStopData struct {
	CardID string `json:"cardId"`
}

func (CardMovedData) EventType() EventType    { return CardMoved }
func (CardCreatedData) EventType() EventType  { return CardCreated }
func (CardUpdatedData) EventType() EventType  { return CardUpdated }
func (CardDeletedData) EventType() EventType  { return CardDeleted }
func (ListMovedData) EventType() EventType    { return ListMoved }
func (ListCreatedData) EventType() EventType  { return ListCreated }
func (ListUpdatedData) EventType() EventType  { return ListUpdated }
func (ListArchivedData) EventType() EventType { return ListArchived }
func (CommentAddedData) EventType() EventType { return CommentAdded }
func (UserJoinedData) EventType() EventType   { return UserJoinedBoard }
func (UserLeftData) EventType() EventType     { return UserLeftBoard }
func (TypingStartData) EventType() EventType  { return TypingStarted }
func (TypingStopData) EventType() EventType   { return TypingStopped }

// ErrUnknownEvent is returned when decoding a frame whose type has no payload variant.
var ErrUnknownEvent = fmt.Errorf("unknown event type: %w", ErrValidation)

type wireEvent struct {
	Type      EventType       `json:"type"`
	BoardID   string          `json:"boardId"`
	ActorID   string          `json:"actorId,omitempty"`
	ActorName string          `json:"actorName,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the event as a flat envelope with a typed data payload.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:      e.Type,
		BoardID:   e.BoardID,
		ActorID:   e.ActorID,
		ActorName: e.ActorName,
		Origin:    e.Origin,
	}
	if e.Data != nil {
		if w.Type == "" {
			w.Type = e.Data.EventType()
		}
		data, err := sonic.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		w.Data = data
	}
	return sonic.Marshal(w)
}

// UnmarshalJSON decodes the envelope and the payload variant selected by its type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := sonic.Unmarshal(b, &w); err != nil {
		return err
	}
	data, err := decodeEventData(w.Type, w.Data)
	if err != nil {
		return err
	}
	*e = Event{
		Type:      w.Type,
		BoardID:   w.BoardID,
		ActorID:   w.ActorID,
		ActorName: w.ActorName,
		Origin:    w.Origin,
		Data:      data,
	}
	return nil
}

// DecodeEvent parses a wire frame into an Event.
func DecodeEvent(b []byte) (Event, error) {
	var ev Event
	err := ev.UnmarshalJSON(b)
	return ev, err
}

func decodeEventData(t EventType, raw json.RawMessage) (EventData, error) {
	var data EventData
	switch t {
	case CardMoved:
		data = &CardMovedData{}
	case CardCreated:
		data = &CardCreatedData{}
	case CardUpdated:
		data = &CardUpdatedData{}
	case CardDeleted:
		data = &CardDeletedData{}
	case ListMoved:
		data = &ListMovedData{}
	case ListCreated:
		data = &ListCreatedData{}
	case ListUpdated:
		data = &ListUpdatedData{}
	case ListArchived:
		data = &ListArchivedData{}
	case CommentAdded:
		data = &CommentAddedData{}
	case UserJoinedBoard:
		data = &UserJoinedData{}
	case UserLeftBoard:
		data = &UserLeftData{}
	case TypingStarted:
		data = &TypingStartData{}
	case TypingStopped:
		data = &TypingStopData{}
	default:
		return nil, fmt.Errorf("%q: %w", t, ErrUnknownEvent)
	}
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return deref(data), nil
}

// deref returns payloads by value so consumers can type-switch on value types.
func deref(d EventData) EventData {
	switch v := d.(type) {
	case *CardMovedData:
		return *v
	case *CardCreatedData:
		return *v
	case *CardUpdatedData:
		return *v
	case *CardDeletedData:
		return *v
	case *ListMovedData:
		return *v
	case *ListCreatedData:
		return *v
	case *ListUpdatedData:
		return *v
	case *ListArchivedData:
		return *v
	case *CommentAddedData:
		return *v
	case *UserJoinedData:
		return *v
	case *UserLeftData:
		return *v
	case *TypingStartData:
		return *v
	case *TypingStopData:
		return *v
	}
	return d
}
