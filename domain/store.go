package domain

import "context"

// BoardStore persists boards and their membership.
type BoardStore interface {
	// CreateBoard stores the board together with its initial lists.
	CreateBoard(ctx context.Context, b Board, lists []List) error
	GetBoard(ctx context.Context, id string) (Board, error)
	// ListBoards returns open boards the user owns or belongs to.
	ListBoards(ctx context.Context, userID string) ([]Board, error)
	SetMembers(ctx context.Context, boardID string, members []Member) error
}

// ListStore persists lists. Collection reads skip archived lists.
type ListStore interface {
	CreateList(ctx context.Context, l List) error
	GetList(ctx context.Context, id string) (List, error)
	// ListLists returns the board's lists ordered by position.
	ListLists(ctx context.Context, boardID string) ([]List, error)
	UpdateList(ctx context.Context, l List) error
	// MoveList atomically updates a list's position and returns the stored list.
	MoveList(ctx context.Context, id string, position float64) (List, error)
	// RespaceLists rewrites the positions of the given lists in one operation.
	RespaceLists(ctx context.Context, boardID string, positions map[string]float64) error
	// ArchiveList archives the list and every card it holds.
	ArchiveList(ctx context.Context, id string) (List, error)
	DeleteList(ctx context.Context, id string) error
}

// CardStore persists cards. Collection reads skip archived cards.
type CardStore interface {
	CreateCard(ctx context.Context, c Card) error
	GetCard(ctx context.Context, id string) (Card, error)
	// ListCards returns the list's cards ordered by position.
	ListCards(ctx context.Context, listID string) ([]Card, error)
	// ListBoardCards returns every card of the board ordered by list then position.
	ListBoardCards(ctx context.Context, boardID string) ([]Card, error)
	// CountCards counts the list's cards, archived ones included.
	CountCards(ctx context.Context, listID string) (int, error)
	UpdateCard(ctx context.Context, c Card) error
	// MoveCard changes a card's list and position in a single atomic write and
	// returns the stored card. Readers never see one change without the other.
	MoveCard(ctx context.Context, id, listID string, position float64) (Card, error)
	// RespaceCards rewrites the positions of the given cards in one operation.
	RespaceCards(ctx context.Context, listID string, positions map[string]float64) error
	DeleteCard(ctx context.Context, id string) error
}

// CommentStore persists card comments.
type CommentStore interface {
	CreateComment(ctx context.Context, c Comment) error
	// ListComments returns the card's comments, newest first.
	ListComments(ctx context.Context, cardID string) ([]Comment, error)
}

// Store is the persistence gateway used by the mutation service.
type Store interface {
	BoardStore
	ListStore
	CardStore
	CommentStore
}

// ActivityLog is the append-only, board-scoped activity sink.
type ActivityLog interface {
	AppendActivity(ctx context.Context, a Activity) error
	// ListActivities returns the board's activity records, newest first.
	ListActivities(ctx context.Context, boardID string, q ActivityQuery) ([]Activity, error)
}

// Publisher hands mutation events to the broadcaster.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type originKey struct{}

// WithOrigin returns a context carrying the id of the session that issued the request.
func WithOrigin(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, sessionID)
}

// OriginFrom returns the originating session id, if any.
func OriginFrom(ctx context.Context) string {
	s, _ := ctx.Value(originKey{}).(string)
	return s
}
