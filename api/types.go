package api

import (
	"context"

	"taskboard/domain"
)

// Service is the mutation service as seen by the REST edge.
type Service interface {
	CreateBoard(ctx context.Context, actor domain.Principal, in domain.BoardInput) (domain.BoardView, error)
	GetBoard(ctx context.Context, actor domain.Principal, boardID string) (domain.BoardView, error)
	ListBoards(ctx context.Context, actor domain.Principal) ([]domain.Board, error)
	AddMember(ctx context.Context, actor domain.Principal, boardID, userID string, role domain.Role) (domain.Board, error)
	ListActivities(ctx context.Context, actor domain.Principal, boardID string, q domain.ActivityQuery) ([]domain.Activity, error)
	SearchCards(ctx context.Context, actor domain.Principal, boardID string, q domain.CardSearch) ([]domain.Card, error)

	CreateList(ctx context.Context, actor domain.Principal, in domain.ListInput) (domain.List, error)
	UpdateList(ctx context.Context, actor domain.Principal, listID string, ch domain.ListChanges) (domain.List, error)
	MoveList(ctx context.Context, actor domain.Principal, listID string, req domain.MoveRequest) (domain.ListMove, error)
	ArchiveList(ctx context.Context, actor domain.Principal, listID string) (domain.List, error)
	DeleteList(ctx context.Context, actor domain.Principal, listID string) (bool, error)

	CreateCard(ctx context.Context, actor domain.Principal, in domain.CardInput) (domain.Card, error)
	UpdateCard(ctx context.Context, actor domain.Principal, cardID string, ch domain.CardChanges) (domain.Card, error)
	MoveCard(ctx context.Context, actor domain.Principal, cardID string, req domain.MoveRequest) (domain.CardMove, error)
	DeleteCard(ctx context.Context, actor domain.Principal, cardID string) (bool, error)

	AddComment(ctx context.Context, actor domain.Principal, in domain.CommentInput) (domain.Comment, error)
	ListComments(ctx context.Context, actor domain.Principal, cardID string) ([]domain.Comment, error)
	ListCardActivities(ctx context.Context, actor domain.Principal, cardID string, limit int) ([]domain.Activity, error)
}

// Authenticator resolves the principal behind an Authorization header.
type Authenticator interface {
	PrincipalFromAuthHeader(string) (domain.Principal, error)
}

// SessionHeader carries the websocket session id of the client issuing a
// request, so the resulting event is not echoed back to that session.
const SessionHeader = "X-Session-ID"

const maxBodySize = 64 << 10

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	Deleted bool   `json:"deleted"`
}

type memberRequest struct {
	UserID string      `json:"userId"`
	Role   domain.Role `json:"role"`
}

type activitiesResponse struct {
	Activities []domain.Activity `json:"activities"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
