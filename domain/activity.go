package domain

import (
	"strings"
	"time"
)

// ActivityType classifies an activity record.
type ActivityType string

const (
	ActivityCardCreated  ActivityType = "card_created"
	ActivityCardUpdated  ActivityType = "card_updated"
	ActivityCardMoved    ActivityType = "card_moved"
	ActivityCardDeleted  ActivityType = "card_deleted"
	ActivityCommentAdded ActivityType = "comment_added"
	ActivityListCreated  ActivityType = "list_created"
	ActivityListUpdated  ActivityType = "list_updated"
	ActivityListMoved    ActivityType = "list_moved"
	ActivityListArchived ActivityType = "list_archived"
	ActivityListDeleted  ActivityType = "list_deleted"
	ActivityBoardCreated ActivityType = "board_created"
	ActivityMemberAdded  ActivityType = "member_added"
)

const (
	DefaultActivityLimit     = 50
	MaxActivityLimit         = 200
	DefaultCardActivityLimit = 20
)

// Activity is one entry of a board's append-only activity log.
type Activity struct {
	ID          string       `json:"id"`
	BoardID     string       `json:"boardId"`
	UserID      string       `json:"userId"`
	UserName    string       `json:"userName,omitempty"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	ListID      string       `json:"listId,omitempty"`
	CardID      string       `json:"cardId,omitempty"`
	CommentID   string       `json:"commentId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ActivityQuery selects a page of activity records. Empty Types means all;
// a non-empty CardID keeps only records about that card.
type ActivityQuery struct {
	Types  []ActivityType
	CardID string
	Limit  int
	Page   int
}

// Offset is the number of records skipped before the page.
func (q ActivityQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Matches reports whether a passes the type and card filters.
func (q ActivityQuery) Matches(a Activity) bool {
	if q.CardID != "" && a.CardID != q.CardID {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, want := range q.Types {
		if want == a.Type {
			return true
		}
	}
	return false
}

// NewActivityQuery builds a query from a named filter (all, comments, moves,
// cards, lists) and paging values, applying defaults and bounds.
func NewActivityQuery(filter string, limit, page int) (ActivityQuery, error) {
	q := ActivityQuery{Limit: limit, Page: page}
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "all":
	case "comments":
		q.Types = []ActivityType{ActivityCommentAdded}
	case "moves":
		q.Types = []ActivityType{ActivityCardMoved, ActivityListMoved}
	case "cards":
		q.Types = []ActivityType{ActivityCardCreated, ActivityCardUpdated, ActivityCardDeleted}
	case "lists":
		q.Types = []ActivityType{ActivityListCreated, ActivityListUpdated, ActivityListArchived, ActivityListDeleted}
	default:
		return q, invalid("filter", "unknown activity filter")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultActivityLimit
	}
	if q.Limit > MaxActivityLimit {
		q.Limit = MaxActivityLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return q, nil
}
