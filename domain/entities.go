package domain

import "time"

// Role is a board membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Visibility controls who may read a board.
type Visibility string

const (
	VisibilityPrivate   Visibility = "private"
	VisibilityWorkspace Visibility = "workspace"
	VisibilityPublic    Visibility = "public"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityWorkspace, VisibilityPublic:
		return true
	}
	return false
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Member is one entry of a board's membership set.
type Member struct {
	UserID   string    `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Board owns an ordered sequence of lists and a membership set.
type Board struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	OwnerID     string     `json:"ownerId"`
	Visibility  Visibility `json:"visibility"`
	Background  string     `json:"background,omitempty"`
	Members     []Member   `json:"members"`
	Closed      bool       `json:"closed,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// RoleOf returns the membership role of userID, if any.
func (b Board) RoleOf(userID string) (Role, bool) {
	for _, m := range b.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// List is an ordered collection of cards inside a board.
type List struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Position  float64   `json:"position"`
	Archived  bool      `json:"archived,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Card belongs to exactly one list and, denormalized, one board.
type Card struct {
	ID          string     `json:"id"`
	ListID      string     `json:"listId"`
	BoardID     string     `json:"boardId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Position    float64    `json:"position"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   bool       `json:"completed,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Assignees   []string   `json:"assignees,omitempty"`
	CreatorID   string     `json:"creatorId"`
	Archived    bool       `json:"archived,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Comment is a note attached to a card.
type Comment struct {
	ID         string    `json:"id"`
	CardID     string    `json:"cardId"`
	BoardID    string    `json:"boardId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListView is a list together with its cards ordered by position.
type ListView struct {
	List
	Cards []Card `json:"cards"`
}

// BoardView is the canonical full state of a board, used for full re-fetches.
type BoardView struct {
	Board
	Lists []ListView `json:"lists"`
}
