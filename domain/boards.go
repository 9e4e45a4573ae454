package domain

import (
	"context"
	"fmt"
	"sort"
)

// DefaultListTitles are created with every new board.
var DefaultListTitles = []string{"To Do", "In Progress", "Done"}

// BoardInput carries the fields of a new board.
type BoardInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`
	Background  string     `json:"background,omitempty"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
}

// CreateBoard stores a board owned by actor with the default lists.
func (s *Service) CreateBoard(ctx context.Context, actor Principal, in BoardInput) (BoardView, error) {
	if actor.ID == "" {
		return BoardView{}, ErrForbidden
	}
	title, err := requireText("title", in.Title, maxBoardTitle)
	if err != nil {
		return BoardView{}, err
	}
	desc, err := optionalText("description", in.Description, maxBoardDescription)
	if err != nil {
		return BoardView{}, err
	}
	vis := in.Visibility
	if vis == "" {
		vis = VisibilityPrivate
	}
	if !vis.Valid() {
		return BoardView{}, invalid("visibility", "must be private, workspace or public")
	}

	now := s.now()
	b := Board{
		ID:          s.newID(),
		WorkspaceID: in.WorkspaceID,
		Title:       title,
		Description: desc,
		OwnerID:     actor.ID,
		Visibility:  vis,
		Background:  in.Background,
		Members:     []Member{{UserID: actor.ID, Role: RoleOwner, JoinedAt: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	spread := Spread(len(DefaultListTitles))
	lists := make([]List, len(DefaultListTitles))
	view := BoardView{Board: b, Lists: make([]ListView, len(lists))}
	for i, t := range DefaultListTitles {
		lists[i] = List{
			ID:        s.newID(),
			BoardID:   b.ID,
			Title:     t,
			Position:  spread[i],
			CreatedAt: now,
			UpdatedAt: now,
		}
		view.Lists[i] = ListView{List: lists[i], Cards: []Card{}}
	}
	if err := s.store.CreateBoard(ctx, b, lists); err != nil {
		return BoardView{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     b.ID,
		Type:        ActivityBoardCreated,
		Description: fmt.Sprintf("created board %q", b.Title),
	})
	return view, nil
}

// GetBoard returns the canonical full state of a board: open lists by
// position, each with its open cards by position.
func (s *Service) GetBoard(ctx context.Context, actor Principal, boardID string) (BoardView, error) {
	b, err := s.viewableBoard(ctx, actor, boardID)
	if err != nil {
		return BoardView{}, err
	}
	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return BoardView{}, err
	}
	cards, err := s.store.ListBoardCards(ctx, boardID)
	if err != nil {
		return BoardView{}, err
	}
	return assembleView(b, lists, cards), nil
}

func assembleView(b Board, lists []List, cards []Card) BoardView {
	byList := make(map[string][]Card, len(lists))
	for _, c := range cards {
		byList[c.ListID] = append(byList[c.ListID], c)
	}
	view := BoardView{Board: b, Lists: make([]ListView, 0, len(lists))}
	for _, l := range lists {
		cs := byList[l.ID]
		if cs == nil {
			cs = []Card{}
		}
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Position < cs[j].Position })
		view.Lists = append(view.Lists, ListView{List: l, Cards: cs})
	}
	sort.SliceStable(view.Lists, func(i, j int) bool { return view.Lists[i].Position < view.Lists[j].Position })
	return view
}

// ListBoards returns the open boards actor owns or belongs to.
func (s *Service) ListBoards(ctx context.Context, actor Principal) ([]Board, error) {
	if actor.ID == "" {
		return nil, ErrForbidden
	}
	return s.store.ListBoards(ctx, actor.ID)
}

// AddMember adds userID to the board or changes its role. The owner's role is fixed.
func (s *Service) AddMember(ctx context.Context, actor Principal, boardID, userID string, role Role) (Board, error) {
	if err := requireID("userId", userID); err != nil {
		return Board{}, err
	}
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() || role == RoleOwner {
		return Board{}, invalid("role", "must be admin, member or viewer")
	}
	b, err := s.writableBoard(ctx, actor, boardID)
	if err != nil {
		return Board{}, err
	}
	if userID == b.OwnerID {
		return Board{}, invalid("userId", "the owner's role cannot change")
	}
	members := make([]Member, 0, len(b.Members)+1)
	found := false
	for _, m := range b.Members {
		if m.UserID == userID {
			m.Role = role
			found = true
		}
		members = append(members, m)
	}
	if !found {
		members = append(members, Member{UserID: userID, Role: role, JoinedAt: s.now()})
	}
	if err := s.store.SetMembers(ctx, boardID, members); err != nil {
		return Board{}, err
	}
	b.Members = members
	s.record(ctx, actor, Activity{
		BoardID:     boardID,
		Type:        ActivityMemberAdded,
		Description: fmt.Sprintf("added %s as %s", userID, role),
	})
	return b, nil
}

// ListActivities returns a page of the board's activity log, newest first.
func (s *Service) ListActivities(ctx context.Context, actor Principal, boardID string, q ActivityQuery) ([]Activity, error) {
	if _, err := s.viewableBoard(ctx, actor, boardID); err != nil {
		return nil, err
	}
	if s.activities == nil {
		return []Activity{}, nil
	}
	return s.activities.ListActivities(ctx, boardID, q)
}
