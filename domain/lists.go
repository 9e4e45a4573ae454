package domain

import (
	"context"
	"fmt"
)

// ListInput carries the fields of a new list. A nil Position appends.
type ListInput struct {
	BoardID  string   `json:"boardId"`
	Title    string   `json:"title"`
	Position *float64 `json:"position,omitempty"`
}

// ListMove is the outcome of a list move.
type ListMove struct {
	List       List               `json:"list"`
	Rebalanced map[string]float64 `json:"rebalanced,omitempty"`
}

// CreateList adds a list to the board, at the end unless a position is given.
func (s *Service) CreateList(ctx context.Context, actor Principal, in ListInput) (List, error) {
	if err := requireID("boardId", in.BoardID); err != nil {
		return List{}, err
	}
	title, err := requireText("title", in.Title, maxListTitle)
	if err != nil {
		return List{}, err
	}
	if in.Position != nil {
		if err := checkPosition(*in.Position); err != nil {
			return List{}, err
		}
	}
	if _, err := s.writableBoard(ctx, actor, in.BoardID); err != nil {
		return List{}, err
	}

	var pos float64
	if in.Position != nil {
		pos = *in.Position
	} else {
		siblings, err := s.store.ListLists(ctx, in.BoardID)
		if err != nil {
			return List{}, err
		}
		pos, _, err = s.placeList(ctx, in.BoardID, siblings, len(siblings))
		if err != nil {
			return List{}, err
		}
	}

	now := s.now()
	l := List{
		ID:        s.newID(),
		BoardID:   in.BoardID,
		Title:     title,
		Position:  pos,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateList(ctx, l); err != nil {
		return List{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     l.BoardID,
		ListID:      l.ID,
		Type:        ActivityListCreated,
		Description: fmt.Sprintf("added list %q", l.Title),
	})
	s.publish(ctx, l.BoardID, actor, ListCreatedData{List: l})
	return l, nil
}

// UpdateList changes a list's title and/or position.
func (s *Service) UpdateList(ctx context.Context, actor Principal, listID string, ch ListChanges) (List, error) {
	if ch.Title == nil && ch.Position == nil {
		return List{}, invalid("updates", "no fields to update")
	}
	if ch.Title != nil {
		t, err := requireText("title", *ch.Title, maxListTitle)
		if err != nil {
			return List{}, err
		}
		ch.Title = &t
	}
	if ch.Position != nil {
		if err := checkPosition(*ch.Position); err != nil {
			return List{}, err
		}
	}
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return List{}, err
	}
	if _, err := s.writableBoard(ctx, actor, l.BoardID); err != nil {
		return List{}, err
	}
	if ch.Title != nil {
		l.Title = *ch.Title
	}
	if ch.Position != nil {
		l.Position = *ch.Position
	}
	l.UpdatedAt = s.now()
	if err := s.store.UpdateList(ctx, l); err != nil {
		return List{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     l.BoardID,
		ListID:      l.ID,
		Type:        ActivityListUpdated,
		Description: fmt.Sprintf("updated list %q", l.Title),
	})
	s.publish(ctx, l.BoardID, actor, ListUpdatedData{ListID: l.ID, Updates: ch})
	return l, nil
}

// MoveList repositions a list within its board. An explicit position is
// persisted as given; an index is resolved against the current siblings.
func (s *Service) MoveList(ctx context.Context, actor Principal, listID string, req MoveRequest) (ListMove, error) {
	if err := req.validate(); err != nil {
		return ListMove{}, err
	}
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return ListMove{}, err
	}
	if _, err := s.writableBoard(ctx, actor, l.BoardID); err != nil {
		return ListMove{}, err
	}

	var (
		pos        float64
		rebalanced map[string]float64
	)
	if req.Position != nil {
		pos = *req.Position
	} else {
		all, err := s.store.ListLists(ctx, l.BoardID)
		if err != nil {
			return ListMove{}, err
		}
		siblings := make([]List, 0, len(all))
		for _, o := range all {
			if o.ID != l.ID {
				siblings = append(siblings, o)
			}
		}
		pos, rebalanced, err = s.placeList(ctx, l.BoardID, siblings, *req.Index)
		if err != nil {
			return ListMove{}, err
		}
	}

	moved, err := s.store.MoveList(ctx, listID, pos)
	if err != nil {
		return ListMove{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     moved.BoardID,
		ListID:      moved.ID,
		Type:        ActivityListMoved,
		Description: fmt.Sprintf("moved list %q", moved.Title),
	})
	s.publish(ctx, moved.BoardID, actor, ListMovedData{
		ListID:      moved.ID,
		NewPosition: moved.Position,
		Rebalanced:  rebalanced,
	})
	return ListMove{List: moved, Rebalanced: rebalanced}, nil
}

// placeList computes a position at index among siblings, respacing them
// first when the engine asks for it.
func (s *Service) placeList(ctx context.Context, boardID string, siblings []List, index int) (float64, map[string]float64, error) {
	pl := PlaceAt(positionsOf(siblings, func(l List) float64 { return l.Position }), index)
	if pl.Rebalanced == nil {
		return pl.Position, nil, nil
	}
	m := respaceMap(siblings, func(l List) string { return l.ID }, pl.Rebalanced)
	if err := s.store.RespaceLists(ctx, boardID, m); err != nil {
		return 0, nil, err
	}
	s.log.WithField("board", boardID).Infof("respaced %d lists", len(m))
	return pl.Position, m, nil
}

// ArchiveList soft-deletes a list together with its cards.
func (s *Service) ArchiveList(ctx context.Context, actor Principal, listID string) (List, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return List{}, err
	}
	if _, err := s.writableBoard(ctx, actor, l.BoardID); err != nil {
		return List{}, err
	}
	archived, err := s.store.ArchiveList(ctx, listID)
	if err != nil {
		return List{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     archived.BoardID,
		ListID:      archived.ID,
		Type:        ActivityListArchived,
		Description: fmt.Sprintf("archived list %q", archived.Title),
	})
	s.publish(ctx, archived.BoardID, actor, ListArchivedData{ListID: archived.ID})
	return archived, nil
}

// DeleteList removes an empty list outright and archives one that still
// holds cards, so their history survives. It reports whether the list was
// hard-deleted.
func (s *Service) DeleteList(ctx context.Context, actor Principal, listID string) (bool, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return false, err
	}
	if _, err := s.writableBoard(ctx, actor, l.BoardID); err != nil {
		return false, err
	}
	n, err := s.store.CountCards(ctx, listID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		_, err := s.ArchiveList(ctx, actor, listID)
		return false, err
	}
	if err := s.store.DeleteList(ctx, listID); err != nil {
		return false, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     l.BoardID,
		ListID:      l.ID,
		Type:        ActivityListDeleted,
		Description: fmt.Sprintf("deleted list %q", l.Title),
	})
	// Clients drop the list the same way for either outcome.
	s.publish(ctx, l.BoardID, actor, ListArchivedData{ListID: l.ID})
	return true, nil
}
