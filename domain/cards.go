package domain

import (
	"context"
	"fmt"
	"time"
)

// CardInput carries the fields of a new card.
type CardInput struct {
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Assignees   []string   `json:"assignees,omitempty"`
}

// CardMove is the outcome of a card move.
type CardMove struct {
	Card       Card               `json:"card"`
	FromListID string             `json:"fromListId"`
	Rebalanced map[string]float64 `json:"rebalanced,omitempty"`
}

// CreateCard appends a card to the end of a list.
func (s *Service) CreateCard(ctx context.Context, actor Principal, in CardInput) (Card, error) {
	if err := requireID("listId", in.ListID); err != nil {
		return Card{}, err
	}
	title, err := requireText("title", in.Title, maxCardTitle)
	if err != nil {
		return Card{}, err
	}
	desc, err := optionalText("description", in.Description, maxCardDescription)
	if err != nil {
		return Card{}, err
	}
	labels, err := tagList("labels", in.Labels)
	if err != nil {
		return Card{}, err
	}
	assignees, err := tagList("assignees", in.Assignees)
	if err != nil {
		return Card{}, err
	}
	l, err := s.store.GetList(ctx, in.ListID)
	if err != nil {
		return Card{}, err
	}
	if _, err := s.writableBoard(ctx, actor, l.BoardID); err != nil {
		return Card{}, err
	}
	siblings, err := s.store.ListCards(ctx, l.ID)
	if err != nil {
		return Card{}, err
	}
	pos, _, err := s.placeCard(ctx, l.ID, siblings, len(siblings))
	if err != nil {
		return Card{}, err
	}

	now := s.now()
	c := Card{
		ID:          s.newID(),
		ListID:      l.ID,
		BoardID:     l.BoardID,
		Title:       title,
		Description: desc,
		Position:    pos,
		DueDate:     in.DueDate,
		Labels:      labels,
		Assignees:   assignees,
		CreatorID:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCard(ctx, c); err != nil {
		return Card{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		CardID:      c.ID,
		Type:        ActivityCardCreated,
		Description: fmt.Sprintf("added card %q to %q", c.Title, l.Title),
	})
	s.publish(ctx, c.BoardID, actor, CardCreatedData{Card: c})
	return c, nil
}

// UpdateCard applies a partial update. Toggling completion stamps or clears CompletedAt.
func (s *Service) UpdateCard(ctx context.Context, actor Principal, cardID string, ch CardChanges) (Card, error) {
	if ch.empty() {
		return Card{}, invalid("updates", "no fields to update")
	}
	if ch.Title != nil {
		t, err := requireText("title", *ch.Title, maxCardTitle)
		if err != nil {
			return Card{}, err
		}
		ch.Title = &t
	}
	if ch.Description != nil {
		d, err := optionalText("description", *ch.Description, maxCardDescription)
		if err != nil {
			return Card{}, err
		}
		ch.Description = &d
	}
	if ch.Labels != nil {
		v, err := tagList("labels", *ch.Labels)
		if err != nil {
			return Card{}, err
		}
		ch.Labels = &v
	}
	if ch.Assignees != nil {
		v, err := tagList("assignees", *ch.Assignees)
		if err != nil {
			return Card{}, err
		}
		ch.Assignees = &v
	}
	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	if _, err := s.writableBoard(ctx, actor, c.BoardID); err != nil {
		return Card{}, err
	}

	now := s.now()
	if ch.Title != nil {
		c.Title = *ch.Title
	}
	if ch.Description != nil {
		c.Description = *ch.Description
	}
	if ch.DueDate != nil {
		due := *ch.DueDate
		c.DueDate = &due
	}
	if ch.Labels != nil {
		c.Labels = *ch.Labels
	}
	if ch.Assignees != nil {
		c.Assignees = *ch.Assignees
	}
	if ch.Completed != nil && *ch.Completed != c.Completed {
		c.Completed = *ch.Completed
		if c.Completed {
			c.CompletedAt = &now
		} else {
			c.CompletedAt = nil
		}
	}
	c.UpdatedAt = now
	if err := s.store.UpdateCard(ctx, c); err != nil {
		return Card{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		CardID:      c.ID,
		Type:        ActivityCardUpdated,
		Description: fmt.Sprintf("updated card %q", c.Title),
	})
	s.publish(ctx, c.BoardID, actor, CardUpdatedData{CardID: c.ID, ListID: c.ListID, Updates: ch, CompletedAt: c.CompletedAt})
	return c, nil
}

// MoveCard moves a card within its list or into another list of the same
// board. The list change and the new position are persisted in one write.
func (s *Service) MoveCard(ctx context.Context, actor Principal, cardID string, req MoveRequest) (CardMove, error) {
	if err := req.validate(); err != nil {
		return CardMove{}, err
	}
	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return CardMove{}, err
	}
	if _, err := s.writableBoard(ctx, actor, c.BoardID); err != nil {
		return CardMove{}, err
	}

	from := c.ListID
	fromList, err := s.store.GetList(ctx, from)
	if err != nil && !IsNotFound(err) {
		return CardMove{}, err
	}
	to := fromList
	if req.ListID != "" && req.ListID != from {
		to, err = s.store.GetList(ctx, req.ListID)
		if err != nil {
			return CardMove{}, err
		}
		if to.BoardID != c.BoardID {
			return CardMove{}, invalid("listId", "destination list belongs to another board")
		}
		if to.Archived {
			return CardMove{}, invalid("listId", "destination list is archived")
		}
	}
	if to.ID == "" {
		to.ID = from
	}

	var (
		pos        float64
		rebalanced map[string]float64
	)
	if req.Position != nil {
		pos = *req.Position
	} else {
		all, err := s.store.ListCards(ctx, to.ID)
		if err != nil {
			return CardMove{}, err
		}
		siblings := make([]Card, 0, len(all))
		for _, o := range all {
			if o.ID != c.ID {
				siblings = append(siblings, o)
			}
		}
		pos, rebalanced, err = s.placeCard(ctx, to.ID, siblings, *req.Index)
		if err != nil {
			return CardMove{}, err
		}
	}

	moved, err := s.store.MoveCard(ctx, cardID, to.ID, pos)
	if err != nil {
		return CardMove{}, err
	}
	if from != moved.ListID {
		s.record(ctx, actor, Activity{
			BoardID:     moved.BoardID,
			ListID:      moved.ListID,
			CardID:      moved.ID,
			Type:        ActivityCardMoved,
			Description: fmt.Sprintf("moved card %q from %q to %q", moved.Title, fromList.Title, to.Title),
		})
	}
	s.publish(ctx, moved.BoardID, actor, CardMovedData{
		CardID:      moved.ID,
		FromListID:  from,
		ToListID:    moved.ListID,
		NewPosition: moved.Position,
		Rebalanced:  rebalanced,
	})
	return CardMove{Card: moved, FromListID: from, Rebalanced: rebalanced}, nil
}

func (s *Service) placeCard(ctx context.Context, listID string, siblings []Card, index int) (float64, map[string]float64, error) {
	pl := PlaceAt(positionsOf(siblings, func(c Card) float64 { return c.Position }), index)
	if pl.Rebalanced == nil {
		return pl.Position, nil, nil
	}
	m := respaceMap(siblings, func(c Card) string { return c.ID }, pl.Rebalanced)
	if err := s.store.RespaceCards(ctx, listID, m); err != nil {
		return 0, nil, err
	}
	s.log.WithField("list", listID).Infof("respaced %d cards", len(m))
	return pl.Position, m, nil
}

// DeleteCard removes a card. Deleting a card that no longer exists is not an
// error; the returned flag is false in that case.
func (s *Service) DeleteCard(ctx context.Context, actor Principal, cardID string) (bool, error) {
	c, err := s.store.GetCard(ctx, cardID)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := s.writableBoard(ctx, actor, c.BoardID); err != nil {
		return false, err
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		CardID:      c.ID,
		Type:        ActivityCardDeleted,
		Description: fmt.Sprintf("deleted card %q", c.Title),
	})
	s.publish(ctx, c.BoardID, actor, CardDeletedData{CardID: c.ID, ListID: c.ListID})
	return true, nil
}
