package domain

import (
	"context"
	"fmt"
)

// CommentInput carries a new comment.
type CommentInput struct {
	CardID string `json:"cardId"`
	Text   string `json:"text"`
}

// AddComment attaches a comment to a card.
func (s *Service) AddComment(ctx context.Context, actor Principal, in CommentInput) (Comment, error) {
	if err := requireID("cardId", in.CardID); err != nil {
		return Comment{}, err
	}
	text, err := requireText("text", in.Text, maxCommentText)
	if err != nil {
		return Comment{}, err
	}
	c, err := s.store.GetCard(ctx, in.CardID)
	if err != nil {
		return Comment{}, err
	}
	if _, err := s.writableBoard(ctx, actor, c.BoardID); err != nil {
		return Comment{}, err
	}
	cm := Comment{
		ID:         s.newID(),
		CardID:     c.ID,
		BoardID:    c.BoardID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Text:       text,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateComment(ctx, cm); err != nil {
		return Comment{}, err
	}
	s.record(ctx, actor, Activity{
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		CardID:      c.ID,
		CommentID:   cm.ID,
		Type:        ActivityCommentAdded,
		Description: fmt.Sprintf("commented on %q", c.Title),
	})
	s.publish(ctx, c.BoardID, actor, CommentAddedData{Comment: cm, CardID: c.ID})
	return cm, nil
}

// ListComments returns a card's comments, newest first.
func (s *Service) ListComments(ctx context.Context, actor Principal, cardID string) ([]Comment, error) {
	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if _, err := s.viewableBoard(ctx, actor, c.BoardID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, cardID)
}
