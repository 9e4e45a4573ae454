package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// DueFilter narrows a search by due date.
type DueFilter string

const (
	DueAny     DueFilter = ""
	DueOverdue DueFilter = "overdue"
	DueToday   DueFilter = "today"
	DueWeek    DueFilter = "week"
)

const maxSearchResults = 50

// CardSearch filters a board's live cards. Text matches title or
// description case-insensitively; Labels and Assignees match when the card
// carries any of the given values.
type CardSearch struct {
	Text      string
	Labels    []string
	Assignees []string
	Due       DueFilter
}

func (q CardSearch) validate() error {
	switch q.Due {
	case DueAny, DueOverdue, DueToday, DueWeek:
		return nil
	}
	return invalid("dueDate", "must be overdue, today or week")
}

// SearchCards returns at most 50 matching cards of a board, ordered by list
// and position.
func (s *Service) SearchCards(ctx context.Context, actor Principal, boardID string, q CardSearch) ([]Card, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if _, err := s.viewableBoard(ctx, actor, boardID); err != nil {
		return nil, err
	}
	cards, err := s.store.ListBoardCards(ctx, boardID)
	if err != nil {
		return nil, err
	}
	m := newCardMatcher(q, s.now())
	out := []Card{}
	for _, c := range cards {
		if m.match(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ListID != out[j].ListID {
			return out[i].ListID < out[j].ListID
		}
		return out[i].Position < out[j].Position
	})
	if len(out) > maxSearchResults {
		out = out[:maxSearchResults]
	}
	return out, nil
}

type cardMatcher struct {
	text      string
	labels    []string
	assignees []string
	due       DueFilter
	dayStart  time.Time
	dayEnd    time.Time
	weekEnd   time.Time
}

func newCardMatcher(q CardSearch, now time.Time) cardMatcher {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return cardMatcher{
		text:      strings.ToLower(strings.TrimSpace(q.Text)),
		labels:    q.Labels,
		assignees: q.Assignees,
		due:       q.Due,
		dayStart:  start,
		dayEnd:    start.AddDate(0, 0, 1),
		weekEnd:   start.AddDate(0, 0, 7),
	}
}

func (m cardMatcher) match(c Card) bool {
	if m.text != "" &&
		!strings.Contains(strings.ToLower(c.Title), m.text) &&
		!strings.Contains(strings.ToLower(c.Description), m.text) {
		return false
	}
	if len(m.labels) > 0 && !anyOf(c.Labels, m.labels) {
		return false
	}
	if len(m.assignees) > 0 && !anyOf(c.Assignees, m.assignees) {
		return false
	}
	if m.due == DueAny {
		return true
	}
	if c.DueDate == nil {
		return false
	}
	due := *c.DueDate
	switch m.due {
	case DueOverdue:
		return due.Before(m.dayStart)
	case DueToday:
		return !due.Before(m.dayStart) && due.Before(m.dayEnd)
	case DueWeek:
		return !due.Before(m.dayStart) && due.Before(m.weekEnd)
	}
	return false
}

func anyOf(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// ListCardActivities returns the newest activity records about one card.
func (s *Service) ListCardActivities(ctx context.Context, actor Principal, cardID string, limit int) ([]Activity, error) {
	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if _, err := s.viewableBoard(ctx, actor, c.BoardID); err != nil {
		return nil, err
	}
	if s.activities == nil {
		return []Activity{}, nil
	}
	if limit <= 0 {
		limit = DefaultCardActivityLimit
	}
	limit = min(limit, MaxActivityLimit)
	return s.activities.ListActivities(ctx, c.BoardID, ActivityQuery{CardID: cardID, Limit: limit, Page: 1})
}
