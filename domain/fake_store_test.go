package domain

import (
	"context"
	"sort"
	"sync"
)

type fakeStore struct {
	mu         sync.Mutex
	boards     map[string]Board
	lists      map[string]List
	cards      map[string]Card
	comments   []Comment
	activities []Activity

	respacedCards map[string]float64
	respacedLists map[string]float64
	failAppend    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards: map[string]Board{},
		lists:  map[string]List{},
		cards:  map[string]Card{},
	}
}

func (f *fakeStore) CreateBoard(ctx context.Context, b Board, lists []List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = b
	for _, l := range lists {
		f.lists[l.ID] = l
	}
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return Board{}, NotFoundError("board", id)
	}
	return b, nil
}

func (f *fakeStore) ListBoards(ctx context.Context, userID string) ([]Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Board
	for _, b := range f.boards {
		if !b.Closed && CanWrite(b, userID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) SetMembers(ctx context.Context, boardID string, members []Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return NotFoundError("board", boardID)
	}
	b.Members = members
	f.boards[boardID] = b
	return nil
}

func (f *fakeStore) CreateList(ctx context.Context, l List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[l.ID] = l
	return nil
}

func (f *fakeStore) GetList(ctx context.Context, id string) (List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return List{}, NotFoundError("list", id)
	}
	return l, nil
}

func (f *fakeStore) ListLists(ctx context.Context, boardID string) ([]List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []List
	for _, l := range f.lists {
		if l.BoardID == boardID && !l.Archived {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) UpdateList(ctx context.Context, l List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[l.ID]; !ok {
		return NotFoundError("list", l.ID)
	}
	f.lists[l.ID] = l
	return nil
}

func (f *fakeStore) MoveList(ctx context.Context, id string, position float64) (List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return List{}, NotFoundError("list", id)
	}
	l.Position = position
	f.lists[id] = l
	return l, nil
}

func (f *fakeStore) RespaceLists(ctx context.Context, boardID string, positions map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respacedLists = positions
	for id, p := range positions {
		l := f.lists[id]
		l.Position = p
		f.lists[id] = l
	}
	return nil
}

func (f *fakeStore) ArchiveList(ctx context.Context, id string) (List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return List{}, NotFoundError("list", id)
	}
	l.Archived = true
	f.lists[id] = l
	for cid, c := range f.cards {
		if c.ListID == id {
			c.Archived = true
			f.cards[cid] = c
		}
	}
	return l, nil
}

func (f *fakeStore) DeleteList(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[id]; !ok {
		return NotFoundError("list", id)
	}
	delete(f.lists, id)
	return nil
}

func (f *fakeStore) CreateCard(ctx context.Context, c Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[c.ID] = c
	return nil
}

func (f *fakeStore) GetCard(ctx context.Context, id string) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return Card{}, NotFoundError("card", id)
	}
	return c, nil
}

func (f *fakeStore) ListCards(ctx context.Context, listID string) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Card
	for _, c := range f.cards {
		if c.ListID == listID && !c.Archived {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) ListBoardCards(ctx context.Context, boardID string) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Card
	for _, c := range f.cards {
		if c.BoardID == boardID && !c.Archived {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CountCards(ctx context.Context, listID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.cards {
		if c.ListID == listID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpdateCard(ctx context.Context, c Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[c.ID]; !ok {
		return NotFoundError("card", c.ID)
	}
	f.cards[c.ID] = c
	return nil
}

func (f *fakeStore) MoveCard(ctx context.Context, id, listID string, position float64) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return Card{}, NotFoundError("card", id)
	}
	c.ListID = listID
	c.Position = position
	f.cards[id] = c
	return c, nil
}

func (f *fakeStore) RespaceCards(ctx context.Context, listID string, positions map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respacedCards = positions
	for id, p := range positions {
		c := f.cards[id]
		c.Position = p
		f.cards[id] = c
	}
	return nil
}

func (f *fakeStore) DeleteCard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[id]; !ok {
		return NotFoundError("card", id)
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeStore) CreateComment(ctx context.Context, c Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeStore) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Comment
	for i := len(f.comments) - 1; i >= 0; i-- {
		if f.comments[i].CardID == cardID {
			out = append(out, f.comments[i])
		}
	}
	return out, nil
}

func (f *fakeStore) AppendActivity(ctx context.Context, a Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend != nil {
		return f.failAppend
	}
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeStore) ListActivities(ctx context.Context, boardID string, q ActivityQuery) ([]Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Activity
	for i := len(f.activities) - 1; i >= 0; i-- {
		a := f.activities[i]
		if a.BoardID == boardID && q.Matches(a) {
			out = append(out, a)
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) activityTypes() []ActivityType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ActivityType, len(f.activities))
	for i, a := range f.activities {
		out[i] = a.Type
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) last() (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Event{}, false
	}
	return p.events[len(p.events)-1], true
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
