package client

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"taskboard/domain"
)

// SyncState is the reconciliation state of one entity in local state.
type SyncState int

const (
	// Synced entities match the last state confirmed by the server.
	Synced SyncState = iota
	// Pending entities carry an optimistic local mutation awaiting its response.
	Pending
	// Reconciling entities had a pending local mutation overwritten by a
	// remote change; the response decides whether a re-fetch is needed.
	Reconciling
)

func (s SyncState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Reconciling:
		return "reconciling"
	}
	return "synced"
}

var (
	// ErrRefetch reports that local state drifted from the server and must be
	// replaced by a full fetch of the board.
	ErrRefetch = errors.New("local board state diverged")
	// ErrUnknownEntity is returned for local mutations of entities not in state.
	ErrUnknownEntity = errors.New("entity not in local state")
)

// Outcome tells whether an event changed local state.
type Outcome int

const (
	Ignored Outcome = iota
	Applied
)

// Intent is an optimistic mutation already applied locally that still has to
// be sent to the server.
type Intent struct {
	EntityID string
	Token    uint64
	Request  domain.MoveRequest
}

type tracked struct {
	state SyncState
	token uint64
}

// Board is the local ordered view of one board. It is not safe for
// concurrent use; a Reconciler owns it from a single goroutine.
type Board struct {
	session string
	view    domain.BoardView
	sync    map[string]tracked
	present map[string]domain.Presence
	typing  map[string]map[string]bool
	tokens  uint64
}

// NewBoard creates empty local state for boardID as seen by session.
func NewBoard(boardID, session string) *Board {
	b := &Board{
		session: session,
		present: make(map[string]domain.Presence),
		typing:  make(map[string]map[string]bool),
	}
	b.Replace(domain.BoardView{Board: domain.Board{ID: boardID}})
	return b
}

// Replace discards local state in favour of a canonical board view. Sync
// states of mutations still in flight are kept: the view may predate their
// commit, so their responses are still merged when they arrive.
func (b *Board) Replace(view domain.BoardView) {
	b.view = copyView(view)
	b.view.Lists = slices.DeleteFunc(b.view.Lists, func(l domain.ListView) bool { return l.Archived })
	for i := range b.view.Lists {
		l := &b.view.Lists[i]
		l.Cards = slices.DeleteFunc(l.Cards, func(c domain.Card) bool { return c.Archived })
		sortCards(l.Cards)
	}
	b.sortLists()
	if b.sync == nil {
		b.sync = make(map[string]tracked)
	}
}

// Forget drops the sync state of an intent the server did not accept.
func (b *Board) Forget(in Intent) {
	if t, ok := b.sync[in.EntityID]; ok && t.token == in.Token {
		delete(b.sync, in.EntityID)
	}
}

// Snapshot returns a deep copy of the local view.
func (b *Board) Snapshot() domain.BoardView { return copyView(b.view) }

// State returns the sync state of a card or list.
func (b *Board) State(id string) SyncState { return b.sync[id].state }

// Present returns the sessions currently on the board.
func (b *Board) Present() []domain.Presence {
	out := make([]domain.Presence, 0, len(b.present))
	for _, p := range b.present {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, c domain.Presence) int { return cmp.Compare(a.SessionID, c.SessionID) })
	return out
}

// SetPresent replaces the presence set, as reported when joining a board.
func (b *Board) SetPresent(ps []domain.Presence) {
	clear(b.present)
	for _, p := range ps {
		b.present[p.SessionID] = p
	}
}

// Typing returns the ids of users currently typing on a card.
func (b *Board) Typing(cardID string) []string {
	var out []string
	for id := range b.typing[cardID] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// MoveCard moves a card to index within toListID locally and returns the
// request that makes the same move on the server. When the destination has
// no room left at index its cards are respaced locally and the request
// carries the index, so the server respaces its copy the same way.
func (b *Board) MoveCard(cardID, toListID string, index int) (Intent, error) {
	li, ci := b.findCard(cardID)
	if li < 0 {
		return Intent{}, fmt.Errorf("card %s: %w", cardID, ErrUnknownEntity)
	}
	dl := b.findList(toListID)
	if dl < 0 {
		return Intent{}, fmt.Errorf("list %s: %w", toListID, ErrUnknownEntity)
	}
	card := b.removeCardAt(li, ci)
	dest := b.view.Lists[dl].Cards
	index = clampIndex(index, len(dest))
	placed := domain.PlaceAt(cardPositions(dest), index)

	req := domain.MoveRequest{ListID: toListID}
	if placed.Rebalanced != nil {
		for i := range dest {
			dest[i].Position = placed.Rebalanced[i]
		}
		req.Index = &index
	} else {
		pos := placed.Position
		req.Position = &pos
	}
	card.ListID = toListID
	card.Position = placed.Position
	b.insertCard(dl, card)
	return Intent{EntityID: cardID, Token: b.track(cardID), Request: req}, nil
}

// MoveList moves a list to index among the board's lists locally.
func (b *Board) MoveList(listID string, index int) (Intent, error) {
	li := b.findList(listID)
	if li < 0 {
		return Intent{}, fmt.Errorf("list %s: %w", listID, ErrUnknownEntity)
	}
	l := b.view.Lists[li]
	b.view.Lists = slices.Delete(b.view.Lists, li, li+1)
	index = clampIndex(index, len(b.view.Lists))
	placed := domain.PlaceAt(listPositions(b.view.Lists), index)

	var req domain.MoveRequest
	if placed.Rebalanced != nil {
		for i := range b.view.Lists {
			b.view.Lists[i].Position = placed.Rebalanced[i]
		}
		req.Index = &index
	} else {
		pos := placed.Position
		req.Position = &pos
	}
	l.Position = placed.Position
	b.insertList(l)
	return Intent{EntityID: listID, Token: b.track(listID), Request: req}, nil
}

// AckCardMove settles a card move with the server's response. A response for
// a superseded intent is ignored. If a remote change overwrote the optimistic
// move and the server result differs from local state, ErrRefetch is returned.
func (b *Board) AckCardMove(in Intent, res domain.CardMove) error {
	t, ok := b.sync[in.EntityID]
	if !ok || t.token != in.Token {
		return nil
	}
	delete(b.sync, in.EntityID)

	li, ci := b.findCard(in.EntityID)
	if li < 0 {
		return ErrRefetch
	}
	local := b.view.Lists[li].Cards[ci]
	if local.ListID == res.Card.ListID && local.Position == res.Card.Position {
		if len(res.Rebalanced) > 0 {
			b.respaceCards(li, res.Rebalanced)
		}
		return nil
	}
	if t.state == Reconciling {
		return ErrRefetch
	}
	dl := b.findList(res.Card.ListID)
	if dl < 0 {
		return ErrRefetch
	}
	b.removeCardAt(li, ci)
	if len(res.Rebalanced) > 0 {
		b.respaceCards(dl, res.Rebalanced)
	}
	b.insertCard(dl, res.Card)
	return nil
}

// AckListMove settles a list move the same way AckCardMove settles cards.
func (b *Board) AckListMove(in Intent, res domain.ListMove) error {
	t, ok := b.sync[in.EntityID]
	if !ok || t.token != in.Token {
		return nil
	}
	delete(b.sync, in.EntityID)

	li := b.findList(in.EntityID)
	if li < 0 {
		return ErrRefetch
	}
	if b.view.Lists[li].Position == res.List.Position {
		if len(res.Rebalanced) > 0 {
			b.respaceLists(res.Rebalanced)
		}
		return nil
	}
	if t.state == Reconciling {
		return ErrRefetch
	}
	b.respaceLists(res.Rebalanced)
	b.view.Lists[b.findList(in.EntityID)].Position = res.List.Position
	b.sortLists()
	return nil
}

// Apply merges a broadcast event into local state. Events of other boards
// and events originating from this session are ignored. ErrRefetch means an
// entity the event refers to is missing locally.
func (b *Board) Apply(ev domain.Event) (Outcome, error) {
	if ev.BoardID != b.view.ID {
		return Ignored, nil
	}
	if ev.Origin != "" && ev.Origin == b.session {
		return Ignored, nil
	}

	var err error
	switch d := ev.Data.(type) {
	case domain.CardMovedData:
		err = b.cardMoved(d)
	case domain.CardCreatedData:
		err = b.cardCreated(d.Card)
	case domain.CardUpdatedData:
		err = b.cardUpdated(d)
	case domain.CardDeletedData:
		b.cardDeleted(d.CardID)
	case domain.ListMovedData:
		err = b.listMoved(d)
	case domain.ListCreatedData:
		b.listCreated(d.List)
	case domain.ListUpdatedData:
		err = b.listUpdated(d)
	case domain.ListArchivedData:
		b.listArchived(d.ListID)
	case domain.CommentAddedData:
		if li, _ := b.findCard(d.CardID); li < 0 {
			err = ErrRefetch
		}
	case domain.UserJoinedData:
		b.present[d.SessionID] = d.Presence
	case domain.UserLeftData:
		delete(b.present, d.SessionID)
	case domain.TypingStartData:
		if b.typing[d.CardID] == nil {
			b.typing[d.CardID] = make(map[string]bool)
		}
		b.typing[d.CardID][ev.ActorID] = true
	case domain.TypingStopData:
		delete(b.typing[d.CardID], ev.ActorID)
	default:
		return Ignored, nil
	}
	if err != nil {
		return Ignored, fmt.Errorf("%s: %w", ev.Type, err)
	}
	return Applied, nil
}

func (b *Board) cardMoved(d domain.CardMovedData) error {
	dl := b.findList(d.ToListID)
	if dl < 0 {
		return ErrRefetch
	}
	li, ci := b.findCard(d.CardID)
	if li < 0 {
		return ErrRefetch
	}
	card := b.removeCardAt(li, ci)
	if len(d.Rebalanced) > 0 {
		b.respaceCards(dl, d.Rebalanced)
	}
	card.ListID = d.ToListID
	card.Position = d.NewPosition
	b.insertCard(dl, card)
	b.overridden(d.CardID)
	return nil
}

func (b *Board) cardCreated(c domain.Card) error {
	dl := b.findList(c.ListID)
	if dl < 0 {
		return ErrRefetch
	}
	if li, ci := b.findCard(c.ID); li >= 0 {
		b.removeCardAt(li, ci)
	}
	if !c.Archived {
		b.insertCard(dl, c)
	}
	return nil
}

func (b *Board) cardUpdated(d domain.CardUpdatedData) error {
	li, ci := b.findCard(d.CardID)
	if li < 0 {
		return ErrRefetch
	}
	c := &b.view.Lists[li].Cards[ci]
	u := d.Updates
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.DueDate != nil {
		due := *u.DueDate
		c.DueDate = &due
	}
	if u.Labels != nil {
		c.Labels = slices.Clone(*u.Labels)
	}
	if u.Assignees != nil {
		c.Assignees = slices.Clone(*u.Assignees)
	}
	if u.Completed != nil {
		c.Completed = *u.Completed
		switch {
		case !c.Completed:
			c.CompletedAt = nil
		case d.CompletedAt != nil:
			at := *d.CompletedAt
			c.CompletedAt = &at
		}
	}
	return nil
}

func (b *Board) cardDeleted(id string) {
	if li, ci := b.findCard(id); li >= 0 {
		b.removeCardAt(li, ci)
	}
	delete(b.sync, id)
	delete(b.typing, id)
}

func (b *Board) listMoved(d domain.ListMovedData) error {
	li := b.findList(d.ListID)
	if li < 0 {
		return ErrRefetch
	}
	b.respaceLists(d.Rebalanced)
	b.view.Lists[b.findList(d.ListID)].Position = d.NewPosition
	b.sortLists()
	b.overridden(d.ListID)
	return nil
}

func (b *Board) listCreated(l domain.List) {
	if l.Archived {
		return
	}
	if li := b.findList(l.ID); li >= 0 {
		b.view.Lists[li].List = l
	} else {
		b.view.Lists = append(b.view.Lists, domain.ListView{List: l})
	}
	b.sortLists()
}

func (b *Board) listUpdated(d domain.ListUpdatedData) error {
	li := b.findList(d.ListID)
	if li < 0 {
		return ErrRefetch
	}
	if d.Updates.Title != nil {
		b.view.Lists[li].Title = *d.Updates.Title
	}
	if d.Updates.Position != nil {
		b.view.Lists[li].Position = *d.Updates.Position
		b.sortLists()
	}
	return nil
}

func (b *Board) listArchived(id string) {
	li := b.findList(id)
	if li < 0 {
		return
	}
	for _, c := range b.view.Lists[li].Cards {
		delete(b.sync, c.ID)
	}
	b.view.Lists = slices.Delete(b.view.Lists, li, li+1)
	delete(b.sync, id)
}

func (b *Board) track(id string) uint64 {
	b.tokens++
	b.sync[id] = tracked{state: Pending, token: b.tokens}
	return b.tokens
}

// overridden marks a pending entity whose optimistic state a remote change replaced.
func (b *Board) overridden(id string) {
	if t, ok := b.sync[id]; ok && t.state == Pending {
		t.state = Reconciling
		b.sync[id] = t
	}
}

func (b *Board) findList(id string) int {
	return slices.IndexFunc(b.view.Lists, func(l domain.ListView) bool { return l.ID == id })
}

func (b *Board) findCard(id string) (int, int) {
	for li, l := range b.view.Lists {
		if ci := slices.IndexFunc(l.Cards, func(c domain.Card) bool { return c.ID == id }); ci >= 0 {
			return li, ci
		}
	}
	return -1, -1
}

func (b *Board) removeCardAt(li, ci int) domain.Card {
	c := b.view.Lists[li].Cards[ci]
	b.view.Lists[li].Cards = slices.Delete(b.view.Lists[li].Cards, ci, ci+1)
	return c
}

func (b *Board) insertCard(li int, c domain.Card) {
	cards := b.view.Lists[li].Cards
	at := domain.IndexOf(cardPositions(cards), c.Position)
	b.view.Lists[li].Cards = slices.Insert(cards, at, c)
}

func (b *Board) insertList(l domain.ListView) {
	at := domain.IndexOf(listPositions(b.view.Lists), l.Position)
	b.view.Lists = slices.Insert(b.view.Lists, at, l)
}

func (b *Board) respaceCards(li int, positions map[string]float64) {
	cards := b.view.Lists[li].Cards
	for i := range cards {
		if p, ok := positions[cards[i].ID]; ok {
			cards[i].Position = p
		}
	}
	sortCards(cards)
}

func (b *Board) respaceLists(positions map[string]float64) {
	for i := range b.view.Lists {
		if p, ok := positions[b.view.Lists[i].ID]; ok {
			b.view.Lists[i].Position = p
		}
	}
	b.sortLists()
}

func (b *Board) sortLists() {
	slices.SortStableFunc(b.view.Lists, func(a, c domain.ListView) int { return cmp.Compare(a.Position, c.Position) })
}

func sortCards(cards []domain.Card) {
	slices.SortStableFunc(cards, func(a, c domain.Card) int { return cmp.Compare(a.Position, c.Position) })
}

func cardPositions(cards []domain.Card) []float64 {
	out := make([]float64, len(cards))
	for i, c := range cards {
		out[i] = c.Position
	}
	return out
}

func listPositions(lists []domain.ListView) []float64 {
	out := make([]float64, len(lists))
	for i, l := range lists {
		out[i] = l.Position
	}
	return out
}

func clampIndex(i, n int) int {
	return max(0, min(i, n))
}

func copyView(v domain.BoardView) domain.BoardView {
	out := v
	out.Members = slices.Clone(v.Members)
	out.Lists = make([]domain.ListView, len(v.Lists))
	for i, l := range v.Lists {
		out.Lists[i] = domain.ListView{List: l.List, Cards: slices.Clone(l.Cards)}
		if out.Lists[i].Cards == nil {
			out.Lists[i].Cards = []domain.Card{}
		}
	}
	return out
}
