package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

var (
	owner    = Principal{ID: "owner", Name: "Olive"}
	member   = Principal{ID: "member", Name: "Max"}
	stranger = Principal{ID: "stranger", Name: "Sid"}
)

func newTestService(t *testing.T) (*Service, *fakeStore, *recordingPublisher) {
	t.Helper()
	st := newFakeStore()
	pub := &recordingPublisher{}
	logger, _ := test.NewNullLogger()
	svc := NewService(st, st, pub, logger)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return svc, st, pub
}

func seedBoard(t *testing.T, svc *Service, vis Visibility, titles ...string) (BoardView, []Card) {
	t.Helper()
	ctx := context.Background()
	view, err := svc.CreateBoard(ctx, owner, BoardInput{Title: "Roadmap", Visibility: vis})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	cards := make([]Card, 0, len(titles))
	for _, title := range titles {
		c, err := svc.CreateCard(ctx, owner, CardInput{ListID: view.Lists[0].ID, Title: title})
		if err != nil {
			t.Fatalf("create card %s: %v", title, err)
		}
		cards = append(cards, c)
	}
	return view, cards
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }
func boolPtr(b bool) *bool        { return &b }

func TestCreateBoardAddsOwnerAndDefaultLists(t *testing.T) {
	svc, st, _ := newTestService(t)
	view, _ := seedBoard(t, svc, "")
	if view.Visibility != VisibilityPrivate {
		t.Fatalf("expected private default visibility, got %q", view.Visibility)
	}
	role, ok := view.RoleOf(owner.ID)
	if !ok || role != RoleOwner || len(view.Members) != 1 {
		t.Fatalf("expected a single owner membership, got %+v", view.Members)
	}
	if len(view.Lists) != 3 {
		t.Fatalf("expected 3 default lists, got %d", len(view.Lists))
	}
	for i, want := range []string{"To Do", "In Progress", "Done"} {
		l := view.Lists[i]
		if l.Title != want || l.Position != float64(i+1)*1024 {
			t.Fatalf("list %d: unexpected %q at %v", i, l.Title, l.Position)
		}
	}
	if got := st.activityTypes(); len(got) != 1 || got[0] != ActivityBoardCreated {
		t.Fatalf("unexpected activities: %v", got)
	}
}

func TestCreateBoardValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	cases := []BoardInput{
		{Title: "  "},
		{Title: strings.Repeat("x", 101)},
		{Title: "ok", Description: strings.Repeat("d", 501)},
		{Title: "ok", Visibility: "secret"},
	}
	for i, in := range cases {
		_, err := svc.CreateBoard(ctx, owner, in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestMoveCardToFrontExample(t *testing.T) {
	svc, _, pub := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A", "B", "C")
	for i, c := range cards {
		if c.Position != float64(i+1)*1024 {
			t.Fatalf("card %s: expected append position %v got %v", c.Title, float64(i+1)*1024, c.Position)
		}
	}

	ctx := WithOrigin(context.Background(), "session-1")
	res, err := svc.MoveCard(ctx, owner, cards[2].ID, MoveRequest{Index: intPtr(0)})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Card.Position != 512 || res.Rebalanced != nil {
		t.Fatalf("expected 512 without rebalance, got %+v", res)
	}

	full, err := svc.GetBoard(context.Background(), owner, view.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	got := ""
	for _, c := range full.Lists[0].Cards {
		got += c.Title
	}
	if got != "CAB" {
		t.Fatalf("expected order CAB, got %s", got)
	}

	ev, ok := pub.last()
	if !ok {
		t.Fatalf("expected an event")
	}
	data, ok := ev.Data.(CardMovedData)
	if !ok {
		t.Fatalf("expected card-moved, got %T", ev.Data)
	}
	if ev.Origin != "session-1" || ev.ActorName != "Olive" || ev.BoardID != view.ID {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
	if data.CardID != cards[2].ID || data.ToListID != view.Lists[0].ID || data.NewPosition != 512 {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestMoveCardAcrossListsRecordsActivity(t *testing.T) {
	svc, st, pub := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A", "B")
	before := len(st.activityTypes())

	if _, err := svc.MoveCard(context.Background(), owner, cards[0].ID, MoveRequest{Index: intPtr(1)}); err != nil {
		t.Fatalf("same-list move: %v", err)
	}
	if got := len(st.activityTypes()); got != before {
		t.Fatalf("same-list move should not record activity, got %d new", got-before)
	}

	res, err := svc.MoveCard(context.Background(), owner, cards[0].ID, MoveRequest{ListID: view.Lists[1].ID, Index: intPtr(0)})
	if err != nil {
		t.Fatalf("cross-list move: %v", err)
	}
	if res.Card.ListID != view.Lists[1].ID || res.FromListID != view.Lists[0].ID || res.Card.Position != DefaultPosition {
		t.Fatalf("unexpected move result: %+v", res)
	}
	types := st.activityTypes()
	if types[len(types)-1] != ActivityCardMoved {
		t.Fatalf("expected card_moved activity, got %v", types)
	}
	ev, _ := pub.last()
	data := ev.Data.(CardMovedData)
	if data.FromListID != view.Lists[0].ID || data.ToListID != view.Lists[1].ID {
		t.Fatalf("unexpected event: %+v", data)
	}
}

func TestMoveCardRebalancesExhaustedGap(t *testing.T) {
	svc, st, pub := newTestService(t)
	_, cards := seedBoard(t, svc, VisibilityPrivate, "A", "B", "C")
	ctx := context.Background()

	// leave no representable value between A and B
	if _, err := st.MoveCard(ctx, cards[1].ID, cards[1].ListID, math.Nextafter(1024, 2048)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := svc.MoveCard(ctx, owner, cards[2].ID, MoveRequest{Index: intPtr(1)})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Rebalanced == nil {
		t.Fatalf("expected a rebalance")
	}
	if res.Rebalanced[cards[0].ID] != 1024 || res.Rebalanced[cards[1].ID] != 2048 {
		t.Fatalf("unexpected rebalanced positions: %v", res.Rebalanced)
	}
	if res.Card.Position != 1536 {
		t.Fatalf("expected 1536 got %v", res.Card.Position)
	}
	if len(st.respacedCards) != 2 {
		t.Fatalf("expected siblings respaced in the store, got %v", st.respacedCards)
	}
	ev, _ := pub.last()
	if got := ev.Data.(CardMovedData).Rebalanced; len(got) != 2 {
		t.Fatalf("event should carry the rebalance map, got %v", got)
	}
}

func TestMoveCardTrustsExplicitPosition(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, cards := seedBoard(t, svc, VisibilityPrivate, "A", "B")
	res, err := svc.MoveCard(context.Background(), owner, cards[0].ID, MoveRequest{Position: floatPtr(9999.5)})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Card.Position != 9999.5 {
		t.Fatalf("explicit position should be persisted as given, got %v", res.Card.Position)
	}
}

func TestMoveCardRejectsBadRequests(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	other, err := svc.CreateBoard(context.Background(), owner, BoardInput{Title: "Other"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	bad := []MoveRequest{
		{},
		{Position: floatPtr(-5)},
		{Position: floatPtr(math.NaN())},
		{Position: floatPtr(10), Index: intPtr(0)},
		{Index: intPtr(-1)},
		{ListID: other.Lists[0].ID, Index: intPtr(0)},
	}
	for i, req := range bad {
		_, err := svc.MoveCard(context.Background(), owner, cards[0].ID, req)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := svc.MoveCard(context.Background(), owner, "missing", MoveRequest{Index: intPtr(0)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWritesForbiddenForNonMembers(t *testing.T) {
	for _, vis := range []Visibility{VisibilityPrivate, VisibilityWorkspace, VisibilityPublic} {
		svc, _, pub := newTestService(t)
		view, cards := seedBoard(t, svc, vis, "A")
		ctx := context.Background()
		listID := view.Lists[0].ID
		cardID := cards[0].ID
		published := pub.count()

		writes := map[string]func() error{
			"create list": func() error {
				_, err := svc.CreateList(ctx, stranger, ListInput{BoardID: view.ID, Title: "x"})
				return err
			},
			"update list": func() error {
				_, err := svc.UpdateList(ctx, stranger, listID, ListChanges{Title: strPtr("x")})
				return err
			},
			"move list": func() error {
				_, err := svc.MoveList(ctx, stranger, listID, MoveRequest{Index: intPtr(2)})
				return err
			},
			"archive list": func() error {
				_, err := svc.ArchiveList(ctx, stranger, listID)
				return err
			},
			"delete list": func() error {
				_, err := svc.DeleteList(ctx, stranger, listID)
				return err
			},
			"create card": func() error {
				_, err := svc.CreateCard(ctx, stranger, CardInput{ListID: listID, Title: "x"})
				return err
			},
			"update card": func() error {
				_, err := svc.UpdateCard(ctx, stranger, cardID, CardChanges{Title: strPtr("x")})
				return err
			},
			"move card": func() error {
				_, err := svc.MoveCard(ctx, stranger, cardID, MoveRequest{Position: floatPtr(1)})
				return err
			},
			"delete card": func() error {
				_, err := svc.DeleteCard(ctx, stranger, cardID)
				return err
			},
			"comment": func() error {
				_, err := svc.AddComment(ctx, stranger, CommentInput{CardID: cardID, Text: "hi"})
				return err
			},
			"add member": func() error {
				_, err := svc.AddMember(ctx, stranger, view.ID, stranger.ID, RoleMember)
				return err
			},
		}
		for name, write := range writes {
			if err := write(); !errors.Is(err, ErrForbidden) {
				t.Fatalf("%s on %s board: expected forbidden, got %v", name, vis, err)
			}
		}
		if pub.count() != published {
			t.Fatalf("%s board: forbidden writes must not publish", vis)
		}

		_, err := svc.GetBoard(ctx, stranger, view.ID)
		if vis == VisibilityPrivate && !errors.Is(err, ErrForbidden) {
			t.Fatalf("private board read: expected forbidden, got %v", err)
		}
		if vis != VisibilityPrivate && err != nil {
			t.Fatalf("%s board read: %v", vis, err)
		}
	}
}

func TestMemberCanWrite(t *testing.T) {
	svc, _, _ := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	ctx := context.Background()
	if _, err := svc.AddMember(ctx, owner, view.ID, member.ID, RoleViewer); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := svc.MoveCard(ctx, member, cards[0].ID, MoveRequest{Index: intPtr(0)}); err != nil {
		t.Fatalf("member move: %v", err)
	}
	boards, err := svc.ListBoards(ctx, member)
	if err != nil || len(boards) != 1 {
		t.Fatalf("expected member to see one board, got %v %v", boards, err)
	}
	if _, err := svc.AddMember(ctx, owner, view.ID, owner.ID, RoleAdmin); !errors.Is(err, ErrValidation) {
		t.Fatalf("changing the owner's role should fail, got %v", err)
	}
}

func TestDeleteCardIsIdempotent(t *testing.T) {
	svc, _, pub := newTestService(t)
	_, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	ctx := context.Background()
	deleted, err := svc.DeleteCard(ctx, owner, cards[0].ID)
	if err != nil || !deleted {
		t.Fatalf("first delete: %v %v", deleted, err)
	}
	n := pub.count()
	deleted, err = svc.DeleteCard(ctx, owner, cards[0].ID)
	if err != nil || deleted {
		t.Fatalf("second delete should be a no-op, got %v %v", deleted, err)
	}
	if pub.count() != n {
		t.Fatalf("second delete must not publish")
	}
}

func TestDeleteListArchivesWhenNotEmpty(t *testing.T) {
	svc, st, pub := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	ctx := context.Background()

	hard, err := svc.DeleteList(ctx, owner, view.Lists[0].ID)
	if err != nil || hard {
		t.Fatalf("list with cards should be archived, got %v %v", hard, err)
	}
	if l := st.lists[view.Lists[0].ID]; !l.Archived {
		t.Fatalf("list not archived")
	}
	if c := st.cards[cards[0].ID]; !c.Archived {
		t.Fatalf("card not archived with its list")
	}
	if ev, _ := pub.last(); ev.Type != ListArchived {
		t.Fatalf("expected list-archived, got %s", ev.Type)
	}

	hard, err = svc.DeleteList(ctx, owner, view.Lists[1].ID)
	if err != nil || !hard {
		t.Fatalf("empty list should be deleted, got %v %v", hard, err)
	}
	if _, ok := st.lists[view.Lists[1].ID]; ok {
		t.Fatalf("empty list still stored")
	}
	types := st.activityTypes()
	if types[len(types)-2] != ActivityListArchived || types[len(types)-1] != ActivityListDeleted {
		t.Fatalf("expected list_archived then list_deleted, got %v", types)
	}
	q, _ := NewActivityQuery("lists", 0, 0)
	acts, err := svc.ListActivities(ctx, owner, view.ID, q)
	if err != nil || len(acts) != 2 || acts[0].Type != ActivityListDeleted {
		t.Fatalf("lists filter should include deletions, got %v %v", acts, err)
	}
}

func TestMoveCardRejectsArchivedDestination(t *testing.T) {
	svc, st, pub := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	ctx := context.Background()
	if _, err := svc.ArchiveList(ctx, owner, view.Lists[1].ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	events := pub.count()
	_, err := svc.MoveCard(ctx, owner, cards[0].ID, MoveRequest{ListID: view.Lists[1].ID, Index: intPtr(0)})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "listId" {
		t.Fatalf("expected listId validation error, got %v", err)
	}
	if c := st.cards[cards[0].ID]; c.ListID != view.Lists[0].ID || c.Archived {
		t.Fatalf("card should stay live in its list: %+v", c)
	}
	if pub.count() != events {
		t.Fatalf("rejected move must not publish")
	}
}

func TestMoveListByIndex(t *testing.T) {
	svc, _, pub := newTestService(t)
	view, _ := seedBoard(t, svc, VisibilityPrivate)
	done := view.Lists[2]
	res, err := svc.MoveList(context.Background(), owner, done.ID, MoveRequest{Index: intPtr(0)})
	if err != nil {
		t.Fatalf("move list: %v", err)
	}
	if res.List.Position != 512 {
		t.Fatalf("expected 512 got %v", res.List.Position)
	}
	ev, _ := pub.last()
	if data, ok := ev.Data.(ListMovedData); !ok || data.ListID != done.ID || data.NewPosition != 512 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestCreateListAppends(t *testing.T) {
	svc, _, _ := newTestService(t)
	view, _ := seedBoard(t, svc, VisibilityPrivate)
	l, err := svc.CreateList(context.Background(), owner, ListInput{BoardID: view.ID, Title: "Later"})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if l.Position != 4096 {
		t.Fatalf("expected max+gap 4096, got %v", l.Position)
	}
}

func TestUpdateCardCompletion(t *testing.T) {
	svc, _, pub := newTestService(t)
	_, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	ctx := context.Background()
	c, err := svc.UpdateCard(ctx, owner, cards[0].ID, CardChanges{Completed: boolPtr(true)})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !c.Completed || c.CompletedAt == nil {
		t.Fatalf("completion should stamp completedAt: %+v", c)
	}
	c, err = svc.UpdateCard(ctx, owner, cards[0].ID, CardChanges{Completed: boolPtr(false)})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if c.Completed || c.CompletedAt != nil {
		t.Fatalf("reopening should clear completedAt: %+v", c)
	}
	ev, _ := pub.last()
	if data, ok := ev.Data.(CardUpdatedData); !ok || data.Updates.Completed == nil || *data.Updates.Completed || data.CompletedAt != nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	c, _ = svc.UpdateCard(ctx, owner, cards[0].ID, CardChanges{Completed: boolPtr(true)})
	ev, _ = pub.last()
	if data := ev.Data.(CardUpdatedData); data.CompletedAt == nil || !data.CompletedAt.Equal(*c.CompletedAt) {
		t.Fatalf("event should carry the completion stamp, got %+v", data)
	}
	if _, err := svc.UpdateCard(ctx, owner, cards[0].ID, CardChanges{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty update should fail validation, got %v", err)
	}
}

func TestSideEffectFailuresDoNotFailMutation(t *testing.T) {
	svc, st, pub := newTestService(t)
	_, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	st.failAppend = errors.New("log down")
	pub.err = errors.New("broker down")
	if _, err := svc.MoveCard(context.Background(), owner, cards[0].ID, MoveRequest{Position: floatPtr(10)}); err != nil {
		t.Fatalf("mutation should succeed despite side-effect failures: %v", err)
	}
}

func TestCommentsAndActivityFeed(t *testing.T) {
	svc, _, pub := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A")
	ctx := context.Background()
	if _, err := svc.AddComment(ctx, owner, CommentInput{CardID: cards[0].ID, Text: "first"}); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := svc.AddComment(ctx, owner, CommentInput{CardID: cards[0].ID, Text: "second"}); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if ev, _ := pub.last(); ev.Type != CommentAdded {
		t.Fatalf("expected comment-added, got %s", ev.Type)
	}
	comments, err := svc.ListComments(ctx, owner, cards[0].ID)
	if err != nil || len(comments) != 2 || comments[0].Text != "second" {
		t.Fatalf("unexpected comments %+v %v", comments, err)
	}

	q, err := NewActivityQuery("comments", 0, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	acts, err := svc.ListActivities(ctx, owner, view.ID, q)
	if err != nil || len(acts) != 2 {
		t.Fatalf("expected 2 comment activities, got %v %v", acts, err)
	}
	for _, a := range acts {
		if a.Type != ActivityCommentAdded || a.UserName != "Olive" {
			t.Fatalf("unexpected activity %+v", a)
		}
	}
	if _, err := NewActivityQuery("bogus", 0, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown filter should fail validation, got %v", err)
	}
}

func TestCardLabelsAndAssignees(t *testing.T) {
	svc, st, pub := newTestService(t)
	view, _ := seedBoard(t, svc, VisibilityPrivate)
	ctx := context.Background()
	c, err := svc.CreateCard(ctx, owner, CardInput{
		ListID:    view.Lists[0].ID,
		Title:     "Ship",
		Labels:    []string{" bug ", "bug", "urgent"},
		Assignees: []string{"max"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.Join(c.Labels, ",") != "bug,urgent" || strings.Join(st.cards[c.ID].Assignees, ",") != "max" {
		t.Fatalf("unexpected tags %+v", c)
	}

	c, err = svc.UpdateCard(ctx, owner, c.ID, CardChanges{Labels: &[]string{}})
	if err != nil {
		t.Fatalf("clear labels: %v", err)
	}
	if len(c.Labels) != 0 || len(c.Assignees) != 1 {
		t.Fatalf("labels should clear and assignees stay: %+v", c)
	}
	ev, _ := pub.last()
	if data := ev.Data.(CardUpdatedData); data.Updates.Labels == nil || len(*data.Updates.Labels) != 0 {
		t.Fatalf("event should carry the cleared labels: %+v", data.Updates)
	}

	tooMany := make([]string, 21)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("l%d", i)
	}
	bad := []CardChanges{
		{Labels: &[]string{" "}},
		{Labels: &tooMany},
		{Assignees: &[]string{strings.Repeat("a", 51)}},
	}
	for i, ch := range bad {
		if _, err := svc.UpdateCard(ctx, owner, c.ID, ch); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestSearchCards(t *testing.T) {
	svc, _, _ := newTestService(t)
	view, _ := seedBoard(t, svc, VisibilityPrivate)
	ctx := context.Background()
	day := func(m time.Month, d int) *time.Time {
		v := time.Date(2024, m, d, 9, 0, 0, 0, time.UTC)
		return &v
	}
	seed := []CardInput{
		{ListID: view.Lists[0].ID, Title: "Fix login", Labels: []string{"bug"}, DueDate: day(time.February, 28)},
		{ListID: view.Lists[0].ID, Title: "Write docs", Description: "Login flow too", Assignees: []string{"max"}, DueDate: day(time.March, 1)},
		{ListID: view.Lists[1].ID, Title: "Release", Labels: []string{"ops"}, DueDate: day(time.March, 5)},
		{ListID: view.Lists[1].ID, Title: "Retro", DueDate: day(time.March, 30)},
	}
	for _, in := range seed {
		if _, err := svc.CreateCard(ctx, owner, in); err != nil {
			t.Fatalf("create %s: %v", in.Title, err)
		}
	}
	titles := func(q CardSearch) string {
		t.Helper()
		cards, err := svc.SearchCards(ctx, owner, view.ID, q)
		if err != nil {
			t.Fatalf("search %+v: %v", q, err)
		}
		out := make([]string, len(cards))
		for i, c := range cards {
			out[i] = c.Title
		}
		return strings.Join(out, ",")
	}
	cases := []struct {
		q    CardSearch
		want string
	}{
		{CardSearch{}, "Fix login,Write docs,Release,Retro"},
		{CardSearch{Text: "LOGIN"}, "Fix login,Write docs"},
		{CardSearch{Labels: []string{"ops", "bug"}}, "Fix login,Release"},
		{CardSearch{Assignees: []string{"max"}}, "Write docs"},
		{CardSearch{Due: DueOverdue}, "Fix login"},
		{CardSearch{Due: DueToday}, "Write docs"},
		{CardSearch{Due: DueWeek}, "Write docs,Release"},
		{CardSearch{Text: "re", Due: DueWeek}, "Release"},
	}
	for _, tc := range cases {
		if got := titles(tc.q); got != tc.want {
			t.Fatalf("search %+v: got %q want %q", tc.q, got, tc.want)
		}
	}
	if _, err := svc.SearchCards(ctx, owner, view.ID, CardSearch{Due: "month"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown due filter should fail validation, got %v", err)
	}
	if _, err := svc.SearchCards(ctx, stranger, view.ID, CardSearch{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger should not search a private board, got %v", err)
	}
}

func TestCardActivityFeed(t *testing.T) {
	svc, _, _ := newTestService(t)
	view, cards := seedBoard(t, svc, VisibilityPrivate, "A", "B")
	ctx := context.Background()
	if _, err := svc.UpdateCard(ctx, owner, cards[0].ID, CardChanges{Title: strPtr("A2")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.MoveCard(ctx, owner, cards[0].ID, MoveRequest{ListID: view.Lists[1].ID, Index: intPtr(0)}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := svc.UpdateCard(ctx, owner, cards[1].ID, CardChanges{Title: strPtr("B2")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	acts, err := svc.ListCardActivities(ctx, owner, cards[0].ID, 0)
	if err != nil {
		t.Fatalf("card activities: %v", err)
	}
	want := []ActivityType{ActivityCardMoved, ActivityCardUpdated, ActivityCardCreated}
	if len(acts) != len(want) {
		t.Fatalf("expected %d activities, got %+v", len(want), acts)
	}
	for i, a := range acts {
		if a.Type != want[i] || a.CardID != cards[0].ID {
			t.Fatalf("activity %d: unexpected %+v", i, a)
		}
	}
	if acts, _ := svc.ListCardActivities(ctx, owner, cards[0].ID, 1); len(acts) != 1 || acts[0].Type != ActivityCardMoved {
		t.Fatalf("limit should keep the newest entry, got %+v", acts)
	}
	if _, err := svc.ListCardActivities(ctx, stranger, cards[0].ID, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger should be forbidden, got %v", err)
	}
	if _, err := svc.ListCardActivities(ctx, owner, "missing", 0); !IsNotFound(err) {
		t.Fatalf("missing card should be not found, got %v", err)
	}
}
