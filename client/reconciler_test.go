package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
)

type fakeAPI struct {
	mu      sync.Mutex
	view    domain.BoardView
	fetches int
	moves   []domain.MoveRequest
	moveErr error
	gate    chan struct{}
}

func (f *fakeAPI) GetBoard(context.Context, string) (domain.BoardView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return copyView(f.view), nil
}

func (f *fakeAPI) MoveCard(_ context.Context, cardID string, req domain.MoveRequest) (domain.CardMove, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, req)
	if f.moveErr != nil {
		return domain.CardMove{}, f.moveErr
	}
	return domain.CardMove{Card: domain.Card{ID: cardID, ListID: req.ListID, BoardID: "B", Position: *req.Position}}, nil
}

func (f *fakeAPI) MoveList(_ context.Context, listID string, req domain.MoveRequest) (domain.ListMove, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, req)
	return domain.ListMove{List: domain.List{ID: listID, BoardID: "B", Position: *req.Position}}, nil
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func startReconciler(t *testing.T, api API) *Reconciler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := NewReconciler(api, "B", "s1", logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func snapshot(t *testing.T, r *Reconciler) domain.BoardView {
	t.Helper()
	v, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return v
}

func state(t *testing.T, r *Reconciler, id string) SyncState {
	t.Helper()
	s, err := r.State(context.Background(), id)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return s
}

func TestReconcilerOptimisticMoveConfirmed(t *testing.T) {
	api := &fakeAPI{view: fixture(), gate: make(chan struct{})}
	logger, _ := test.NewNullLogger()
	r := NewReconciler(api, "B", "s1", logger)
	var mu sync.Mutex
	var renders []domain.BoardView
	r.OnChange(func(v domain.BoardView) {
		mu.Lock()
		renders = append(renders, v)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	if err := r.MoveCard(ctx, "cC", "L1", 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := order(snapshot(t, r), "L1"); !slices.Equal(got, []string{"cC", "cA", "cB"}) {
		t.Fatalf("optimistic order not applied: %v", got)
	}
	if s := state(t, r, "cC"); s != Pending {
		t.Fatalf("expected pending, got %s", s)
	}
	close(api.gate)
	eventually(t, "move to settle", func() bool { return state(t, r, "cC") == Synced })

	api.mu.Lock()
	req := api.moves[0]
	api.mu.Unlock()
	if req.ListID != "L1" || req.Position == nil || *req.Position != 512 {
		t.Fatalf("unexpected request %+v", req)
	}
	if api.fetchCount() != 1 {
		t.Fatalf("confirmed move must not re-fetch, fetched %d times", api.fetchCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(renders) < 2 {
		t.Fatalf("expected renders for load and move, got %d", len(renders))
	}
	if got := order(renders[1], "L1"); !slices.Equal(got, []string{"cC", "cA", "cB"}) {
		t.Fatalf("unexpected rendered order %v", got)
	}
}

func TestReconcilerFailedMoveRefetches(t *testing.T) {
	api := &fakeAPI{view: fixture(), moveErr: &StatusError{Code: 403, Message: "access denied"}}
	r := startReconciler(t, api)

	if err := r.MoveCard(context.Background(), "cC", "L2", 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	eventually(t, "re-fetch", func() bool { return api.fetchCount() == 2 })
	eventually(t, "optimistic change discarded", func() bool {
		return slices.Equal(order(snapshot(t, r), "L1"), []string{"cA", "cB", "cC"})
	})
	if got := order(snapshot(t, r), "L2"); !slices.Equal(got, []string{"cD"}) {
		t.Fatalf("unexpected L2 %v", got)
	}
	if s := state(t, r, "cC"); s != Synced {
		t.Fatalf("expected synced after re-fetch, got %s", s)
	}
}

func TestReconcilerUnknownEntity(t *testing.T) {
	r := startReconciler(t, &fakeAPI{view: fixture()})
	if err := r.MoveCard(context.Background(), "nope", "L1", 0); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestReconcilerMissingParentRefetches(t *testing.T) {
	api := &fakeAPI{view: fixture()}
	r := startReconciler(t, api)
	snapshot(t, r)

	api.mu.Lock()
	api.view.Lists = append(api.view.Lists, domain.ListView{
		List:  domain.List{ID: "L3", BoardID: "B", Position: 4096},
		Cards: []domain.Card{{ID: "cA", ListID: "L3", BoardID: "B", Position: 1024}},
	})
	api.view.Lists[1].Cards = slices.DeleteFunc(api.view.Lists[1].Cards, func(c domain.Card) bool { return c.ID == "cA" })
	api.mu.Unlock()

	if err := r.Receive(context.Background(), cardMoved("s2", "cA", "L1", "L3", 1024)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	eventually(t, "re-fetch", func() bool { return api.fetchCount() == 2 })
	eventually(t, "fetched state", func() bool {
		return slices.Equal(order(snapshot(t, r), "L3"), []string{"cA"})
	})
	if got := order(snapshot(t, r), "L1"); !slices.Equal(got, []string{"cB", "cC"}) {
		t.Fatalf("card duplicated after re-fetch: %v", got)
	}
}

func TestReconcilerKeepsMoveCommittedDuringRefetch(t *testing.T) {
	api := &fakeAPI{view: fixture(), gate: make(chan struct{})}
	r := startReconciler(t, api)
	ctx := context.Background()
	snapshot(t, r)

	if err := r.MoveCard(ctx, "cC", "L1", 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	// an event for a list this client has not seen forces a re-fetch that
	// answers with the board as it was before the move committed
	unknown := domain.NewEvent("B", domain.Principal{ID: "u2"}, "s2", domain.CardCreatedData{
		Card: domain.Card{ID: "cX", ListID: "LX", BoardID: "B", Position: 1024},
	})
	if err := r.Receive(ctx, unknown); err != nil {
		t.Fatalf("receive: %v", err)
	}
	eventually(t, "stale re-fetch applied", func() bool {
		return api.fetchCount() == 2 && slices.Equal(order(snapshot(t, r), "L1"), []string{"cA", "cB", "cC"})
	})
	if s := state(t, r, "cC"); s != Pending {
		t.Fatalf("in-flight move must stay pending across the re-fetch, got %s", s)
	}

	close(api.gate)
	eventually(t, "move to settle", func() bool { return state(t, r, "cC") == Synced })
	if got := order(snapshot(t, r), "L1"); !slices.Equal(got, []string{"cC", "cA", "cB"}) {
		t.Fatalf("local order %v diverged from the committed move", got)
	}
	if got := position(snapshot(t, r), "cC"); got != 512 {
		t.Fatalf("unexpected position %v", got)
	}
}

func TestReconcilerSuppressesOwnEcho(t *testing.T) {
	r := startReconciler(t, &fakeAPI{view: fixture()})
	ctx := context.Background()
	if err := r.MoveCard(ctx, "cC", "L1", 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	eventually(t, "move to settle", func() bool { return state(t, r, "cC") == Synced })
	before := snapshot(t, r)

	if err := r.Receive(ctx, cardMoved("s1", "cC", "L1", "L1", 512)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	after := snapshot(t, r)
	if got := order(after, "L1"); !slices.Equal(got, order(before, "L1")) || len(got) != 3 {
		t.Fatalf("echo changed state: %v", got)
	}

	if err := r.Receive(ctx, cardMoved("s2", "cA", "L1", "L2", 4096)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got := order(snapshot(t, r), "L2"); !slices.Equal(got, []string{"cD", "cA"}) {
		t.Fatalf("remote move not merged: %v", got)
	}
}

func TestReconcilerMoveList(t *testing.T) {
	api := &fakeAPI{view: fixture()}
	r := startReconciler(t, api)
	if err := r.MoveList(context.Background(), "L2", 0); err != nil {
		t.Fatalf("move list: %v", err)
	}
	if got := listOrder(snapshot(t, r)); !slices.Equal(got, []string{"L2", "L1"}) {
		t.Fatalf("unexpected list order %v", got)
	}
	eventually(t, "list move to settle", func() bool { return state(t, r, "L2") == Synced })
}

func TestReconcilerStopped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewReconciler(&fakeAPI{view: fixture()}, "B", "s1", logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	snapshot(t, r)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected run error %v", err)
	}
	if _, err := r.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
