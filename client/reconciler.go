package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ErrStopped is returned once the reconciler's loop has exited.
var ErrStopped = errors.New("reconciler stopped")

const refetchRetryDelay = time.Second

// API is the slice of the REST surface the reconciler needs.
type API interface {
	GetBoard(ctx context.Context, boardID string) (domain.BoardView, error)
	MoveCard(ctx context.Context, cardID string, req domain.MoveRequest) (domain.CardMove, error)
	MoveList(ctx context.Context, listID string, req domain.MoveRequest) (domain.ListMove, error)
}

// Reconciler keeps a local Board consistent with the server. Every change to
// local state, local or remote, runs on the goroutine executing Run; network
// calls run elsewhere and post their results back to it.
type Reconciler struct {
	api     API
	boardID string
	board   *Board
	log     *log.Entry

	ops  chan func(context.Context)
	done chan struct{}

	onChange func(domain.BoardView)
	fetching bool
	backlog  []domain.Event
}

// NewReconciler creates a reconciler for boardID. session is the websocket
// session id, also sent with every mutation so its echo can be recognised.
func NewReconciler(api API, boardID, session string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{
		api:     api,
		boardID: boardID,
		board:   NewBoard(boardID, session),
		log:     logger.WithFields(log.Fields{"board": boardID, "session": session}),
		ops:     make(chan func(context.Context)),
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback run on the loop after every local state
// change. It must be set before Run.
func (r *Reconciler) OnChange(fn func(domain.BoardView)) { r.onChange = fn }

// Run fetches the board and then serves the loop until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	defer close(r.done)
	view, err := r.api.GetBoard(ctx, r.boardID)
	if err != nil {
		return fmt.Errorf("fetch board %s: %w", r.boardID, err)
	}
	r.board.Replace(view)
	r.changed()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-r.ops:
			op(ctx)
		}
	}
}

// MoveCard applies a card move optimistically and sends it to the server.
// It returns once local state has changed; the server's answer is merged later.
func (r *Reconciler) MoveCard(ctx context.Context, cardID, toListID string, index int) error {
	return r.mutate(ctx, func() (Intent, error) { return r.board.MoveCard(cardID, toListID, index) }, r.sendCardMove)
}

// MoveList applies a list move optimistically and sends it to the server.
func (r *Reconciler) MoveList(ctx context.Context, listID string, index int) error {
	return r.mutate(ctx, func() (Intent, error) { return r.board.MoveList(listID, index) }, r.sendListMove)
}

// Receive hands a broadcast event to the loop.
func (r *Reconciler) Receive(ctx context.Context, ev domain.Event) error {
	return r.submit(ctx, func(loopCtx context.Context) { r.apply(loopCtx, ev) })
}

// SetPresent records the presence list received when joining the board.
func (r *Reconciler) SetPresent(ctx context.Context, ps []domain.Presence) error {
	return r.submit(ctx, func(context.Context) { r.board.SetPresent(ps) })
}

// Snapshot returns a copy of the current local view.
func (r *Reconciler) Snapshot(ctx context.Context) (domain.BoardView, error) {
	var v domain.BoardView
	err := r.query(ctx, func() { v = r.board.Snapshot() })
	return v, err
}

// State returns the sync state of a card or list.
func (r *Reconciler) State(ctx context.Context, id string) (SyncState, error) {
	var s SyncState
	err := r.query(ctx, func() { s = r.board.State(id) })
	return s, err
}

// Present returns the sessions on the board as last reported.
func (r *Reconciler) Present(ctx context.Context) ([]domain.Presence, error) {
	var ps []domain.Presence
	err := r.query(ctx, func() { ps = r.board.Present() })
	return ps, err
}

func (r *Reconciler) mutate(ctx context.Context, local func() (Intent, error), send func(context.Context, Intent)) error {
	errc := make(chan error, 1)
	err := r.submit(ctx, func(loopCtx context.Context) {
		in, err := local()
		errc <- err
		if err != nil {
			return
		}
		r.changed()
		go send(loopCtx, in)
	})
	if err != nil {
		return err
	}
	return <-errc
}

func (r *Reconciler) sendCardMove(ctx context.Context, in Intent) {
	res, err := r.api.MoveCard(ctx, in.EntityID, in.Request)
	r.post(func(ctx context.Context) {
		if err == nil {
			err = r.board.AckCardMove(in, res)
		} else {
			r.board.Forget(in)
		}
		r.settle(ctx, "card", in.EntityID, err)
	})
}

func (r *Reconciler) sendListMove(ctx context.Context, in Intent) {
	res, err := r.api.MoveList(ctx, in.EntityID, in.Request)
	r.post(func(ctx context.Context) {
		if err == nil {
			err = r.board.AckListMove(in, res)
		} else {
			r.board.Forget(in)
		}
		r.settle(ctx, "list", in.EntityID, err)
	})
}

// settle finishes a mutation: any failure discards local state via re-fetch.
func (r *Reconciler) settle(ctx context.Context, kind, id string, err error) {
	if err != nil {
		r.log.WithError(err).WithField(kind, id).Warn("move not confirmed, re-fetching board")
		r.refetch(ctx)
		return
	}
	r.changed()
}

func (r *Reconciler) apply(ctx context.Context, ev domain.Event) {
	if r.fetching {
		r.backlog = append(r.backlog, ev)
		return
	}
	outcome, err := r.board.Apply(ev)
	switch {
	case errors.Is(err, ErrRefetch):
		r.log.WithError(err).Info("event references missing state, re-fetching board")
		r.refetch(ctx)
	case err != nil:
		r.log.WithError(err).Warn("event not applied")
	case outcome == Applied:
		r.changed()
	}
}

// refetch replaces local state with the server's. Events arriving meanwhile
// are applied on top of the fetched state.
func (r *Reconciler) refetch(ctx context.Context) {
	if r.fetching {
		return
	}
	r.fetching = true
	go r.fetch(ctx)
}

func (r *Reconciler) fetch(ctx context.Context) {
	view, err := r.api.GetBoard(ctx, r.boardID)
	r.post(func(ctx context.Context) {
		if err != nil {
			r.log.WithError(err).Error("board re-fetch failed")
			time.AfterFunc(refetchRetryDelay, func() { r.fetch(ctx) })
			return
		}
		r.fetching = false
		r.board.Replace(view)
		backlog := r.backlog
		r.backlog = nil
		for _, ev := range backlog {
			r.apply(ctx, ev)
		}
		r.changed()
	})
}

func (r *Reconciler) changed() {
	if r.onChange != nil {
		r.onChange(r.board.Snapshot())
	}
}

func (r *Reconciler) submit(ctx context.Context, op func(context.Context)) error {
	select {
	case r.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
}

func (r *Reconciler) query(ctx context.Context, read func()) error {
	ready := make(chan struct{})
	if err := r.submit(ctx, func(context.Context) { read(); close(ready) }); err != nil {
		return err
	}
	<-ready
	return nil
}

func (r *Reconciler) post(op func(context.Context)) {
	select {
	case r.ops <- op:
	case <-r.done:
	}
}
