package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ErrDispatcherClosed is returned by Publish after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// DispatchConfig sizes the dispatcher's worker pool.
type DispatchConfig struct {
	Workers int
	// Buffer is the total queue size, split evenly across workers.
	Buffer int
	// HandoffTimeout is how long Publish waits on a full queue before it
	// reports the dispatcher as saturated. It keeps waiting afterwards.
	HandoffTimeout time.Duration
	// PublishTimeout bounds one downstream publish.
	PublishTimeout time.Duration
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Buffer < 0 {
		c.Buffer = 0
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher takes events off the request path. Each board is pinned to one
// worker, so events of a board reach the next publisher in the order they
// were handed to Publish.
type Dispatcher struct {
	next domain.Publisher
	cfg  DispatchConfig
	log  *log.Logger

	mu     sync.RWMutex
	shards []chan domain.Event
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(next domain.Publisher, cfg DispatchConfig, logger *log.Logger) *Dispatcher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	cfg = cfg.withDefaults()
	per := (cfg.Buffer + cfg.Workers - 1) / cfg.Workers
	d := &Dispatcher{
		next:   next,
		cfg:    cfg,
		log:    logger,
		shards: make([]chan domain.Event, cfg.Workers),
	}
	for i := range d.shards {
		d.shards[i] = make(chan domain.Event, per)
		d.wg.Add(1)
		go d.worker(i, d.shards[i])
	}
	logger.Infof("broadcast dispatcher started, workers: %d, buffer per worker: %d, handoff: %v", cfg.Workers, per, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int, jobs <-chan domain.Event) {
	defer d.wg.Done()
	for ev := range jobs {
		if err := d.send(ev); err != nil {
			d.log.Errorf("publish failed, err: %v, board: %s, event: %s, worker: %d", err, ev.BoardID, ev.Type, id)
		}
	}
}

func (d *Dispatcher) send(ev domain.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
	defer cancel()
	return d.next.Publish(ctx, ev)
}

func (d *Dispatcher) shard(boardID string) chan domain.Event {
	return d.shards[xxhash.Sum64String(boardID)%uint64(len(d.shards))]
}

// Publish queues ev behind the earlier events of its board. On a full queue
// it waits for the board's worker rather than overtaking queued events.
func (d *Dispatcher) Publish(_ context.Context, ev domain.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	jobs := d.shard(ev.BoardID)
	select {
	case jobs <- ev:
		return nil
	default:
	}
	if d.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(d.cfg.HandoffTimeout)
		defer timer.Stop()
		select {
		case jobs <- ev:
			return nil
		case <-timer.C:
		}
	}
	d.log.WithFields(log.Fields{"board": ev.BoardID, "event": ev.Type}).Warn("dispatcher saturated, waiting for board worker")
	jobs <- ev
	return nil
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, jobs := range d.shards {
		close(jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
