package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// RedisRelay fans events out across instances. Publish writes the event to a
// Redis channel; Run delivers everything on that channel to the local hub,
// including events this instance published.
type RedisRelay struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	log     *log.Logger

	readyOnce sync.Once
	ready     chan struct{}
	retry     time.Duration
}

func NewRedisRelay(rc *redis.Client, channel string, hub *Hub, logger *log.Logger) *RedisRelay {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisRelay{
		rc:      rc,
		channel: channel,
		hub:     hub,
		log:     logger,
		ready:   make(chan struct{}),
		retry:   time.Second,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev domain.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rc.Publish(ctx, r.channel, data).Err()
}

// Ready is closed once the first subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run subscribes to the channel until ctx is done, resubscribing when the
// subscription drops.
func (r *RedisRelay) Run(ctx context.Context) {
	for {
		r.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		r.log.WithField("channel", r.channel).Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retry):
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context) {
	sub := r.rc.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			r.log.WithError(err).WithField("channel", r.channel).Error("subscribe failed")
		}
		return
	}
	r.readyOnce.Do(func() { close(r.ready) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := domain.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				r.log.WithError(err).Error("unable to parse board event")
				continue
			}
			r.hub.Deliver(ev)
		}
	}
}
