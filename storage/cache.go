package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Cache wraps a Store with a Redis read-through cache for boards. Board
// documents are read on every authorization check, so they are the hot path;
// lists and cards are always served by the underlying store.
//
// Every eviction bumps a per-board generation. A fill only lands when the
// generation is unchanged since before its store read, so a reader that
// loaded the board before a membership change cannot re-cache the old copy.
type Cache struct {
	domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper around base using the given Redis client and TTL.
func NewCache(base domain.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Store: base, redis: client, ttl: ttl}
}

// genTTL outlives any in-flight fill by a wide margin.
const genTTL = 24 * time.Hour

func (c *Cache) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	if b, ok := c.loadBoard(ctx, id); ok {
		return b, nil
	}
	gen := c.generation(ctx, id)
	b, err := c.Store.GetBoard(ctx, id)
	if err != nil {
		return domain.Board{}, err
	}
	c.storeBoard(ctx, b, gen)
	return b, nil
}

func (c *Cache) SetMembers(ctx context.Context, boardID string, members []domain.Member) error {
	if err := c.Store.SetMembers(ctx, boardID, members); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) loadBoard(ctx context.Context, id string) (domain.Board, bool) {
	if c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).WithField("board", id).Debug("board cache read failed")
		}
		return domain.Board{}, false
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		return domain.Board{}, false
	}
	return b, true
}

func (c *Cache) generation(ctx context.Context, id string) string {
	if c.redis == nil {
		return ""
	}
	gen, err := c.redis.Get(ctx, boardGenKey(id)).Result()
	if err != nil && err != redis.Nil {
		log.WithError(err).WithField("board", id).Debug("board cache generation read failed")
	}
	return gen
}

// storeBoard caches b unless the board was evicted after gen was read.
func (c *Cache) storeBoard(ctx context.Context, b domain.Board, gen string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	genKey := boardGenKey(b.ID)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, boardCacheKey(b.ID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if err != nil && err != redis.TxFailedErr {
		log.WithError(err).WithField("board", b.ID).Debug("board cache fill failed")
	}
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, boardGenKey(boardID))
		pipe.Expire(ctx, boardGenKey(boardID), genTTL)
		pipe.Del(ctx, boardCacheKey(boardID))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("board", boardID).Warn("board cache eviction failed")
	}
}

func boardCacheKey(id string) string {
	return "board:" + id
}

func boardGenKey(id string) string {
	return "board-gen:" + id
}
