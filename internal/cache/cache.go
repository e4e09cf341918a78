// Package cache provides the read-through cache used for single-todo lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a cached todo stays valid.
const DefaultTTL = 5 * time.Minute

// TodoCache caches todos keyed by owner and id, so a hit can never leak
// another user's record.
//
// Reads populate the cache with Fill, which never replaces an existing entry.
// Writers use Set and Delete, so a read that raced with a write cannot put
// the older row back.
type TodoCache interface {
	Get(ctx context.Context, ownerID, id int64) (models.Todo, bool)
	Fill(ctx context.Context, todo models.Todo)
	Set(ctx context.Context, todo models.Todo)
	Delete(ctx context.Context, ownerID, id int64)
}

// Nop is used when no cache backend is configured.
type Nop struct{}

func (Nop) Get(context.Context, int64, int64) (models.Todo, bool) { return models.Todo{}, false }
func (Nop) Fill(context.Context, models.Todo)                     {}
func (Nop) Set(context.Context, models.Todo)                      {}
func (Nop) Delete(context.Context, int64, int64)                  {}

// RedisTodoCache stores todos as JSON in Redis.
type RedisTodoCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string) (*RedisTodoCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return &RedisTodoCache{rdb: rdb, ttl: DefaultTTL}, nil
}

// Close releases the Redis connection pool.
func (c *RedisTodoCache) Close() error {
	return c.rdb.Close()
}

// Key returns the cache key for a todo.
func Key(ownerID, id int64) string {
	return fmt.Sprintf("todo:%d:%d", ownerID, id)
}

// tombstone marks a deleted todo until the entry expires.
const tombstone = "-"

// cachedTodo keeps the fields the JSON view of models.Todo hides.
type cachedTodo struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	State       models.TodoState `json:"state"`
	OwnerID     int64            `json:"owner_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (c *RedisTodoCache) Get(ctx context.Context, ownerID, id int64) (models.Todo, bool) {
	key := Key(ownerID, id)
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("Todo cache read failed")
		}
		return models.Todo{}, false
	}
	if string(val) == tombstone {
		return models.Todo{}, false
	}

	var ct cachedTodo
	if err := json.Unmarshal(val, &ct); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return models.Todo{}, false
	}
	log.Debug().Str("key", key).Msg("Todo cache hit")
	return models.Todo{
		ID:          ct.ID,
		Title:       ct.Title,
		Description: ct.Description,
		State:       ct.State,
		OwnerID:     ct.OwnerID,
		CreatedAt:   ct.CreatedAt,
	}, true
}

// Fill stores todo unless the key already holds an entry or a tombstone.
func (c *RedisTodoCache) Fill(ctx context.Context, todo models.Todo) {
	key := Key(todo.OwnerID, todo.ID)
	data, ok := encode(key, todo)
	if !ok {
		return
	}
	if err := c.rdb.SetNX(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to fill the cache")
	}
}

// Set stores todo, replacing any previous entry.
func (c *RedisTodoCache) Set(ctx context.Context, todo models.Todo) {
	key := Key(todo.OwnerID, todo.ID)
	data, ok := encode(key, todo)
	if !ok {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to set the cache")
	}
}

// Delete replaces the entry with a tombstone that blocks Fill until it expires.
func (c *RedisTodoCache) Delete(ctx context.Context, ownerID, id int64) {
	key := Key(ownerID, id)
	if err := c.rdb.Set(ctx, key, tombstone, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to invalidate cache entry")
	}
}

func encode(key string, todo models.Todo) ([]byte, bool) {
	data, err := json.Marshal(cachedTodo{
		ID:          todo.ID,
		Title:       todo.Title,
		Description: todo.Description,
		State:       todo.State,
		OwnerID:     todo.OwnerID,
		CreatedAt:   todo.CreatedAt,
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Not able to encode todo for cache")
		return nil, false
	}
	return data, true
}
