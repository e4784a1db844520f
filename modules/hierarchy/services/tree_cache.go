package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
	"github.com/iota-uz/feedback-hub/pkg/composables"
)

// TreeCache stores built forests per organization. Cached forests are shared
// and must be treated as read-only.
//
// Every organization carries a generation that Invalidate bumps. Readers take
// the generation before loading nodes and hand it back to Set; a Set whose
// generation is no longer current is dropped, so a forest read while a write
// was committing never lands in the cache.
type TreeCache interface {
	Get(ctx context.Context, orgID uuid.UUID) ([]*hierarchy.Node, bool)
	Generation(ctx context.Context, orgID uuid.UUID) uint64
	Set(ctx context.Context, orgID uuid.UUID, gen uint64, forest []*hierarchy.Node)
	Invalidate(ctx context.Context, orgID uuid.UUID, reason string)
}

type noopTreeCache struct{}

func NewNoopTreeCache() TreeCache { return noopTreeCache{} }

func (noopTreeCache) Get(context.Context, uuid.UUID) ([]*hierarchy.Node, bool) { return nil, false }
func (noopTreeCache) Generation(context.Context, uuid.UUID) uint64 { return 0 }
func (noopTreeCache) Set(context.Context, uuid.UUID, uint64, []*hierarchy.Node) {}
func (noopTreeCache) Invalidate(context.Context, uuid.UUID, string) {}

type memoryEntry struct {
	forest    []*hierarchy.Node
	expiresAt time.Time
}

type memoryTreeCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]memoryEntry
	gens    map[uuid.UUID]uint64
}

func NewMemoryTreeCache(ttl time.Duration) TreeCache {
	return &memoryTreeCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]memoryEntry),
		gens:    make(map[uuid.UUID]uint64),
	}
}

func (c *memoryTreeCache) Get(_ context.Context, orgID uuid.UUID) ([]*hierarchy.Node, bool) {
	c.mu.RLock()
	e, ok := c.entries[orgID]
	c.mu.RUnlock()
	if ok && c.ttl > 0 && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, orgID)
		c.mu.Unlock()
		ok = false
	}
	recordCacheRequest("memory", ok)
	if !ok {
		return nil, false
	}
	return e.forest, true
}

func (c *memoryTreeCache) Generation(_ context.Context, orgID uuid.UUID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[orgID]
}

func (c *memoryTreeCache) Set(_ context.Context, orgID uuid.UUID, gen uint64, forest []*hierarchy.Node) {
	if orgID == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[orgID] != gen {
		return
	}
	c.entries[orgID] = memoryEntry{forest: forest, expiresAt: c.now().Add(c.ttl)}
}

func (c *memoryTreeCache) Invalidate(_ context.Context, orgID uuid.UUID, reason string) {
	if orgID == uuid.Nil {
		return
	}
	c.mu.Lock()
	c.gens[orgID]++
	delete(c.entries, orgID)
	c.mu.Unlock()
	recordCacheInvalidate(reason)
}

type redisTreeCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisTreeCache(client redis.UniversalClient, ttl time.Duration) TreeCache {
	return &redisTreeCache{client: client, ttl: ttl}
}

var errStaleGeneration = errors.New("tree cache: generation moved")

func redisTreeKey(orgID uuid.UUID) string {
	return "feedback-hub:hierarchy:tree:" + orgID.String()
}

func redisGenerationKey(orgID uuid.UUID) string {
	return "feedback-hub:hierarchy:gen:" + orgID.String()
}

func (c *redisTreeCache) Get(ctx context.Context, orgID uuid.UUID) ([]*hierarchy.Node, bool) {
	raw, err := c.client.Get(ctx, redisTreeKey(orgID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			composables.UseLogger(ctx).WithError(err).Warn("tree cache: redis get failed")
		}
		recordCacheRequest("redis", false)
		return nil, false
	}
	var forest []*hierarchy.Node
	if err := json.Unmarshal(raw, &forest); err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("tree cache: discarding undecodable entry")
		recordCacheRequest("redis", false)
		return nil, false
	}
	recordCacheRequest("redis", true)
	return forest, true
}

func (c *redisTreeCache) Generation(ctx context.Context, orgID uuid.UUID) uint64 {
	gen, err := c.client.Get(ctx, redisGenerationKey(orgID)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		composables.UseLogger(ctx).WithError(err).Warn("tree cache: redis generation read failed")
	}
	return gen
}

// Set writes the forest only while the generation key still holds gen. WATCH
// aborts the transaction when an Invalidate from any process lands in between.
func (c *redisTreeCache) Set(ctx context.Context, orgID uuid.UUID, gen uint64, forest []*hierarchy.Node) {
	raw, err := json.Marshal(forest)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("tree cache: encode failed")
		return
	}
	genKey := redisGenerationKey(orgID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisTreeKey(orgID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
	default:
		composables.UseLogger(ctx).WithError(err).Warn("tree cache: redis set failed")
	}
}

func (c *redisTreeCache) Invalidate(ctx context.Context, orgID uuid.UUID, reason string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, redisGenerationKey(orgID))
		pipe.Del(ctx, redisTreeKey(orgID))
		return nil
	})
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("tree cache: redis invalidate failed")
		return
	}
	recordCacheInvalidate(reason)
}
