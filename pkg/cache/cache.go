// Package cache is the tiered read path for engagement snapshots: a small
// in-process LRU in front of an optional shared Redis tier, falling through
// to the store. Snapshots are versioned, so stale tiers are repaired with
// replace-if-newer writes instead of global invalidation.
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"hearthsync/pkg/config"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
	"hearthsync/pkg/store"
)

// Snapshots is the tiered snapshot cache.
type Snapshots struct {
	mem   *lru
	redis *redisTier

	hits   uint64
	misses uint64
}

// New builds the cache from config. Redis is optional; when disabled the
// cache runs memory-only.
func New(c config.CacheConfig) (*Snapshots, error) {
	s := &Snapshots{
		mem: newLRU(c.Memory.Entries, c.Memory.TTL.Duration()),
	}
	if c.Redis.Enabled {
		rt, err := newRedisTier(c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.Redis.TTL.Duration(), c.Redis.TTLJitter.Duration())
		if err != nil {
			return nil, err
		}
		s.redis = rt
		logger.Info("cache_redis_enabled", "addr", c.Redis.Addr)
	}
	return s, nil
}

// Get returns the engagement snapshot for a post, reading through the tiers
// and backfilling on the way out. Returns store.ErrNotFound when the post
// has no snapshot yet.
func (s *Snapshots) Get(ctx context.Context, postID string) (*models.EngagementSnapshot, error) {
	if b, _, ok := s.mem.get(postID); ok {
		atomic.AddUint64(&s.hits, 1)
		var snap models.EngagementSnapshot
		if err := json.Unmarshal(b, &snap); err == nil {
			return &snap, nil
		}
		s.mem.invalidate(postID)
	}
	atomic.AddUint64(&s.misses, 1)

	if s.redis != nil {
		b, err := s.redis.get(ctx, postID)
		if err != nil {
			logger.Warn("cache_redis_get_failed", "post", postID, "error", err)
		} else if b != nil {
			var snap models.EngagementSnapshot
			if err := json.Unmarshal(b, &snap); err == nil {
				s.mem.putIfNewer(postID, b, snap.LastUpdatedVersion)
				return &snap, nil
			}
		}
	}

	snap, err := store.GetSnapshot(postID)
	if err != nil {
		return nil, err
	}
	s.Put(ctx, snap)
	return snap, nil
}

// Put writes a snapshot into both tiers, replacing only older versions in
// memory. Redis failures degrade to memory-only, never to an error.
func (s *Snapshots) Put(ctx context.Context, snap *models.EngagementSnapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	s.mem.putIfNewer(snap.Post, b, snap.LastUpdatedVersion)
	if s.redis != nil {
		if err := s.redis.set(ctx, snap.Post, b); err != nil {
			logger.Warn("cache_redis_set_failed", "post", snap.Post, "error", err)
		}
	}
}

// Invalidate removes a post's snapshot from both tiers.
func (s *Snapshots) Invalidate(ctx context.Context, postID string) {
	s.mem.invalidate(postID)
	if s.redis != nil {
		if err := s.redis.del(ctx, postID); err != nil {
			logger.Warn("cache_redis_del_failed", "post", postID, "error", err)
		}
	}
}

// Flush clears both tiers, for maintenance.
func (s *Snapshots) Flush(ctx context.Context) {
	s.mem = newLRU(s.mem.cap, s.mem.ttl)
	if s.redis != nil {
		if err := s.redis.flush(ctx); err != nil {
			logger.Warn("cache_redis_flush_failed", "error", err)
		}
	}
}

// Stats returns cumulative hit/miss counters and the memory tier size.
func (s *Snapshots) Stats() (hits, misses uint64, memEntries int) {
	return atomic.LoadUint64(&s.hits), atomic.LoadUint64(&s.misses), s.mem.len()
}

// Close releases the redis connection if present.
func (s *Snapshots) Close() error {
	if s.redis != nil {
		return s.redis.close()
	}
	return nil
}
