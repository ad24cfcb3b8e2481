package cache

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTier is the warm tier of the snapshot cache, shared between engine
// instances. Entries carry a jittered TTL so a burst of writes does not
// expire as a thundering herd.
type redisTier struct {
	client    *redis.Client
	ttl       time.Duration
	ttlJitter time.Duration
}

func newRedisTier(addr, password string, db int, ttl, jitter time.Duration) (*redisTier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisTier{client: rdb, ttl: ttl, ttlJitter: jitter}, nil
}

func (r *redisTier) key(k string) string { return "hearthsync:snap:" + k }

func (r *redisTier) get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (r *redisTier) set(ctx context.Context, key string, value []byte) error {
	ttl := r.ttl
	if r.ttlJitter > 0 {
		ttl += time.Duration(rand.Int63n(int64(r.ttlJitter)))
	}
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisTier) del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// flush removes all snapshot entries, using SCAN to avoid blocking redis.
func (r *redisTier) flush(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "hearthsync:snap:*", 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *redisTier) close() error { return r.client.Close() }
