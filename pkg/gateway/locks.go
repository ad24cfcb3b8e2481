package gateway

import (
	"hash/fnv"
	"sync"
)

const lockShards = 256

// lockTable serializes writers per post with a fixed shard table. Two posts
// may share a shard; that only costs spurious contention, never lost
// updates. Version minting, the store commit and the fanout enqueue all
// happen under the post's lock, which is what makes the per-post version
// sequence gapless and the broadcast order match the commit order.
type lockTable struct {
	shards [lockShards]sync.Mutex
}

func newLockTable() *lockTable { return &lockTable{} }

func (t *lockTable) lock(postID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(postID))
	m := &t.shards[h.Sum32()%lockShards]
	m.Lock()
	return m
}
