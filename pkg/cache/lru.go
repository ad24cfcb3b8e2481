package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry struct {
	key     string
	value   []byte
	version uint64
	expires time.Time
}

// lru is a fixed-capacity LRU map with per-entry TTL. It is the hot tier of
// the snapshot cache; everything it holds must be reproducible from the
// store.
type lru struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
}

func newLRU(capacity int, ttl time.Duration) *lru {
	if capacity <= 0 {
		capacity = 1024
	}
	return &lru{
		cap:     capacity,
		ttl:     ttl,
		order:   list.New(),
		entries: map[string]*list.Element{},
	}
}

// get returns the cached value and its version, or ok=false on miss or
// expiry.
func (l *lru) get(key string) (value []byte, version uint64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, found := l.entries[key]
	if !found {
		return nil, 0, false
	}
	ent := el.Value.(*lruEntry)
	if !ent.expires.IsZero() && time.Now().After(ent.expires) {
		l.order.Remove(el)
		delete(l.entries, key)
		return nil, 0, false
	}
	l.order.MoveToFront(el)
	return ent.value, ent.version, true
}

// putIfNewer inserts value unless an entry with an equal or higher version
// already exists; out-of-order recomputes never clobber fresher state.
func (l *lru) putIfNewer(key string, value []byte, version uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var expires time.Time
	if l.ttl > 0 {
		expires = time.Now().Add(l.ttl)
	}
	if el, found := l.entries[key]; found {
		ent := el.Value.(*lruEntry)
		if ent.version > version {
			return
		}
		ent.value = value
		ent.version = version
		ent.expires = expires
		l.order.MoveToFront(el)
		return
	}
	el := l.order.PushFront(&lruEntry{key: key, value: value, version: version, expires: expires})
	l.entries[key] = el
	for l.order.Len() > l.cap {
		oldest := l.order.Back()
		if oldest == nil {
			break
		}
		l.order.Remove(oldest)
		delete(l.entries, oldest.Value.(*lruEntry).key)
	}
}

func (l *lru) invalidate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, found := l.entries[key]; found {
		l.order.Remove(el)
		delete(l.entries, key)
	}
}

func (l *lru) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
