package recon

import (
	"sync"
)

// ConnState is the client's view of its event stream.
type ConnState int

const (
	// Disconnected: no stream; reads are served from local state only.
	Disconnected ConnState = iota
	// Connecting: stream requested, snapshot not yet received.
	Connecting
	// Subscribed: snapshot applied, live events flowing in order.
	Subscribed
	// Degraded: a version gap was observed; local state may be stale and
	// a snapshot resync is required before returning to Subscribed.
	Degraded
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Connection tracks stream health per post: the last version applied for
// each post and the overall state. Feed it every received event; it reports
// whether the event may be applied or a resync is needed.
type Connection struct {
	mu       sync.Mutex
	state    ConnState
	lastSeen map[string]uint64
}

// NewConnection starts in Disconnected.
func NewConnection() *Connection {
	return &Connection{state: Disconnected, lastSeen: map[string]uint64{}}
}

// State returns the current stream state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connecting marks a stream attempt in progress.
func (c *Connection) Connecting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Connecting
}

// SnapshotApplied records the versions carried by a snapshot frame and
// moves to Subscribed. A snapshot always repairs a Degraded stream.
func (c *Connection) SnapshotApplied(versions map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = map[string]uint64{}
	for post, v := range versions {
		c.lastSeen[post] = v
	}
	c.state = Subscribed
}

// Disconnect moves to Disconnected, keeping lastSeen for the next resync
// decision.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Disconnected
}

// Apply decides whether a live event may be applied. Duplicates (version
// <= last seen) are skipped. A gap degrades the stream and the caller must
// resync with a snapshot: for a known post that is version > last+1, and
// for a post absent from the snapshot anything past its first version,
// since versions 1..n-1 were never observed.
func (c *Connection) Apply(post string, version uint64) (apply bool, degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Subscribed {
		return false, c.state == Degraded
	}
	last, known := c.lastSeen[post]
	switch {
	case known && version <= last:
		// duplicate delivery, idempotent skip
		return false, false
	case known && version > last+1, !known && version > 1:
		c.state = Degraded
		return false, true
	default:
		c.lastSeen[post] = version
		return true, false
	}
}

// LastSeen returns the highest applied version for a post.
func (c *Connection) LastSeen(post string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen[post]
}
