package queue

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// HandlerID identifies the concrete handler the fanout worker should invoke
// for this Op. This is set by the enqueueing code (the mutation gateway)
// which has the authoritative intent for the operation. The worker will use
// Handler when present and will not probe payloads to determine dispatch.
type HandlerID string

const (
	HandlerRecompute   HandlerID = "engagement.recompute"
	HandlerBroadcast   HandlerID = "event.broadcast"
	HandlerCelebration HandlerID = "celebration.emit"
)

// Op is a lightweight in-memory representation of a fanout operation.
// Payload may be backed by a pooled ByteBuffer; consumers must call
// Item.Done() when finished.
type Op struct {
	// Handler is an explicit dispatch key set by enqueueing code.
	Handler HandlerID
	Room    string
	Post    string
	// Version is the engagement version the op was minted at.
	Version uint64
	// Payload holds the raw bytes for the operation (may be nil).
	Payload []byte
	// TS is an optional timestamp (nanoseconds).
	TS int64
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the in-memory queue.
	EnqSeq uint64
}

// Item wraps an Op and owns a pooled ByteBuffer if one was used. Consumers
// MUST call Done() exactly once after processing the item to return
// pooled resources.
type Item struct {
	Op *Op

	// internal fields
	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

// Done releases internal pooled resources (buffer + op) back to the pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.q != nil {
			atomic.AddInt64(&it.q.inFlight, -1)
			it.q = nil
		}
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		// clear slice header to avoid retention
		if it.Op != nil {
			it.Op.Payload = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer size that will be returned
// to the pooled ByteBuffer. Buffers larger than this will be dropped to
// avoid unbounded resident memory.
var maxPooledBuffer = 256 * 1024 // 256 KiB

// SetMaxPooledBuffer overrides the pooled buffer ceiling (from config).
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("fanout queue full")

// ErrQueueClosed is returned when enqueue operations are attempted after the queue has closed.
var ErrQueueClosed = errors.New("fanout queue closed")
