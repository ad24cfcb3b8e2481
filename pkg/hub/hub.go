// Package hub fans broadcast events out to websocket subscribers grouped by
// room. Delivery is at-most-once per connection: a subscriber whose send
// buffer stays full is dropped rather than allowed to stall the room, and
// clients recover through the reconnect snapshot.
package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
)

// Subscriber is one websocket connection's view of a room. Frames are
// delivered in enqueue order through a bounded channel.
type Subscriber struct {
	ID   uint64
	Room string

	ch      chan []byte
	hub     *Hub
	closed  int32
	dropped uint64
}

// Frames returns the subscriber's outbound frame stream. The channel is
// closed when the subscriber is dropped or unsubscribed.
func (s *Subscriber) Frames() <-chan []byte { return s.ch }

// Dropped reports how many frames were discarded for this subscriber.
func (s *Subscriber) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

// Hub routes events to room subscribers.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]*Subscriber
	nextID uint64
	buffer int

	published   uint64
	delivered   uint64
	droppedSubs uint64
}

// New creates a Hub with the given per-subscriber buffer size.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{rooms: map[string]map[uint64]*Subscriber{}, buffer: buffer}
}

// Subscribe registers a new subscriber for a room and immediately queues
// the provided snapshot as its first frame. Registering and queueing the
// snapshot under the hub lock guarantees every live event published after
// the snapshot was taken is delivered after it, never before.
func (h *Hub) Subscribe(room string, snapshot *models.RoomSnapshot) (*Subscriber, error) {
	frame, err := json.Marshal(models.Event{
		Type:    models.EventSnapshot,
		Room:    room,
		Payload: mustRaw(snapshot),
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscriber{
		ID:   h.nextID,
		Room: room,
		ch:   make(chan []byte, h.buffer),
		hub:  h,
	}
	if h.rooms[room] == nil {
		h.rooms[room] = map[uint64]*Subscriber{}
	}
	h.rooms[room][sub.ID] = sub
	// buffer is empty here, this cannot block
	sub.ch <- frame
	logger.Info("hub_subscribed", "room", room, "subscriber", sub.ID)
	return sub, nil
}

// Unsubscribe removes the subscriber and closes its frame stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if !atomic.CompareAndSwapInt32(&sub.closed, 0, 1) {
		return
	}
	if subs, ok := h.rooms[sub.Room]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.rooms, sub.Room)
		}
	}
	close(sub.ch)
}

// Publish delivers an event to every subscriber of its room. Slow
// subscribers whose buffers are full are dropped; publishing never blocks.
func (h *Hub) Publish(ev *models.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		logger.Error("hub_marshal_failed", "room", ev.Room, "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	atomic.AddUint64(&h.published, 1)
	var slow []*Subscriber
	for _, sub := range h.rooms[ev.Room] {
		select {
		case sub.ch <- frame:
			atomic.AddUint64(&h.delivered, 1)
		default:
			atomic.AddUint64(&sub.dropped, 1)
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		atomic.AddUint64(&h.droppedSubs, 1)
		logger.Warn("hub_subscriber_dropped", "room", sub.Room, "subscriber", sub.ID, "dropped_frames", sub.Dropped())
		h.removeLocked(sub)
	}
}

// RoomCount returns the number of rooms with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// SubscriberCount returns the number of subscribers in a room.
func (h *Hub) SubscriberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Stats returns cumulative publish/delivery counters.
func (h *Hub) Stats() (published, delivered, droppedSubs uint64) {
	return atomic.LoadUint64(&h.published), atomic.LoadUint64(&h.delivered), atomic.LoadUint64(&h.droppedSubs)
}

// CloseAll drops every subscriber, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.rooms {
		for _, sub := range subs {
			if atomic.CompareAndSwapInt32(&sub.closed, 0, 1) {
				close(sub.ch)
			}
		}
	}
	h.rooms = map[string]map[uint64]*Subscriber{}
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// WriteDeadline computes the absolute deadline for a websocket write.
func WriteDeadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return time.Now().Add(timeout)
}
