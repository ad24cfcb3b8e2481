package hub

import (
	"encoding/json"
	"testing"
	"time"

	"hearthsync/pkg/models"
)

func recvFrame(t *testing.T, sub *Subscriber) models.Event {
	t.Helper()
	select {
	case frame, ok := <-sub.Frames():
		if !ok {
			t.Fatalf("frame channel closed")
		}
		var ev models.Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
		return models.Event{}
	}
}

func TestSnapshotIsAlwaysFirstFrame(t *testing.T) {
	h := New(8)
	snap := &models.RoomSnapshot{Room: "r1", Posts: []*models.EngagementSnapshot{{Post: "p1", LastUpdatedVersion: 4}}}
	sub, err := h.Subscribe("r1", snap)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer h.Unsubscribe(sub)

	h.Publish(&models.Event{Type: models.MutReactionAdded, Room: "r1", Post: "p1", Version: 5})

	first := recvFrame(t, sub)
	if first.Type != models.EventSnapshot {
		t.Fatalf("first frame was %s, want snapshot", first.Type)
	}
	second := recvFrame(t, sub)
	if second.Type != models.MutReactionAdded || second.Version != 5 {
		t.Fatalf("live event out of order: %+v", second)
	}
}

func TestPerPostOrderPreserved(t *testing.T) {
	h := New(32)
	sub, err := h.Subscribe("r1", &models.RoomSnapshot{Room: "r1"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer h.Unsubscribe(sub)
	recvFrame(t, sub) // snapshot

	for v := uint64(1); v <= 10; v++ {
		h.Publish(&models.Event{Type: models.MutCommentAdded, Room: "r1", Post: "p1", Version: v})
	}
	for v := uint64(1); v <= 10; v++ {
		ev := recvFrame(t, sub)
		if ev.Version != v {
			t.Fatalf("version %d delivered out of order (got %d)", v, ev.Version)
		}
	}
}

func TestRoomIsolation(t *testing.T) {
	h := New(8)
	a, _ := h.Subscribe("rA", &models.RoomSnapshot{Room: "rA"})
	b, _ := h.Subscribe("rB", &models.RoomSnapshot{Room: "rB"})
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)
	recvFrame(t, a)
	recvFrame(t, b)

	h.Publish(&models.Event{Type: models.MutReactionAdded, Room: "rA", Post: "p1", Version: 1})

	recvFrame(t, a)
	select {
	case frame := <-b.Frames():
		t.Fatalf("event leaked across rooms: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := New(2)
	sub, err := h.Subscribe("r1", &models.RoomSnapshot{Room: "r1"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// never read: snapshot occupies one slot, publishes fill the rest
	for v := uint64(1); v <= 5; v++ {
		h.Publish(&models.Event{Type: models.MutReactionAdded, Room: "r1", Post: "p1", Version: v})
	}
	if h.SubscriberCount("r1") != 0 {
		t.Fatalf("slow subscriber not dropped")
	}
	if sub.Dropped() == 0 {
		t.Fatalf("dropped counter not incremented")
	}
	// channel must be closed so the writer loop exits
	drained := false
	for !drained {
		select {
		case _, ok := <-sub.Frames():
			if !ok {
				drained = true
			}
		case <-time.After(time.Second):
			t.Fatalf("frame channel never closed")
		}
	}
	_, _, droppedSubs := h.Stats()
	if droppedSubs != 1 {
		t.Fatalf("droppedSubs = %d, want 1", droppedSubs)
	}
}

func TestPublishToEmptyRoom(t *testing.T) {
	h := New(8)
	// no subscribers: must not panic or block
	h.Publish(&models.Event{Type: models.MutReactionAdded, Room: "empty", Post: "p1", Version: 1})
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New(8)
	sub, _ := h.Subscribe("r1", &models.RoomSnapshot{Room: "r1"})
	h.Unsubscribe(sub)
	h.Unsubscribe(sub) // double-unsubscribe must not panic
	h.Unsubscribe(nil)
	if h.RoomCount() != 0 {
		t.Fatalf("room not cleaned up")
	}
}

func TestCloseAll(t *testing.T) {
	h := New(8)
	a, _ := h.Subscribe("r1", &models.RoomSnapshot{Room: "r1"})
	b, _ := h.Subscribe("r2", &models.RoomSnapshot{Room: "r2"})
	h.CloseAll()
	if h.RoomCount() != 0 {
		t.Fatalf("rooms survived CloseAll")
	}
	for _, sub := range []*Subscriber{a, b} {
		closed := false
		for !closed {
			select {
			case _, ok := <-sub.Frames():
				if !ok {
					closed = true
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber channel never closed")
			}
		}
	}
}
