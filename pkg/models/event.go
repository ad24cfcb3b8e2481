package models

import "encoding/json"

// Event kinds beyond the mutation kinds.
const (
	EventCelebration = "celebration"
	EventSnapshot    = "snapshot"
)

// Event is one frame on a room's broadcast stream. Immutable once emitted;
// versions for the same post are strictly increasing within a subscriber's
// delivered stream and consumers de-duplicate by (post, version).
type Event struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Post    string          `json:"post,omitempty"`
	Version uint64          `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomSnapshot is the payload of the initial snapshot frame sent to a new
// subscriber: current engagement state for recently active posts, so a
// client joining mid-stream never replays full mutation history.
type RoomSnapshot struct {
	Room  string                `json:"room"`
	Posts []*EngagementSnapshot `json:"posts"`
}

// CelebrationPayload is the payload of a celebration event.
type CelebrationPayload struct {
	Trigger string  `json:"trigger"`
	Warmth  float64 `json:"warmth,omitempty"`
	// Week is set for milestone_week celebrations.
	Week int `json:"week,omitempty"`
}
