package models

// Reaction types form a fixed vocabulary; the canonical set lives in config
// and is enforced by the gateway.
const (
	ReactionLove       = "love"
	ReactionExcited    = "excited"
	ReactionLaugh      = "laugh"
	ReactionTearsOfJoy = "tears_of_joy"
	ReactionHug        = "hug"
)

// Reaction is one user's active reaction on a post. (post, user) is a unique
// key: re-sending the same type is a no-op, a different type replaces it.
type Reaction struct {
	Post      string `json:"post"`
	User      string `json:"user"`
	Type      string `json:"type"`
	Intensity int    `json:"intensity"` // 1..3
	CreatedTS int64  `json:"created_ts"`
	// Version is the post's engagement version at time of application.
	Version uint64 `json:"version"`
}

// Comment is a threaded comment on a post. Parent forms a tree bounded by
// the configured maximum nesting depth.
type Comment struct {
	ID      string `json:"id"`
	Post    string `json:"post"`
	Parent  string `json:"parent,omitempty"`
	Author  string `json:"author"`
	Content string `json:"content"`
	// Depth is 1 for a top-level comment, parent.Depth+1 otherwise.
	Depth     int    `json:"depth"`
	CreatedTS int64  `json:"created_ts"`
	Version   uint64 `json:"version"`
	// ClientID is the client-generated idempotency key; retried creates
	// with the same ClientID return the original comment.
	ClientID string `json:"client_id,omitempty"`
}
