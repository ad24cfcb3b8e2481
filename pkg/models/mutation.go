package models

// Mutation kinds. These double as broadcast event kinds on the wire.
const (
	MutReactionAdded   = "reaction_added"
	MutReactionRemoved = "reaction_removed"
	MutCommentAdded    = "comment_added"
)

// Mutation is one accepted, versioned entry in a post's mutation log. The
// log is the source of truth; snapshots and counts are derived from it.
type Mutation struct {
	Post    string `json:"post"`
	Version uint64 `json:"version"`
	Kind    string `json:"kind"`
	User    string `json:"user"`
	TS      int64  `json:"ts"`
	// ClientSubmittedTS is the client's send time as reported in the
	// request, kept for latency accounting; the server never orders by it.
	ClientSubmittedTS int64 `json:"client_submitted_at,omitempty"`

	// Reaction fields (kind reaction_added / reaction_removed).
	ReactionType string `json:"reaction_type,omitempty"`
	Intensity    int    `json:"intensity,omitempty"`
	// Replaced carries the previous reaction type when an add replaced an
	// existing reaction from the same user.
	Replaced string `json:"replaced,omitempty"`

	// Comment fields (kind comment_added).
	CommentID string `json:"comment_id,omitempty"`
	Parent    string `json:"parent,omitempty"`
	Content   string `json:"content,omitempty"`
	Depth     int    `json:"depth,omitempty"`
}
