package models

// EngagementSnapshot is the derived, cacheable engagement state of one post.
// It is always a pure function of the post's reaction/comment set; never
// hand-edited, always rebuildable.
type EngagementSnapshot struct {
	Post           string         `json:"post"`
	ReactionCounts map[string]int `json:"reaction_counts"`
	CommentCount   int            `json:"comment_count"`
	// DistinctUsers counts distinct participants (reactors plus comment
	// authors) incorporated in this snapshot.
	DistinctUsers int `json:"distinct_users"`
	// WarmthScore is the time-decayed family engagement measure in [0,1].
	WarmthScore float64 `json:"warmth_score"`
	// LastUpdatedVersion is the highest engagement version incorporated.
	LastUpdatedVersion uint64 `json:"last_updated_version"`
}

// CelebrationState records which one-shot triggers already fired for a post.
type CelebrationState struct {
	Post      string          `json:"post"`
	Triggered map[string]bool `json:"triggered,omitempty"`
}

// Fired reports whether the given trigger already fired.
func (c *CelebrationState) Fired(trigger string) bool {
	return c.Triggered[trigger]
}

// Mark records a trigger as fired.
func (c *CelebrationState) Mark(trigger string) {
	if c.Triggered == nil {
		c.Triggered = map[string]bool{}
	}
	c.Triggered[trigger] = true
}
