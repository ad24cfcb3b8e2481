package models

// Post is the engagement-side view of a journal post. Identity and content
// are owned by the authoring service; this engine owns only the engagement
// version counter and the milestone metadata it needs for celebrations.
type Post struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Author string `json:"author,omitempty"`
	// MilestoneWeek is the pregnancy week this post marks, 0 when the post
	// is not a milestone.
	MilestoneWeek int `json:"milestone_week,omitempty"`
	// CreatedTS is the authoring timestamp (ns), used for feed ordering.
	CreatedTS int64 `json:"created_ts,omitempty"`
	// EngagementVersion is the per-post mutation counter. Strictly
	// increasing, gapless; every accepted mutation mints exactly one.
	EngagementVersion uint64 `json:"engagement_version"`
}
