// Package aggregate derives engagement snapshots from raw reaction and
// comment state. Everything here is pure: the same inputs always produce
// the same snapshot, so recomputation is idempotent and safe to retry.
package aggregate

import (
	"math"
	"time"

	"hearthsync/pkg/config"
	"hearthsync/pkg/models"
)

// Params holds the warmth tuning knobs, resolved from config once at startup.
type Params struct {
	HalfLife   time.Duration
	UserCap    float64
	Saturation float64
}

// FromConfig builds Params from the engagement config section.
func FromConfig(c config.EngagementConfig) Params {
	return Params{
		HalfLife:   c.WarmthHalfLife.Duration(),
		UserCap:    c.WarmthUserCap,
		Saturation: c.WarmthSaturation,
	}
}

// commentWeight is the raw warmth contribution of one comment; reactions
// contribute their intensity (1..3).
const commentWeight = 1.5

// Recompute builds the engagement snapshot for a post from its full
// reaction and comment state. version is the post's engagement version at
// the time the state was read.
func Recompute(postID string, reactions []*models.Reaction, comments []*models.Comment, version uint64, now time.Time, p Params) *models.EngagementSnapshot {
	counts := map[string]int{}
	users := map[string]float64{}

	for _, r := range reactions {
		counts[r.Type]++
		w := float64(r.Intensity)
		if w < 1 {
			w = 1
		}
		users[r.User] += w * decay(now.UnixNano()-r.CreatedTS, p.HalfLife)
	}
	for _, c := range comments {
		users[c.Author] += commentWeight * decay(now.UnixNano()-c.CreatedTS, p.HalfLife)
	}

	var sum float64
	for _, w := range users {
		if p.UserCap > 0 && w > p.UserCap {
			w = p.UserCap
		}
		sum += w
	}

	return &models.EngagementSnapshot{
		Post:               postID,
		ReactionCounts:     counts,
		CommentCount:       len(comments),
		DistinctUsers:      len(users),
		WarmthScore:        1 - math.Exp(-p.Saturation*sum),
		LastUpdatedVersion: version,
	}
}

// DistinctReactors counts the distinct users with an active reaction.
func DistinctReactors(reactions []*models.Reaction) int {
	seen := map[string]struct{}{}
	for _, r := range reactions {
		seen[r.User] = struct{}{}
	}
	return len(seen)
}

// decay returns the exponential half-life decay factor for the given age.
// Future timestamps decay as age zero.
func decay(ageNS int64, halfLife time.Duration) float64 {
	if halfLife <= 0 || ageNS <= 0 {
		return 1
	}
	return math.Exp2(-float64(ageNS) / float64(halfLife.Nanoseconds()))
}
