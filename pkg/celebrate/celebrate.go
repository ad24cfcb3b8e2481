// Package celebrate evaluates one-shot celebration triggers against a
// post's engagement state. Each trigger fires at most once per post; fired
// state is persisted by the caller so restarts never re-fire.
package celebrate

import (
	"fmt"

	"hearthsync/pkg/config"
	"hearthsync/pkg/models"
)

// Trigger names. Milestone triggers are parameterized and derive their
// persisted name from the threshold, e.g. "reactors_5", "week_20".
const (
	TriggerWarmth        = "warmth_high"
	TriggerFirstReaction = "first_reaction"
)

// ReactorTrigger is the persisted name for a distinct-reactor milestone.
func ReactorTrigger(n int) string { return fmt.Sprintf("reactors_%d", n) }

// WeekTrigger is the persisted name for a pregnancy-week milestone.
func WeekTrigger(week int) string { return fmt.Sprintf("week_%d", week) }

// Engine holds the trigger thresholds.
type Engine struct {
	enabled           bool
	warmthThreshold   float64
	reactorMilestones []int
	milestoneWeeks    map[int]bool
}

// New builds an Engine from the celebrations config section.
func New(c config.CelebrationsConfig) *Engine {
	weeks := map[int]bool{}
	for _, w := range c.MilestoneWeeks {
		weeks[w] = true
	}
	return &Engine{
		enabled:           !c.Disabled,
		warmthThreshold:   c.WarmthThreshold,
		reactorMilestones: c.ReactorMilestones,
		milestoneWeeks:    weeks,
	}
}

// Evaluate returns the celebrations newly due for a post given its fresh
// snapshot and distinct reactor count, and marks them in state. The caller
// persists state and emits the returned payloads; evaluation under the
// post's writer lock keeps marking and emission atomic.
func (e *Engine) Evaluate(post *models.Post, snap *models.EngagementSnapshot, distinctReactors int, state *models.CelebrationState) []models.CelebrationPayload {
	if e == nil || !e.enabled {
		return nil
	}
	var out []models.CelebrationPayload

	fire := func(trigger string, p models.CelebrationPayload) {
		if state.Fired(trigger) {
			return
		}
		state.Mark(trigger)
		p.Trigger = trigger
		out = append(out, p)
	}

	if snap.WarmthScore >= e.warmthThreshold {
		fire(TriggerWarmth, models.CelebrationPayload{Warmth: snap.WarmthScore})
	}
	if distinctReactors >= 1 {
		fire(TriggerFirstReaction, models.CelebrationPayload{})
	}
	for _, n := range e.reactorMilestones {
		if distinctReactors >= n {
			fire(ReactorTrigger(n), models.CelebrationPayload{})
		}
	}
	// Milestone-week posts celebrate on their first engagement.
	if post.MilestoneWeek > 0 && e.milestoneWeeks[post.MilestoneWeek] && (distinctReactors >= 1 || snap.CommentCount >= 1) {
		fire(WeekTrigger(post.MilestoneWeek), models.CelebrationPayload{Week: post.MilestoneWeek})
	}
	return out
}
