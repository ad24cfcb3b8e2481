package celebrate

import (
	"testing"

	"hearthsync/pkg/config"
	"hearthsync/pkg/models"
)

func testEngine() *Engine {
	return New(config.CelebrationsConfig{
		WarmthThreshold:   0.7,
		ReactorMilestones: []int{3, 5, 10},
		MilestoneWeeks:    []int{12, 20, 40},
	})
}

func TestEnabledByDefault(t *testing.T) {
	// an engine built without the opt-out evaluates triggers
	e := New(config.CelebrationsConfig{WarmthThreshold: 0.7})
	state := &models.CelebrationState{Post: "p1"}
	fired := e.Evaluate(&models.Post{ID: "p1", Room: "r1"}, &models.EngagementSnapshot{}, 1, state)
	if len(fired) != 1 || fired[0].Trigger != TriggerFirstReaction {
		t.Fatalf("default engine did not fire: %+v", fired)
	}
}

func TestFirstReactionFiresOnce(t *testing.T) {
	e := testEngine()
	post := &models.Post{ID: "p1", Room: "r1"}
	state := &models.CelebrationState{Post: "p1"}
	snap := &models.EngagementSnapshot{Post: "p1", WarmthScore: 0.1}

	fired := e.Evaluate(post, snap, 1, state)
	if len(fired) != 1 || fired[0].Trigger != TriggerFirstReaction {
		t.Fatalf("expected first_reaction, got %+v", fired)
	}
	// same state again: nothing new
	if again := e.Evaluate(post, snap, 1, state); len(again) != 0 {
		t.Fatalf("first_reaction fired twice: %+v", again)
	}
}

func TestReactorMilestonesFireTogether(t *testing.T) {
	e := testEngine()
	post := &models.Post{ID: "p1", Room: "r1"}
	state := &models.CelebrationState{Post: "p1"}
	snap := &models.EngagementSnapshot{Post: "p1"}

	// jumping straight past several thresholds fires all of them at once
	fired := e.Evaluate(post, snap, 6, state)
	names := map[string]bool{}
	for _, f := range fired {
		names[f.Trigger] = true
	}
	for _, want := range []string{TriggerFirstReaction, ReactorTrigger(3), ReactorTrigger(5)} {
		if !names[want] {
			t.Fatalf("missing trigger %s in %+v", want, fired)
		}
	}
	if names[ReactorTrigger(10)] {
		t.Fatalf("reactors_10 fired early")
	}
}

func TestWarmthThreshold(t *testing.T) {
	e := testEngine()
	post := &models.Post{ID: "p1", Room: "r1"}
	state := &models.CelebrationState{Post: "p1"}

	if fired := e.Evaluate(post, &models.EngagementSnapshot{WarmthScore: 0.69}, 0, state); len(fired) != 0 {
		t.Fatalf("warmth fired below threshold: %+v", fired)
	}
	fired := e.Evaluate(post, &models.EngagementSnapshot{WarmthScore: 0.75}, 0, state)
	if len(fired) != 1 || fired[0].Trigger != TriggerWarmth {
		t.Fatalf("expected warmth_high, got %+v", fired)
	}
	if fired[0].Warmth != 0.75 {
		t.Fatalf("warmth payload missing: %+v", fired[0])
	}
	// warmth dipping below and rising again must not re-fire
	if again := e.Evaluate(post, &models.EngagementSnapshot{WarmthScore: 0.9}, 0, state); len(again) != 0 {
		t.Fatalf("warmth_high fired twice: %+v", again)
	}
}

func TestMilestoneWeekNeedsEngagement(t *testing.T) {
	e := testEngine()
	post := &models.Post{ID: "p1", Room: "r1", MilestoneWeek: 20}
	state := &models.CelebrationState{Post: "p1"}

	// no engagement yet: quiet
	if fired := e.Evaluate(post, &models.EngagementSnapshot{}, 0, state); len(fired) != 0 {
		t.Fatalf("milestone fired with no engagement: %+v", fired)
	}
	// a first comment counts as engagement
	fired := e.Evaluate(post, &models.EngagementSnapshot{CommentCount: 1}, 0, state)
	found := false
	for _, f := range fired {
		if f.Trigger == WeekTrigger(20) {
			found = true
			if f.Week != 20 {
				t.Fatalf("week payload missing: %+v", f)
			}
		}
	}
	if !found {
		t.Fatalf("week_20 did not fire: %+v", fired)
	}
}

func TestNonMilestoneWeekNeverFires(t *testing.T) {
	e := testEngine()
	post := &models.Post{ID: "p1", Room: "r1", MilestoneWeek: 13}
	state := &models.CelebrationState{Post: "p1"}
	fired := e.Evaluate(post, &models.EngagementSnapshot{CommentCount: 3}, 2, state)
	for _, f := range fired {
		if f.Trigger == WeekTrigger(13) {
			t.Fatalf("week_13 is not a configured milestone")
		}
	}
}

func TestDisabledEngine(t *testing.T) {
	e := New(config.CelebrationsConfig{Disabled: true, WarmthThreshold: 0.7})
	post := &models.Post{ID: "p1", Room: "r1"}
	state := &models.CelebrationState{Post: "p1"}
	if fired := e.Evaluate(post, &models.EngagementSnapshot{WarmthScore: 1}, 10, state); fired != nil {
		t.Fatalf("disabled engine fired: %+v", fired)
	}
}

func TestStatePersistsAcrossEngines(t *testing.T) {
	// a restart builds a new Engine; persisted state must still suppress
	state := &models.CelebrationState{Post: "p1"}
	post := &models.Post{ID: "p1", Room: "r1"}
	snap := &models.EngagementSnapshot{}

	first := testEngine().Evaluate(post, snap, 1, state)
	if len(first) == 0 {
		t.Fatalf("expected first fire")
	}
	second := testEngine().Evaluate(post, snap, 1, state)
	if len(second) != 0 {
		t.Fatalf("restart re-fired triggers: %+v", second)
	}
}
