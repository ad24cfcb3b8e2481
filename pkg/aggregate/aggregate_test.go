package aggregate

import (
	"testing"
	"time"

	"hearthsync/pkg/models"
)

var testParams = Params{HalfLife: 48 * time.Hour, UserCap: 3, Saturation: 0.3}

func reactionAt(user, typ string, intensity int, ts time.Time) *models.Reaction {
	return &models.Reaction{Post: "p1", User: user, Type: typ, Intensity: intensity, CreatedTS: ts.UnixNano()}
}

func TestRecomputeIdempotent(t *testing.T) {
	now := time.Now()
	reactions := []*models.Reaction{
		reactionAt("alice", models.ReactionLove, 2, now.Add(-time.Hour)),
		reactionAt("bob", models.ReactionHug, 1, now.Add(-2*time.Hour)),
	}
	comments := []*models.Comment{
		{Post: "p1", Author: "carol", Content: "so happy!", Depth: 1, CreatedTS: now.Add(-30 * time.Minute).UnixNano()},
	}
	a := Recompute("p1", reactions, comments, 3, now, testParams)
	b := Recompute("p1", reactions, comments, 3, now, testParams)
	if a.WarmthScore != b.WarmthScore || a.DistinctUsers != b.DistinctUsers {
		t.Fatalf("recompute not idempotent: %+v vs %+v", a, b)
	}
	if a.CommentCount != 1 || a.DistinctUsers != 3 {
		t.Fatalf("counts wrong: %+v", a)
	}
	if a.ReactionCounts[models.ReactionLove] != 1 || a.ReactionCounts[models.ReactionHug] != 1 {
		t.Fatalf("reaction counts wrong: %+v", a.ReactionCounts)
	}
	if a.LastUpdatedVersion != 3 {
		t.Fatalf("version not carried: %d", a.LastUpdatedVersion)
	}
}

func TestWarmthBoundedAndMonotonic(t *testing.T) {
	now := time.Now()
	var reactions []*models.Reaction
	prev := 0.0
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, u := range users {
		reactions = append(reactions, reactionAt(u, models.ReactionLove, 3, now))
		s := Recompute("p1", reactions, nil, 1, now, testParams)
		if s.WarmthScore <= prev {
			t.Fatalf("warmth not increasing with participants: %f -> %f", prev, s.WarmthScore)
		}
		if s.WarmthScore < 0 || s.WarmthScore >= 1 {
			t.Fatalf("warmth out of [0,1): %f", s.WarmthScore)
		}
		prev = s.WarmthScore
	}
}

func TestUserCapLimitsSingleUser(t *testing.T) {
	now := time.Now()
	// one hyper-active user: a fresh max-intensity reaction, weight 3,
	// already at the cap, so extra comments must not raise warmth
	reactions := []*models.Reaction{reactionAt("alice", models.ReactionExcited, 3, now)}
	base := Recompute("p1", reactions, nil, 1, now, testParams)

	comments := []*models.Comment{
		{Post: "p1", Author: "alice", Content: "!!", Depth: 1, CreatedTS: now.UnixNano()},
		{Post: "p1", Author: "alice", Content: "!!!", Depth: 1, CreatedTS: now.UnixNano()},
	}
	capped := Recompute("p1", reactions, comments, 2, now, testParams)
	if capped.WarmthScore != base.WarmthScore {
		t.Fatalf("user cap not applied: %f vs %f", capped.WarmthScore, base.WarmthScore)
	}
}

func TestWarmthDecays(t *testing.T) {
	now := time.Now()
	fresh := Recompute("p1", []*models.Reaction{reactionAt("a", models.ReactionLove, 1, now)}, nil, 1, now, testParams)
	aged := Recompute("p1", []*models.Reaction{reactionAt("a", models.ReactionLove, 1, now.Add(-96*time.Hour))}, nil, 1, now, testParams)
	if aged.WarmthScore >= fresh.WarmthScore {
		t.Fatalf("aged reaction should contribute less: fresh=%f aged=%f", fresh.WarmthScore, aged.WarmthScore)
	}
	// two half-lives: weight should be a quarter of the fresh one
	if aged.WarmthScore <= 0 {
		t.Fatalf("decay must never zero out a contribution: %f", aged.WarmthScore)
	}
}

func TestFutureTimestampsDoNotAmplify(t *testing.T) {
	now := time.Now()
	future := Recompute("p1", []*models.Reaction{reactionAt("a", models.ReactionLove, 1, now.Add(time.Hour))}, nil, 1, now, testParams)
	present := Recompute("p1", []*models.Reaction{reactionAt("a", models.ReactionLove, 1, now)}, nil, 1, now, testParams)
	if future.WarmthScore > present.WarmthScore {
		t.Fatalf("future timestamp amplified warmth: %f > %f", future.WarmthScore, present.WarmthScore)
	}
}

func TestEmptyState(t *testing.T) {
	s := Recompute("p1", nil, nil, 0, time.Now(), testParams)
	if s.WarmthScore != 0 || s.DistinctUsers != 0 || s.CommentCount != 0 {
		t.Fatalf("empty state should be zero: %+v", s)
	}
}

func TestDistinctReactors(t *testing.T) {
	now := time.Now()
	rs := []*models.Reaction{
		reactionAt("a", models.ReactionLove, 1, now),
		reactionAt("b", models.ReactionHug, 1, now),
	}
	if n := DistinctReactors(rs); n != 2 {
		t.Fatalf("DistinctReactors = %d, want 2", n)
	}
	if n := DistinctReactors(nil); n != 0 {
		t.Fatalf("DistinctReactors(nil) = %d, want 0", n)
	}
}
