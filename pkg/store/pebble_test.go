package store

import (
	"errors"
	"testing"

	"hearthsync/pkg/models"
)

func setup(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestSaveAndGetPost(t *testing.T) {
	setup(t)
	p := &models.Post{ID: "p1", Room: "r1", Author: "mom", MilestoneWeek: 20, CreatedTS: 100}
	if err := SavePost(p); err != nil {
		t.Fatalf("SavePost: %v", err)
	}
	got, err := GetPost("p1")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Room != "r1" || got.MilestoneWeek != 20 || got.EngagementVersion != 0 {
		t.Fatalf("post mismatch: %+v", got)
	}
	if _, err := GetPost("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitReactionWritesLogRowAndMeta(t *testing.T) {
	setup(t)
	p := &models.Post{ID: "p1", Room: "r1", CreatedTS: 100}
	if err := SavePost(p); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	p.EngagementVersion = 1
	mut := &models.Mutation{Post: "p1", Version: 1, Kind: models.MutReactionAdded, User: "alice", ReactionType: models.ReactionLove, Intensity: 2, TS: 200}
	r := &models.Reaction{Post: "p1", User: "alice", Type: models.ReactionLove, Intensity: 2, CreatedTS: 200, Version: 1}
	if err := CommitReaction(p, mut, r); err != nil {
		t.Fatalf("CommitReaction: %v", err)
	}

	got, err := GetReaction("p1", "alice")
	if err != nil {
		t.Fatalf("GetReaction: %v", err)
	}
	if got.Type != models.ReactionLove || got.Version != 1 {
		t.Fatalf("reaction mismatch: %+v", got)
	}
	meta, err := GetPost("p1")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if meta.EngagementVersion != 1 {
		t.Fatalf("version not persisted: %d", meta.EngagementVersion)
	}
	muts, err := ListMutations("p1", 1, 0)
	if err != nil {
		t.Fatalf("ListMutations: %v", err)
	}
	if len(muts) != 1 || muts[0].Kind != models.MutReactionAdded {
		t.Fatalf("mutation log wrong: %+v", muts)
	}
}

func TestCommitReactionRemovalDeletesRow(t *testing.T) {
	setup(t)
	p := &models.Post{ID: "p1", Room: "r1", CreatedTS: 100}
	_ = SavePost(p)

	p.EngagementVersion = 1
	add := &models.Mutation{Post: "p1", Version: 1, Kind: models.MutReactionAdded, User: "alice", ReactionType: models.ReactionHug}
	if err := CommitReaction(p, add, &models.Reaction{Post: "p1", User: "alice", Type: models.ReactionHug, Intensity: 1, Version: 1}); err != nil {
		t.Fatalf("CommitReaction add: %v", err)
	}

	p.EngagementVersion = 2
	rem := &models.Mutation{Post: "p1", Version: 2, Kind: models.MutReactionRemoved, User: "alice", ReactionType: models.ReactionHug}
	if err := CommitReaction(p, rem, nil); err != nil {
		t.Fatalf("CommitReaction remove: %v", err)
	}

	if _, err := GetReaction("p1", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reaction row survived removal: %v", err)
	}
	// the log keeps both entries
	muts, _ := ListMutations("p1", 1, 0)
	if len(muts) != 2 || muts[1].Kind != models.MutReactionRemoved {
		t.Fatalf("log wrong after removal: %+v", muts)
	}
}

func TestCommentClientIDIndex(t *testing.T) {
	setup(t)
	p := &models.Post{ID: "p1", Room: "r1", CreatedTS: 100}
	_ = SavePost(p)

	p.EngagementVersion = 1
	c := &models.Comment{ID: "c1", Post: "p1", Author: "bob", Content: "hi", Depth: 1, Version: 1, ClientID: "11111111-2222-3333-4444-555555555555"}
	mut := &models.Mutation{Post: "p1", Version: 1, Kind: models.MutCommentAdded, User: "bob", CommentID: "c1", Content: "hi", Depth: 1}
	if err := CommitComment(p, mut, c); err != nil {
		t.Fatalf("CommitComment: %v", err)
	}

	got, err := GetCommentByClientID("p1", c.ClientID)
	if err != nil {
		t.Fatalf("GetCommentByClientID: %v", err)
	}
	if got.ID != "c1" || got.Author != "bob" {
		t.Fatalf("comment mismatch: %+v", got)
	}
	if _, err := GetCommentByClientID("p1", "99999999-8888-7777-6666-555555555555"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMutationsFromVersion(t *testing.T) {
	setup(t)
	p := &models.Post{ID: "p1", Room: "r1", CreatedTS: 100}
	_ = SavePost(p)
	for v := uint64(1); v <= 5; v++ {
		p.EngagementVersion = v
		mut := &models.Mutation{Post: "p1", Version: v, Kind: models.MutReactionAdded, User: "u", ReactionType: models.ReactionLove}
		if err := CommitReaction(p, mut, &models.Reaction{Post: "p1", User: "u", Type: models.ReactionLove, Intensity: 1, Version: v}); err != nil {
			t.Fatalf("CommitReaction v=%d: %v", v, err)
		}
	}

	muts, err := ListMutations("p1", 3, 0)
	if err != nil {
		t.Fatalf("ListMutations: %v", err)
	}
	if len(muts) != 3 || muts[0].Version != 3 || muts[2].Version != 5 {
		t.Fatalf("from-version scan wrong: %+v", muts)
	}

	limited, _ := ListMutations("p1", 1, 2)
	if len(limited) != 2 || limited[1].Version != 2 {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestRoomFeedReverseOrderAndPaging(t *testing.T) {
	setup(t)
	for i, id := range []string{"a", "b", "c", "d"} {
		p := &models.Post{ID: id, Room: "r1", CreatedTS: int64(100 + i)}
		if err := SavePost(p); err != nil {
			t.Fatalf("SavePost %s: %v", id, err)
		}
	}
	// different room must not leak in
	_ = SavePost(&models.Post{ID: "x", Room: "r2", CreatedTS: 500})

	page, err := ListRoomFeed("r1", 0, "", 2)
	if err != nil {
		t.Fatalf("ListRoomFeed: %v", err)
	}
	if len(page) != 2 || page[0] != "d" || page[1] != "c" {
		t.Fatalf("first page wrong: %v", page)
	}

	// resume strictly before c (ts=102)
	page2, err := ListRoomFeed("r1", 102, "c", 10)
	if err != nil {
		t.Fatalf("ListRoomFeed page2: %v", err)
	}
	if len(page2) != 2 || page2[0] != "b" || page2[1] != "a" {
		t.Fatalf("second page wrong: %v", page2)
	}
}

func TestCelebrationStateRoundTrip(t *testing.T) {
	setup(t)
	st, err := GetCelebration("p1")
	if err != nil {
		t.Fatalf("GetCelebration fresh: %v", err)
	}
	if st.Fired("first_reaction") {
		t.Fatalf("fresh state has fired triggers")
	}
	st.Mark("first_reaction")
	if err := SaveCelebration(st); err != nil {
		t.Fatalf("SaveCelebration: %v", err)
	}
	got, err := GetCelebration("p1")
	if err != nil {
		t.Fatalf("GetCelebration: %v", err)
	}
	if !got.Fired("first_reaction") {
		t.Fatalf("fired trigger not persisted")
	}
}

func TestListPostIDsSkipsOtherRows(t *testing.T) {
	setup(t)
	p := &models.Post{ID: "p1", Room: "r1", CreatedTS: 1}
	_ = SavePost(p)
	p.EngagementVersion = 1
	mut := &models.Mutation{Post: "p1", Version: 1, Kind: models.MutReactionAdded, User: "u", ReactionType: models.ReactionLove}
	_ = CommitReaction(p, mut, &models.Reaction{Post: "p1", User: "u", Type: models.ReactionLove, Intensity: 1, Version: 1})

	ids, err := ListPostIDs()
	if err != nil {
		t.Fatalf("ListPostIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("ListPostIDs = %v, want [p1]", ids)
	}
}

func TestNotOpenErrors(t *testing.T) {
	// no setup: store closed
	if err := SavePost(&models.Post{ID: "p", Room: "r"}); err == nil {
		t.Fatalf("expected error on closed store")
	}
	if Ready() {
		t.Fatalf("Ready on closed store")
	}
}
