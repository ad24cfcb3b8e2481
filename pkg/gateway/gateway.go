// Package gateway is the single entry point for engagement mutations. It
// serializes writers per post, enforces the mutation taxonomy, mints the
// gapless engagement version sequence and hands accepted mutations to the
// fanout queue while still holding the post's lock, so broadcast order can
// never disagree with commit order.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hearthsync/pkg/aggregate"
	"hearthsync/pkg/cache"
	"hearthsync/pkg/celebrate"
	"hearthsync/pkg/config"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
	"hearthsync/pkg/queue"
	"hearthsync/pkg/store"
	"hearthsync/pkg/utils"
)

var validReactions = map[string]bool{
	models.ReactionLove:       true,
	models.ReactionExcited:    true,
	models.ReactionLaugh:      true,
	models.ReactionTearsOfJoy: true,
	models.ReactionHug:        true,
}

// Result is the synchronous outcome of an accepted mutation: the minted
// version and the fresh snapshot, computed before the HTTP response so
// optimistic clients can confirm immediately.
type Result struct {
	Version  uint64
	Snapshot *models.EngagementSnapshot
	Mutation *models.Mutation
	// NoOp is set when the request changed nothing (removing an absent
	// reaction); no version was minted and Mutation is nil.
	NoOp bool
	// Comment is set for comment mutations, including idempotent replays.
	Comment *models.Comment
	// Replayed is set when an idempotent retry matched an earlier comment.
	Replayed bool
}

// Gateway validates and applies engagement mutations.
type Gateway struct {
	locks    *lockTable
	limiters *limiterPool
	params   aggregate.Params
	engine   *celebrate.Engine
	snaps    *cache.Snapshots
	q        *queue.Queue

	maxDepth      int
	maxCommentLen int
}

// New wires a Gateway from config and its collaborators.
func New(cfg *config.Config, snaps *cache.Snapshots, q *queue.Queue) *Gateway {
	return &Gateway{
		locks:         newLockTable(),
		limiters:      newLimiterPool(cfg.Security.RateLimit.MutationsPerMinute),
		params:        aggregate.FromConfig(cfg.Engagement),
		engine:        celebrate.New(cfg.Celebrations),
		snaps:         snaps,
		q:             q,
		maxDepth:      cfg.Engagement.MaxCommentDepth,
		maxCommentLen: cfg.Engagement.MaxCommentLen,
	}
}

// RegisterPost makes a post known to the engine and indexes it in its
// room's feed. Registering an already-known post is an idempotent no-op
// that preserves the existing version counter.
func (g *Gateway) RegisterPost(p *models.Post) (*models.Post, error) {
	if p.ID == "" || p.Room == "" {
		return nil, ErrInvalid
	}
	mu := g.locks.lock(p.ID)
	defer mu.Unlock()
	if existing, err := store.GetPost(p.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if p.CreatedTS == 0 {
		p.CreatedTS = time.Now().UTC().UnixNano()
	}
	p.EngagementVersion = 0
	if err := store.SavePost(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPost returns post metadata, or ErrConflict for unknown posts.
func (g *Gateway) GetPost(postID string) (*models.Post, error) {
	p, err := store.GetPost(postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return p, nil
}

// ApplyReaction applies a reaction mutation for (post, user). Semantics
// follow the single-active-reaction rule: no existing reaction adds one,
// re-sending the active type is an idempotent no-op, a different type
// replaces it. Explicit removal goes through RemoveReaction.
// submittedAt is the client's wall-clock send time, carried into the
// mutation record for latency accounting; zero when the client omits it.
func (g *Gateway) ApplyReaction(ctx context.Context, postID, user, rtype string, intensity int, submittedAt int64) (*Result, error) {
	if user == "" || !validReactions[rtype] {
		return nil, ErrInvalid
	}
	if intensity == 0 {
		intensity = 1
	}
	if intensity < 1 || intensity > 3 {
		return nil, ErrInvalid
	}
	if !g.limiters.Allow(user) {
		return nil, ErrRateLimited
	}

	mu := g.locks.lock(postID)
	defer mu.Unlock()

	post, err := g.loadPostLocked(postID)
	if err != nil {
		return nil, err
	}

	existing, err := store.GetReaction(postID, user)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Type == rtype {
		// re-sending the active type changes nothing: same state, same
		// version, nothing minted
		snap, _, serr := g.currentSnapshotLocked(ctx, post)
		if serr != nil {
			return nil, serr
		}
		return &Result{Version: post.EngagementVersion, Snapshot: snap, NoOp: true}, nil
	}

	now := time.Now().UTC()
	mut := &models.Mutation{
		Post:              postID,
		Kind:              models.MutReactionAdded,
		User:              user,
		TS:                now.UnixNano(),
		ClientSubmittedTS: submittedAt,
		ReactionType:      rtype,
		Intensity:         intensity,
	}
	if existing != nil {
		mut.Replaced = existing.Type
	}
	reaction := &models.Reaction{
		Post:      postID,
		User:      user,
		Type:      rtype,
		Intensity: intensity,
		CreatedTS: now.UnixNano(),
	}

	post.EngagementVersion++
	mut.Version = post.EngagementVersion
	reaction.Version = mut.Version
	if err := store.CommitReaction(post, mut, reaction); err != nil {
		return nil, err
	}

	snap, reactions, err := g.refreshSnapshotLocked(ctx, post, now)
	if err != nil {
		return nil, err
	}
	g.publishLocked(post, mut, snap)
	g.celebrateLocked(post, snap, reactions)

	return &Result{Version: mut.Version, Snapshot: snap, Mutation: mut}, nil
}

// RemoveReaction explicitly removes the user's active reaction. Removing an
// absent reaction is an idempotent no-op: no version is minted and the
// current snapshot is returned unchanged.
func (g *Gateway) RemoveReaction(ctx context.Context, postID, user string) (*Result, error) {
	if user == "" {
		return nil, ErrInvalid
	}
	if !g.limiters.Allow(user) {
		return nil, ErrRateLimited
	}

	mu := g.locks.lock(postID)
	defer mu.Unlock()

	post, err := g.loadPostLocked(postID)
	if err != nil {
		return nil, err
	}

	existing, err := store.GetReaction(postID, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			snap, _, serr := g.currentSnapshotLocked(ctx, post)
			if serr != nil {
				return nil, serr
			}
			return &Result{Version: post.EngagementVersion, Snapshot: snap, NoOp: true}, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	post.EngagementVersion++
	mut := &models.Mutation{
		Post:         postID,
		Version:      post.EngagementVersion,
		Kind:         models.MutReactionRemoved,
		User:         user,
		TS:           now.UnixNano(),
		ReactionType: existing.Type,
	}
	if err := store.CommitReaction(post, mut, nil); err != nil {
		return nil, err
	}

	snap, reactions, err := g.refreshSnapshotLocked(ctx, post, now)
	if err != nil {
		return nil, err
	}
	g.publishLocked(post, mut, snap)
	g.celebrateLocked(post, snap, reactions)

	return &Result{Version: mut.Version, Snapshot: snap, Mutation: mut}, nil
}

// ApplyComment appends a comment to a post's tree. clientID is the caller's
// idempotency key: a retry carrying the same key returns the original
// comment without minting a new version.
func (g *Gateway) ApplyComment(ctx context.Context, postID, user, parent, content, clientID string) (*Result, error) {
	if user == "" || content == "" {
		return nil, ErrInvalid
	}
	if g.maxCommentLen > 0 && len(content) > g.maxCommentLen {
		return nil, ErrInvalid
	}
	if clientID != "" && !utils.ValidClientID(clientID) {
		return nil, ErrInvalid
	}
	if !g.limiters.Allow(user) {
		return nil, ErrRateLimited
	}

	mu := g.locks.lock(postID)
	defer mu.Unlock()

	post, err := g.loadPostLocked(postID)
	if err != nil {
		return nil, err
	}

	if clientID != "" {
		if c, err := store.GetCommentByClientID(postID, clientID); err == nil {
			snap, _, serr := g.currentSnapshotLocked(ctx, post)
			if serr != nil {
				return nil, serr
			}
			return &Result{Version: c.Version, Snapshot: snap, Comment: c, Replayed: true}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	depth := 1
	if parent != "" {
		pc, err := store.GetComment(postID, parent)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		depth = pc.Depth + 1
		if g.maxDepth > 0 && depth > g.maxDepth {
			return nil, ErrDepthExceeded
		}
	}

	now := time.Now().UTC()
	post.EngagementVersion++
	c := &models.Comment{
		ID:        utils.NewID(),
		Post:      postID,
		Parent:    parent,
		Author:    user,
		Content:   content,
		Depth:     depth,
		CreatedTS: now.UnixNano(),
		Version:   post.EngagementVersion,
		ClientID:  clientID,
	}
	mut := &models.Mutation{
		Post:      postID,
		Version:   post.EngagementVersion,
		Kind:      models.MutCommentAdded,
		User:      user,
		TS:        now.UnixNano(),
		CommentID: c.ID,
		Parent:    parent,
		Content:   content,
		Depth:     depth,
	}
	if err := store.CommitComment(post, mut, c); err != nil {
		return nil, err
	}

	snap, reactions, err := g.refreshSnapshotLocked(ctx, post, now)
	if err != nil {
		return nil, err
	}
	g.publishLocked(post, mut, snap)
	g.celebrateLocked(post, snap, reactions)

	return &Result{Version: mut.Version, Snapshot: snap, Mutation: mut, Comment: c}, nil
}

// Engagement returns the snapshot for a post through the cache tiers,
// recomputing on a cold miss.
func (g *Gateway) Engagement(ctx context.Context, postID string) (*models.EngagementSnapshot, error) {
	snap, err := g.snaps.Get(ctx, postID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	mu := g.locks.lock(postID)
	defer mu.Unlock()
	post, err := g.loadPostLocked(postID)
	if err != nil {
		return nil, err
	}
	snap, _, err = g.refreshSnapshotLocked(ctx, post, time.Now().UTC())
	return snap, err
}

// Comments returns a post's comments in creation order.
func (g *Gateway) Comments(postID string) ([]*models.Comment, error) {
	if _, err := g.GetPost(postID); err != nil {
		return nil, err
	}
	return store.ListComments(postID)
}

// Mutations returns a post's mutation log from a given version, for client
// reconciliation after a broadcast gap.
func (g *Gateway) Mutations(postID string, from uint64, limit int) ([]*models.Mutation, error) {
	if _, err := g.GetPost(postID); err != nil {
		return nil, err
	}
	return store.ListMutations(postID, from, limit)
}

// RoomSnapshot assembles the engagement state of a room's most recent
// posts, used both for the websocket hello frame and the REST endpoint.
func (g *Gateway) RoomSnapshot(ctx context.Context, room string, limit int) (*models.RoomSnapshot, error) {
	ids, err := store.ListRoomPostIDs(room, limit)
	if err != nil {
		return nil, err
	}
	out := &models.RoomSnapshot{Room: room, Posts: []*models.EngagementSnapshot{}}
	for _, id := range ids {
		snap, err := g.snaps.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out.Posts = append(out.Posts, snap)
	}
	return out, nil
}

// Feed returns a page of a room's posts, newest first, with an opaque
// cursor for the next page. An empty next cursor means the feed end.
func (g *Gateway) Feed(room, cursor string, limit int) ([]*models.Post, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var beforeTS int64
	var beforePost string
	if cursor != "" {
		ts, id, err := utils.DecodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalid
		}
		beforeTS, beforePost = ts, id
	}
	ids, err := store.ListRoomFeed(room, beforeTS, beforePost, limit)
	if err != nil {
		return nil, "", err
	}
	var out []*models.Post
	for _, id := range ids {
		p, err := store.GetPost(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, "", err
		}
		out = append(out, p)
	}
	next := ""
	if len(out) == limit {
		last := out[len(out)-1]
		next = utils.EncodeCursor(last.CreatedTS, last.ID)
	}
	return out, next, nil
}

// Recompute rebuilds a post's snapshot from raw state, for the maintenance
// sweep and the async recompute handler. Idempotent.
func (g *Gateway) Recompute(ctx context.Context, postID string) (*models.EngagementSnapshot, error) {
	mu := g.locks.lock(postID)
	defer mu.Unlock()
	post, err := g.loadPostLocked(postID)
	if err != nil {
		return nil, err
	}
	snap, _, err := g.refreshSnapshotLocked(ctx, post, time.Now().UTC())
	return snap, err
}

func (g *Gateway) loadPostLocked(postID string) (*models.Post, error) {
	post, err := store.GetPost(postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return post, nil
}

// refreshSnapshotLocked rebuilds and persists the snapshot from raw state.
// Caller holds the post lock.
func (g *Gateway) refreshSnapshotLocked(ctx context.Context, post *models.Post, now time.Time) (*models.EngagementSnapshot, []*models.Reaction, error) {
	reactions, err := store.ListReactions(post.ID)
	if err != nil {
		return nil, nil, err
	}
	comments, err := store.ListComments(post.ID)
	if err != nil {
		return nil, nil, err
	}
	snap := aggregate.Recompute(post.ID, reactions, comments, post.EngagementVersion, now, g.params)
	if err := store.SaveSnapshot(snap); err != nil {
		return nil, nil, err
	}
	g.snaps.Put(ctx, snap)
	return snap, reactions, nil
}

// currentSnapshotLocked returns the stored snapshot, rebuilding when absent.
func (g *Gateway) currentSnapshotLocked(ctx context.Context, post *models.Post) (*models.EngagementSnapshot, []*models.Reaction, error) {
	snap, err := g.snaps.Get(ctx, post.ID)
	if err == nil {
		return snap, nil, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	return g.refreshSnapshotLocked(ctx, post, time.Now().UTC())
}

// publishLocked enqueues the broadcast event for an accepted mutation while
// the post lock is still held, pinning broadcast order to commit order. A
// full queue drops the event; the mutation is already durable and clients
// recover through resync.
func (g *Gateway) publishLocked(post *models.Post, mut *models.Mutation, snap *models.EngagementSnapshot) {
	payload, err := json.Marshal(struct {
		Mutation *models.Mutation           `json:"mutation"`
		Snapshot *models.EngagementSnapshot `json:"snapshot"`
	}{mut, snap})
	if err != nil {
		logger.Error("publish_marshal_failed", "post", post.ID, "version", mut.Version, "error", err)
		return
	}
	ev := models.Event{Type: mut.Kind, Room: post.Room, Post: post.ID, Version: mut.Version, Payload: payload}
	frame, err := json.Marshal(ev)
	if err != nil {
		logger.Error("publish_marshal_failed", "post", post.ID, "version", mut.Version, "error", err)
		return
	}
	if err := g.q.TryEnqueueBytes(queue.HandlerBroadcast, post.Room, post.ID, mut.Version, frame, mut.TS); err != nil {
		logger.Warn("broadcast_enqueue_failed", "post", post.ID, "version", mut.Version, "error", err)
	}
}

// celebrateLocked evaluates one-shot triggers against the fresh snapshot
// and enqueues any newly fired celebrations. Caller holds the post lock, so
// marking and emission are atomic with the mutation that caused them.
func (g *Gateway) celebrateLocked(post *models.Post, snap *models.EngagementSnapshot, reactions []*models.Reaction) {
	state, err := store.GetCelebration(post.ID)
	if err != nil {
		logger.Error("celebration_load_failed", "post", post.ID, "error", err)
		return
	}
	fired := g.engine.Evaluate(post, snap, aggregate.DistinctReactors(reactions), state)
	if len(fired) == 0 {
		return
	}
	if err := store.SaveCelebration(state); err != nil {
		logger.Error("celebration_save_failed", "post", post.ID, "error", err)
		return
	}
	for _, p := range fired {
		payload, err := json.Marshal(p)
		if err != nil {
			continue
		}
		ev := models.Event{Type: models.EventCelebration, Room: post.Room, Post: post.ID, Version: snap.LastUpdatedVersion, Payload: payload}
		frame, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := g.q.TryEnqueueBytes(queue.HandlerCelebration, post.Room, post.ID, snap.LastUpdatedVersion, frame, time.Now().UnixNano()); err != nil {
			logger.Warn("celebration_enqueue_failed", "post", post.ID, "trigger", p.Trigger, "error", err)
		}
		logger.Info("celebration_fired", "post", post.ID, "trigger", p.Trigger)
	}
}
