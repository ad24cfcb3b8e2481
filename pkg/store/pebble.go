package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"

	"github.com/cockroachdb/pebble"
)

var (
	db     *pebble.DB
	dbPath string
)

// Key layout. All engagement state for a post lives under post:<id>: so a
// single prefix scan reaches everything the aggregator needs.
//
//	post:<id>:meta                 post metadata + engagement version
//	post:<id>:mut:<%020d version>  mutation log entry
//	post:<id>:react:<user>         active reaction for (post, user)
//	post:<id>:comment:<cid>        comment
//	post:<id>:byclient:<clientID>  comment idempotency index -> comment id
//	snap:post:<id>                 engagement snapshot
//	celeb:post:<id>                celebration one-shot state
//	room:<id>:feed:<%020d ts>-<postID>  feed index entry -> post id

func postMetaKey(id string) []byte { return []byte("post:" + id + ":meta") }

func mutKey(postID string, version uint64) []byte {
	return []byte(fmt.Sprintf("post:%s:mut:%020d", postID, version))
}

func reactKey(postID, user string) []byte {
	return []byte("post:" + postID + ":react:" + user)
}

func commentKey(postID, commentID string) []byte {
	return []byte("post:" + postID + ":comment:" + commentID)
}

func byClientKey(postID, clientID string) []byte {
	return []byte("post:" + postID + ":byclient:" + clientID)
}

func snapKey(postID string) []byte { return []byte("snap:post:" + postID) }

func celebKey(postID string) []byte { return []byte("celeb:post:" + postID) }

func feedKey(room string, createdTS int64, postID string) []byte {
	return []byte(fmt.Sprintf("room:%s:feed:%020d-%s", room, createdTS, postID))
}

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

var errNotOpen = fmt.Errorf("pebble not opened; call store.Open first")

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = pebble.ErrNotFound

// SavePost stores post metadata and indexes the post in its room's feed.
func SavePost(p *models.Post) error {
	if db == nil {
		return errNotOpen
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(postMetaKey(p.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(feedKey(p.Room, p.CreatedTS, p.ID), []byte(p.ID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_post_failed", "post", p.ID, "error", err)
		return err
	}
	logger.Info("post_saved", "post", p.ID, "room", p.Room)
	return nil
}

// GetPost returns the stored post metadata for a given post ID.
func GetPost(id string) (*models.Post, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(postMetaKey(id))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var p models.Post
	if err := json.Unmarshal(v, &p); err != nil {
		return nil, fmt.Errorf("invalid post metadata: %w", err)
	}
	return &p, nil
}

// CommitReaction atomically writes one accepted reaction mutation: the log
// entry, the (post, user) reaction row (or its deletion for a removal) and
// the bumped post metadata. A crash never leaves the version counter ahead
// of the log or the reaction set.
func CommitReaction(p *models.Post, mut *models.Mutation, r *models.Reaction) error {
	if db == nil {
		return errNotOpen
	}
	b := db.NewBatch()
	defer b.Close()

	md, err := json.Marshal(mut)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation: %w", err)
	}
	if err := b.Set(mutKey(p.ID, mut.Version), md, nil); err != nil {
		return err
	}
	if mut.Kind == models.MutReactionRemoved {
		if err := b.Delete(reactKey(p.ID, mut.User), nil); err != nil {
			return err
		}
	} else {
		rd, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reaction: %w", err)
		}
		if err := b.Set(reactKey(p.ID, mut.User), rd, nil); err != nil {
			return err
		}
	}
	pd, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}
	if err := b.Set(postMetaKey(p.ID), pd, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("commit_reaction_failed", "post", p.ID, "version", mut.Version, "error", err)
		return err
	}
	logger.Info("reaction_committed", "post", p.ID, "user", mut.User, "kind", mut.Kind, "version", mut.Version)
	return nil
}

// CommitComment atomically writes one accepted comment mutation: the log
// entry, the comment row, the client idempotency index and the bumped post
// metadata.
func CommitComment(p *models.Post, mut *models.Mutation, c *models.Comment) error {
	if db == nil {
		return errNotOpen
	}
	b := db.NewBatch()
	defer b.Close()

	md, err := json.Marshal(mut)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation: %w", err)
	}
	if err := b.Set(mutKey(p.ID, mut.Version), md, nil); err != nil {
		return err
	}
	cd, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}
	if err := b.Set(commentKey(p.ID, c.ID), cd, nil); err != nil {
		return err
	}
	if c.ClientID != "" {
		if err := b.Set(byClientKey(p.ID, c.ClientID), []byte(c.ID), nil); err != nil {
			return err
		}
	}
	pd, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}
	if err := b.Set(postMetaKey(p.ID), pd, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("commit_comment_failed", "post", p.ID, "version", mut.Version, "error", err)
		return err
	}
	logger.Info("comment_committed", "post", p.ID, "comment", c.ID, "version", mut.Version)
	return nil
}

// GetReaction returns the active reaction for (post, user), or ErrNotFound.
func GetReaction(postID, user string) (*models.Reaction, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(reactKey(postID, user))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var r models.Reaction
	if err := json.Unmarshal(v, &r); err != nil {
		return nil, fmt.Errorf("invalid reaction row: %w", err)
	}
	return &r, nil
}

// ListReactions returns all active reactions for a post.
func ListReactions(postID string) ([]*models.Reaction, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("post:" + postID + ":react:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.Reaction
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var r models.Reaction
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("invalid reaction row: %w", err)
		}
		out = append(out, &r)
	}
	return out, iter.Error()
}

// GetComment returns a comment by ID, or ErrNotFound.
func GetComment(postID, commentID string) (*models.Comment, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(commentKey(postID, commentID))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var c models.Comment
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, fmt.Errorf("invalid comment row: %w", err)
	}
	return &c, nil
}

// GetCommentByClientID resolves a client idempotency key to the comment it
// originally created, or ErrNotFound.
func GetCommentByClientID(postID, clientID string) (*models.Comment, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(byClientKey(postID, clientID))
	if err != nil {
		return nil, err
	}
	id := string(v)
	closer.Close()
	return GetComment(postID, id)
}

// ListComments returns all comments for a post in creation order.
func ListComments(postID string) ([]*models.Comment, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("post:" + postID + ":comment:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.Comment
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.Comment
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("invalid comment row: %w", err)
		}
		out = append(out, &c)
	}
	return out, iter.Error()
}

// ListMutations returns a post's mutation log entries with version >= from,
// in version order. A limit of 0 means no limit.
func ListMutations(postID string, from uint64, limit int) ([]*models.Mutation, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("post:" + postID + ":mut:")
	start := mutKey(postID, from)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.Mutation
	for iter.SeekGE(start); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Mutation
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid mutation entry: %w", err)
		}
		out = append(out, &m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// SaveSnapshot stores the derived engagement snapshot for a post.
func SaveSnapshot(s *models.EngagementSnapshot) error {
	if db == nil {
		return errNotOpen
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := db.Set(snapKey(s.Post), data, pebble.Sync); err != nil {
		logger.Error("save_snapshot_failed", "post", s.Post, "error", err)
		return err
	}
	return nil
}

// GetSnapshot returns the stored engagement snapshot for a post, or
// ErrNotFound.
func GetSnapshot(postID string) (*models.EngagementSnapshot, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(snapKey(postID))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var s models.EngagementSnapshot
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &s, nil
}

// SaveCelebration stores the one-shot trigger state for a post.
func SaveCelebration(c *models.CelebrationState) error {
	if db == nil {
		return errNotOpen
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal celebration state: %w", err)
	}
	if err := db.Set(celebKey(c.Post), data, pebble.Sync); err != nil {
		logger.Error("save_celebration_failed", "post", c.Post, "error", err)
		return err
	}
	return nil
}

// GetCelebration returns the trigger state for a post. A post with no state
// yet gets an empty, usable value.
func GetCelebration(postID string) (*models.CelebrationState, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(celebKey(postID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return &models.CelebrationState{Post: postID}, nil
		}
		return nil, err
	}
	defer closer.Close()
	var c models.CelebrationState
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, fmt.Errorf("invalid celebration state: %w", err)
	}
	return &c, nil
}

// ListRoomFeed returns post IDs for a room in reverse chronological order,
// starting strictly after the given cursor position (beforeTS, beforePost).
// Pass beforeTS <= 0 to start from the newest entry.
func ListRoomFeed(room string, beforeTS int64, beforePost string, limit int) ([]string, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("room:" + room + ":feed:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ok bool
	if beforeTS > 0 {
		ok = iter.SeekLT(feedKey(room, beforeTS, beforePost))
	} else {
		// upper bound of the prefix range
		upper := append(append([]byte(nil), prefix...), 0xff)
		ok = iter.SeekLT(upper)
	}
	var out []string
	for ; ok && iter.Valid(); ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, string(iter.Value()))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// ListRoomPostIDs returns the most recent post IDs for a room, newest first.
func ListRoomPostIDs(room string, limit int) ([]string, error) {
	return ListRoomFeed(room, 0, "", limit)
}

// ListPostIDs returns all post IDs in the store, for maintenance scans.
func ListPostIDs() ([]string, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("post:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := string(iter.Key())
		if !strings.HasPrefix(k, "post:") {
			break
		}
		if strings.HasSuffix(k, ":meta") {
			id := strings.TrimSuffix(strings.TrimPrefix(k, "post:"), ":meta")
			out = append(out, id)
		}
	}
	return out, iter.Error()
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, errNotOpen
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Key()))
		}
		return out, iter.Error()
	}
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}
