package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hearthsync/pkg/cache"
	"hearthsync/pkg/config"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/hub"
	"hearthsync/pkg/models"
	"hearthsync/pkg/queue"
	"hearthsync/pkg/store"
)

type testServer struct {
	srv *httptest.Server
	gw  *gateway.Gateway
	h   *hub.Hub
	q   *queue.Queue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Security.RateLimit.MutationsPerMinute = 1 << 20
	cfg.Hub.PingInterval = config.Duration(time.Second)

	snaps, err := cache.New(cfg.Cache)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = snaps.Close() })

	q := queue.NewQueue(1024)
	gw := gateway.New(cfg, snaps, q)
	h := hub.New(cfg.Hub.SubscriberBuffer)
	t.Cleanup(h.CloseAll)

	srv := httptest.NewServer(Router(cfg, gw, h))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, gw: gw, h: h, q: q}
}

// do sends a request with the role the auth middleware would have resolved.
func (ts *testServer) do(t *testing.T, method, path, role string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if role != "" {
		req.Header.Set("X-Role-Name", role)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (ts *testServer) register(t *testing.T, id string) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/v1/posts", "backend", models.Post{ID: id, Room: "r1", CreatedTS: 100})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register post: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/readyz", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status %d", resp.StatusCode)
	}
}

func TestPostRegistrationRequiresBackend(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/v1/posts", "frontend", models.Post{ID: "p1", Room: "r1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("frontend registration: status %d, want 403", resp.StatusCode)
	}
	ts.register(t, "p1")
}

func TestReactionStatusTaxonomy(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1")

	// unknown post -> conflict
	resp := ts.do(t, http.MethodPost, "/v1/posts/ghost/reactions", "backend",
		map[string]any{"user": "alice", "type": "love"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("unknown post: status %d, want 409", resp.StatusCode)
	}

	// unknown reaction type -> bad request
	resp = ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
		map[string]any{"user": "alice", "type": "thumbs_up"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type: status %d, want 400", resp.StatusCode)
	}

	// valid -> created, confirmation carries version, counts and warmth
	resp = ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
		map[string]any{"user": "alice", "type": "love", "intensity": 2, "client_submitted_at": 1724670000123})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("valid reaction: status %d, want 201", resp.StatusCode)
	}
	body := decode[struct {
		Version        uint64         `json:"version"`
		Kind           string         `json:"kind"`
		ReactionCounts map[string]int `json:"reaction_counts"`
		WarmthScore    float64        `json:"warmth_score"`
	}](t, resp)
	if body.Version != 1 || body.Kind != models.MutReactionAdded {
		t.Fatalf("confirmation body wrong: %+v", body)
	}
	if body.ReactionCounts["love"] != 1 || body.WarmthScore <= 0 {
		t.Fatalf("confirmation counts wrong: %+v", body)
	}

	// re-sending the active type is a no-op at the same version
	resp = ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
		map[string]any{"user": "alice", "type": "love", "intensity": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-apply: status %d, want 200", resp.StatusCode)
	}
	rebody := decode[struct {
		Version        uint64         `json:"version"`
		NoOp           bool           `json:"no_op"`
		ReactionCounts map[string]int `json:"reaction_counts"`
	}](t, resp)
	if !rebody.NoOp || rebody.Version != 1 || rebody.ReactionCounts["love"] != 1 {
		t.Fatalf("re-apply changed state: %+v", rebody)
	}
}

func TestCommentStatusTaxonomy(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1")

	// missing parent -> 404
	resp := ts.do(t, http.MethodPost, "/v1/posts/p1/comments", "backend",
		map[string]any{"user": "alice", "parent": "nope", "content": "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing parent: status %d, want 404", resp.StatusCode)
	}

	// build a chain to the depth limit, then one more -> 422
	parent := ""
	for depth := 1; depth <= 5; depth++ {
		resp = ts.do(t, http.MethodPost, "/v1/posts/p1/comments", "backend",
			map[string]any{"user": "alice", "parent": parent, "content": fmt.Sprintf("level %d", depth)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("depth %d: status %d", depth, resp.StatusCode)
		}
		body := decode[struct {
			Comment *models.Comment `json:"comment"`
		}](t, resp)
		parent = body.Comment.ID
	}
	resp = ts.do(t, http.MethodPost, "/v1/posts/p1/comments", "backend",
		map[string]any{"user": "alice", "parent": parent, "content": "too deep"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("over depth: status %d, want 422", resp.StatusCode)
	}
}

func TestCommentIdempotentRetry(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1")
	payload := map[string]any{"user": "alice", "content": "hello", "client_id": "5a9f0f1e-8a41-4b7d-9a3f-2a1b3c4d5e6f"}

	resp := ts.do(t, http.MethodPost, "/v1/posts/p1/comments", "backend", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first: status %d", resp.StatusCode)
	}
	first := decode[struct {
		Version uint64          `json:"version"`
		Comment *models.Comment `json:"comment"`
	}](t, resp)

	resp = ts.do(t, http.MethodPost, "/v1/posts/p1/comments", "backend", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry: status %d, want 200", resp.StatusCode)
	}
	retry := decode[struct {
		Version uint64          `json:"version"`
		Comment *models.Comment `json:"comment"`
	}](t, resp)
	if retry.Comment.ID != first.Comment.ID || retry.Version != first.Version {
		t.Fatalf("retry returned different comment: %+v vs %+v", retry, first)
	}
}

func TestRateLimitedStatus(t *testing.T) {
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Security.RateLimit.MutationsPerMinute = 4
	snaps, err := cache.New(cfg.Cache)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = snaps.Close() })
	gw := gateway.New(cfg, snaps, queue.NewQueue(64))
	srv := httptest.NewServer(Router(cfg, gw, hub.New(8)))
	defer srv.Close()
	ts := &testServer{srv: srv, gw: gw}
	ts.register(t, "p1")

	resp := ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
		map[string]any{"user": "alice", "type": "love"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first: status %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
		map[string]any{"user": "alice", "type": "hug"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second: status %d, want 429", resp.StatusCode)
	}
}

func TestEngagementAndMutationLog(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1")
	for _, u := range []string{"a", "b", "c"} {
		resp := ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
			map[string]any{"user": u, "type": "love"})
		resp.Body.Close()
	}

	resp := ts.do(t, http.MethodGet, "/v1/posts/p1/engagement", "frontend", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("engagement: status %d", resp.StatusCode)
	}
	snap := decode[models.EngagementSnapshot](t, resp)
	if snap.ReactionCounts["love"] != 3 || snap.LastUpdatedVersion != 3 {
		t.Fatalf("engagement wrong: %+v", snap)
	}

	resp = ts.do(t, http.MethodGet, "/v1/posts/p1/mutations?from=2&user=a", "backend", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mutations: status %d", resp.StatusCode)
	}
	log := decode[struct {
		Mutations []*models.Mutation `json:"mutations"`
	}](t, resp)
	if len(log.Mutations) != 2 || log.Mutations[0].Version != 2 {
		t.Fatalf("mutation log wrong: %+v", log.Mutations)
	}
}

func TestRoomFeedEndpoint(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		resp := ts.do(t, http.MethodPost, "/v1/posts", "backend",
			models.Post{ID: fmt.Sprintf("p%d", i), Room: "r1", CreatedTS: int64(100 + i)})
		resp.Body.Close()
	}
	resp := ts.do(t, http.MethodGet, "/v1/feed/r1?limit=2", "frontend", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed: status %d", resp.StatusCode)
	}
	feed := decode[struct {
		Posts  []*models.Post `json:"posts"`
		Cursor struct {
			Next    string `json:"next"`
			HasMore bool   `json:"has_more"`
		} `json:"cursor"`
	}](t, resp)
	if len(feed.Posts) != 2 || feed.Posts[0].ID != "p2" {
		t.Fatalf("feed wrong: %+v", feed)
	}
	if !feed.Cursor.HasMore || feed.Cursor.Next == "" {
		t.Fatalf("cursor wrong: %+v", feed.Cursor)
	}

	// the last page reports no more
	resp = ts.do(t, http.MethodGet, "/v1/feed/r1?limit=2&cursor="+feed.Cursor.Next, "frontend", nil)
	last := decode[struct {
		Posts  []*models.Post `json:"posts"`
		Cursor struct {
			Next    string `json:"next"`
			HasMore bool   `json:"has_more"`
		} `json:"cursor"`
	}](t, resp)
	if len(last.Posts) != 1 || last.Cursor.HasMore {
		t.Fatalf("last page wrong: %+v", last)
	}
}

func TestStreamSnapshotThenLiveEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "p1")

	// a mutation before subscribing lands in the snapshot
	resp := ts.do(t, http.MethodPost, "/v1/posts/p1/reactions", "backend",
		map[string]any{"user": "alice", "type": "love"})
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/v1/rooms/r1/stream"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello models.Event
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read snapshot frame: %v", err)
	}
	if hello.Type != models.EventSnapshot {
		t.Fatalf("first frame %q, want snapshot", hello.Type)
	}
	var snap models.RoomSnapshot
	if err := json.Unmarshal(hello.Payload, &snap); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if len(snap.Posts) != 1 || snap.Posts[0].LastUpdatedVersion != 1 {
		t.Fatalf("snapshot content wrong: %+v", snap)
	}

	// live event published through the hub reaches the subscriber
	ts.h.Publish(&models.Event{Type: models.MutCommentAdded, Room: "r1", Post: "p1", Version: 2})
	var live models.Event
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatalf("read live frame: %v", err)
	}
	if live.Type != models.MutCommentAdded || live.Version != 2 {
		t.Fatalf("live frame wrong: %+v", live)
	}
}
