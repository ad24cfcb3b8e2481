package handlers

import (
	"net/http"
	"time"

	"hearthsync/pkg/config"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/hub"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
	"hearthsync/pkg/telemetry"
	"hearthsync/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// RegisterRooms registers the feed plus room snapshot and streaming
// endpoints.
func RegisterRooms(r *mux.Router, cfg *config.Config, gw *gateway.Gateway, h *hub.Hub) {
	r.HandleFunc("/feed/{room}", roomFeed(gw)).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/snapshot", roomSnapshot(cfg, gw)).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/stream", roomStream(cfg, gw, h)).Methods(http.MethodGet)
}

// feedCursor is the pagination envelope: Next is opaque and only valid
// when HasMore is set.
type feedCursor struct {
	Next    string `json:"next,omitempty"`
	HasMore bool   `json:"has_more"`
}

func roomFeed(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["room"]
		cursor := r.URL.Query().Get("cursor")
		limit := queryInt(r, "limit", 0)
		posts, next, err := gw.Feed(room, cursor, limit)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		if posts == nil {
			posts = []*models.Post{}
		}
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Posts  []*models.Post `json:"posts"`
			Cursor feedCursor     `json:"cursor"`
		}{Posts: posts, Cursor: feedCursor{Next: next, HasMore: next != ""}})
	}
}

func roomSnapshot(cfg *config.Config, gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["id"]
		limit := queryInt(r, "posts", cfg.Hub.SnapshotPosts)
		snap, err := gw.RoomSnapshot(r.Context(), room, limit)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, snap)
	}
}

// Origin checks happen in the auth middleware before the upgrade request
// reaches this handler.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// roomStream upgrades to a websocket and streams room events. The first
// frame is always the room snapshot captured at subscribe time; every
// later frame carries a per-post version, so a client can detect gaps
// and fall back to the mutation log.
func roomStream(cfg *config.Config, gw *gateway.Gateway, h *hub.Hub) http.HandlerFunc {
	writeTimeout := time.Duration(cfg.Hub.WriteTimeout)
	pingInterval := time.Duration(cfg.Hub.PingInterval)
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["id"]
		snap, err := gw.RoomSnapshot(r.Context(), room, cfg.Hub.SnapshotPosts)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws_upgrade_failed", "room", room, "error", err.Error())
			return
		}
		defer conn.Close()

		sub, err := h.Subscribe(room, snap)
		if err != nil {
			logger.Warn("ws_subscribe_failed", "room", room, "error", err.Error())
			return
		}
		defer func() {
			h.Unsubscribe(sub)
			telemetry.SetHubSubscribers(h.SubscriberCount(room))
		}()
		telemetry.SetHubSubscribers(h.SubscriberCount(room))
		logger.Info("ws_subscribed", "room", room, "subscriber", sub.ID)

		// Reader loop only services control frames and close detection.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case frame, ok := <-sub.Frames():
				if !ok {
					// hub dropped us, most likely a full buffer
					logger.Warn("ws_dropped", "room", room, "subscriber", sub.ID, "dropped_frames", sub.Dropped())
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"),
						hub.WriteDeadline(writeTimeout))
					return
				}
				_ = conn.SetWriteDeadline(hub.WriteDeadline(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					logger.Info("ws_write_failed", "room", room, "subscriber", sub.ID, "error", err.Error())
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(hub.WriteDeadline(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
