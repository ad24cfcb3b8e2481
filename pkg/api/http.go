package api

import (
	"net/http"

	"hearthsync/pkg/api/handlers"
	"hearthsync/pkg/config"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/hub"
	"hearthsync/pkg/store"

	"github.com/gorilla/mux"
)

// Router builds the versioned HTTP API. Auth, telemetry and logging wrap
// the returned handler at the app layer.
func Router(cfg *config.Config, gw *gateway.Gateway, h *hub.Hub) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !store.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterPosts(v1, gw)
	handlers.RegisterReactions(v1, gw)
	handlers.RegisterComments(v1, gw)
	handlers.RegisterRooms(v1, cfg, gw, h)

	return r
}
