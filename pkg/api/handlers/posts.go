package handlers

import (
	"encoding/json"
	"net/http"

	"hearthsync/pkg/auth"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
	"hearthsync/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterPosts registers the post registry and read endpoints.
func RegisterPosts(r *mux.Router, gw *gateway.Gateway) {
	r.HandleFunc("/posts", createPost(gw)).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id}", getPost(gw)).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id}/engagement", getEngagement(gw)).Methods(http.MethodGet)
	r.Handle("/posts/{id}/mutations", auth.RequireSignedUser(listMutations(gw))).Methods(http.MethodGet)
}

// createPost registers a post with the engine. Backend-only: the journal
// service calls this when a post is authored.
func createPost(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role-Name")
		if role != "backend" && role != "admin" {
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		var p models.Post
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if p.ID == "" {
			p.ID = utils.NewID()
		}
		out, err := gw.RegisterPost(&p)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		logger.Info("post_registered", "post", out.ID, "room", out.Room)
		_ = utils.JSONWrite(w, http.StatusCreated, out)
	}
}

func getPost(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := gw.GetPost(mux.Vars(r)["id"])
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, p)
	}
}

func getEngagement(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := gw.Engagement(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, snap)
	}
}

// listMutations serves the reconciliation path: the post's mutation log
// from a given version, so a client that saw a gap can catch up.
func listMutations(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, status, msg := auth.ResolveUserFromRequest(r, ""); status != 0 {
			utils.JSONError(w, status, msg)
			return
		}
		id := mux.Vars(r)["id"]
		from := queryUint64(r, "from", 1)
		limit := queryInt(r, "limit", 0)
		muts, err := gw.Mutations(id, from, limit)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		if muts == nil {
			muts = []*models.Mutation{}
		}
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Post      string             `json:"post"`
			Mutations []*models.Mutation `json:"mutations"`
		}{Post: id, Mutations: muts})
	}
}
