package handlers

import (
	"encoding/json"
	"net/http"

	"hearthsync/pkg/auth"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/models"
	"hearthsync/pkg/telemetry"
	"hearthsync/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterComments registers comment endpoints.
func RegisterComments(r *mux.Router, gw *gateway.Gateway) {
	r.Handle("/posts/{id}/comments", auth.RequireSignedUser(createComment(gw))).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id}/comments", listComments(gw)).Methods(http.MethodGet)
}

type commentRequest struct {
	User    string `json:"user,omitempty"`
	Parent  string `json:"parent,omitempty"`
	Content string `json:"content"`
	// ClientID is the client-generated idempotency key for safe retries.
	ClientID string `json:"client_id,omitempty"`
}

// commentResponse confirms a created comment; an idempotent retry returns
// the original id and version.
type commentResponse struct {
	Post    string          `json:"post"`
	Version uint64          `json:"version"`
	Kind    string          `json:"kind"`
	Comment *models.Comment `json:"comment"`
}

func createComment(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		user, status, msg := auth.ResolveUserFromRequest(r, req.User)
		if status != 0 {
			utils.JSONError(w, status, msg)
			return
		}
		postID := mux.Vars(r)["id"]
		res, err := gw.ApplyComment(r.Context(), postID, user, req.Parent, req.Content, req.ClientID)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		code := http.StatusCreated
		if res.Replayed {
			// idempotent retry: return the original comment
			code = http.StatusOK
		} else {
			telemetry.CountMutation(models.MutCommentAdded)
			logger.Info("comment_created", "post", postID, "comment", res.Comment.ID, "depth", res.Comment.Depth, "version", res.Version)
		}
		_ = utils.JSONWrite(w, code, commentResponse{
			Post:    postID,
			Version: res.Version,
			Kind:    models.MutCommentAdded,
			Comment: res.Comment,
		})
	}
}

func listComments(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := mux.Vars(r)["id"]
		comments, err := gw.Comments(postID)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		if comments == nil {
			comments = []*models.Comment{}
		}
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Post     string            `json:"post"`
			Comments []*models.Comment `json:"comments"`
		}{Post: postID, Comments: comments})
	}
}
