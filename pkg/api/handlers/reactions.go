package handlers

import (
	"encoding/json"
	"net/http"

	"hearthsync/pkg/auth"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/telemetry"
	"hearthsync/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterReactions registers reaction mutation endpoints.
func RegisterReactions(r *mux.Router, gw *gateway.Gateway) {
	r.Handle("/posts/{id}/reactions", auth.RequireSignedUser(applyReaction(gw))).Methods(http.MethodPost)
	r.Handle("/posts/{id}/reactions", auth.RequireSignedUser(removeReaction(gw))).Methods(http.MethodDelete)
}

type reactionRequest struct {
	User      string `json:"user,omitempty"`
	Type      string `json:"type"`
	Intensity int    `json:"intensity,omitempty"`
	// ClientSubmittedAt is the client's send time (unix ms), recorded on
	// the mutation for latency accounting.
	ClientSubmittedAt int64 `json:"client_submitted_at,omitempty"`
}

// reactionResponse is the synchronous confirmation body: the version plus
// the fresh counts, so optimistic clients confirm without waiting for the
// broadcast. A no-op re-apply echoes the current version with no_op set.
type reactionResponse struct {
	Post           string         `json:"post"`
	Version        uint64         `json:"version"`
	Kind           string         `json:"kind,omitempty"`
	NoOp           bool           `json:"no_op,omitempty"`
	ReactionCounts map[string]int `json:"reaction_counts"`
	WarmthScore    float64        `json:"warmth_score"`
}

func reactionConfirmation(postID string, res *gateway.Result) reactionResponse {
	out := reactionResponse{Post: postID, Version: res.Version, NoOp: res.NoOp}
	if res.Snapshot != nil {
		out.ReactionCounts = res.Snapshot.ReactionCounts
		out.WarmthScore = res.Snapshot.WarmthScore
	}
	if res.Mutation != nil {
		out.Kind = res.Mutation.Kind
	}
	return out
}

func applyReaction(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		telemetry.SetRequestOp(r.Context(), "apply_reaction")
		var req reactionRequest
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
		res, err := gw.ApplyReaction(r.Context(), postID, user, req.Type, req.Intensity, req.ClientSubmittedAt)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		if res.NoOp {
			// re-apply of the active reaction: state unchanged
			_ = utils.JSONWrite(w, http.StatusOK, reactionConfirmation(postID, res))
			return
		}
		telemetry.CountMutation(res.Mutation.Kind)
		logger.Info("reaction_applied", "post", postID, "user", user, "kind", res.Mutation.Kind, "version", res.Version)
		_ = utils.JSONWrite(w, http.StatusCreated, reactionConfirmation(postID, res))
	}
}

func removeReaction(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, status, msg := auth.ResolveUserFromRequest(r, "")
		if status != 0 {
			utils.JSONError(w, status, msg)
			return
		}
		postID := mux.Vars(r)["id"]
		res, err := gw.RemoveReaction(r.Context(), postID, user)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		if res.Mutation != nil {
			telemetry.CountMutation(res.Mutation.Kind)
		}
		_ = utils.JSONWrite(w, http.StatusOK, reactionConfirmation(postID, res))
	}
}
