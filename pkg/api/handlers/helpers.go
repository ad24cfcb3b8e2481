package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hearthsync/pkg/gateway"
	"hearthsync/pkg/telemetry"
	"hearthsync/pkg/utils"
)

// writeGatewayError maps the mutation taxonomy onto HTTP statuses.
func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrConflict):
		telemetry.CountRejection("conflict")
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrNotFound):
		telemetry.CountRejection("not_found")
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrDepthExceeded):
		telemetry.CountRejection("depth_exceeded")
		utils.JSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, gateway.ErrRateLimited):
		telemetry.CountRejection("rate_limited")
		utils.JSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, gateway.ErrInvalid):
		telemetry.CountRejection("invalid")
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func queryUint64(r *http.Request, key string, def uint64) uint64 {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	}
	return def
}
