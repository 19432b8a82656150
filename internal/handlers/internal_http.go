// internal/handlers/internal_http.go
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/rumblerush/server/internal/config"
	"github.com/rumblerush/server/internal/database"
)

// requireInternalKey guards privileged endpoints with the shared INTERNAL_KEY
// secret. Endpoints are disabled entirely when no key is configured.
func requireInternalKey(w http.ResponseWriter, r *http.Request) bool {
	key := config.InternalKey()
	if key == "" {
		http.NotFound(w, r)
		return false
	}
	got := r.Header.Get("X-Internal-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
		writeError(w, "forbidden")
		return false
	}
	return true
}

// InternalFinalizeRoomHandler force-finalizes a room: the match is stopped,
// in-memory state dropped, and DB rows removed.
func InternalFinalizeRoomHandler(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if !requireInternalKey(w, r) {
			return
		}
		var body struct {
			Code string `json:"code"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		code := database.NormalizeRoomCode(body.Code)
		if code == "" {
			writeError(w, "room_code_required")
			return
		}
		g.FinalizeRoom(code)
		writeJSON(w, http.StatusOK, map[string]string{"roomCode": code, "status": "finalized"})
	}
}

// HealthzHandler is the liveness probe. It pings the database when a pool
// is connected so load balancers see store outages.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB != nil {
		if err := database.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
