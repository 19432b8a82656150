// internal/handlers/resume_http.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rumblerush/server/internal/database"
	"github.com/rumblerush/server/internal/models"
	"github.com/rumblerush/server/internal/resume"
)

// ResumeEligibilityHandler answers whether the caller's tracked session can
// still be resumed. Multiplayer records are validated against the store and
// the live match; stale records are cleared on the spot.
func ResumeEligibilityHandler(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		userID, err := sessionUserID(r)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		now := time.Now()
		rec, ok := g.Resume.GetActiveSession(userID, now)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"eligible": false, "reason": "no_active_session",
			})
			return
		}
		if rec.Mode == resume.ModeSingleplayer {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"eligible": true, "mode": rec.Mode,
			})
			return
		}

		if reason := g.multiplayerResumeBlocked(r.Context(), userID, rec); reason != "" {
			g.Resume.Clear(userID)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"eligible": false, "reason": reason,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"eligible": true,
			"mode":     rec.Mode,
			"roomCode": rec.RoomCode,
			"matchId":  rec.MatchID,
		})
	}
}

// multiplayerResumeBlocked returns "" when the record is resumable, or the
// reason code otherwise: the room must be STARTED, the user a member, and
// the recorded match still live.
func (g *Gateway) multiplayerResumeBlocked(ctx context.Context, userID string, rec resume.Record) string {
	if rec.IntentionallyTerminated {
		return "intentionally_terminated"
	}
	room, err := g.dbGetRoom(ctx, rec.RoomCode)
	if err != nil {
		return database.CodeOf(err)
	}
	if room.Phase != models.RoomPhaseStarted {
		return "room_not_started"
	}
	members, err := g.dbGetMembers(ctx, rec.RoomCode)
	if err != nil {
		return database.CodeOf(err)
	}
	isMember := false
	for _, m := range members {
		if m.UserID == userID {
			isMember = true
			break
		}
	}
	if !isMember {
		return "not_a_member"
	}
	m, ok := g.Matches.GetMatch(rec.MatchID)
	if !ok || m.IsEnded() {
		return "match_not_live"
	}
	return ""
}

// ResumeConsumeHandler atomically claims a multiplayer resume record. The
// client calls this right before reconnecting so a second device cannot
// double-resume.
func ResumeConsumeHandler(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		userID, err := sessionUserID(r)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		var body struct {
			RoomCode string `json:"roomCode"`
			MatchID  string `json:"matchId"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		consumed := g.Resume.ConsumeMultiplayerResume(
			userID, database.NormalizeRoomCode(body.RoomCode), body.MatchID, time.Now())
		writeJSON(w, http.StatusOK, map[string]bool{"consumed": consumed})
	}
}
