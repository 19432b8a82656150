// internal/handlers/rejoin.go
package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/game"
)

// rejoinFallback is how long the gateway waits for mp:rejoin_ready before
// pushing the full sync bundle anyway.
const rejoinFallback = 4 * time.Second

// rejoinHandshake tracks one outstanding rejoin negotiation per client.
type rejoinHandshake struct {
	RoomCode  string
	MatchID   string
	AttemptID string
	timer     *time.Timer
}

// beginRejoinHandshakeLocked announces the running match to a (re)joining
// client and arms the 4s fallback. The client either acks with
// mp:rejoin_ready or gets the bundle when the timer fires. Caller holds g.mu.
func (g *Gateway) beginRejoinHandshakeLocked(cl *Client, m *game.Match) {
	if old := cl.pendingRejoin; old != nil {
		old.timer.Stop()
	}

	hs := &rejoinHandshake{
		RoomCode:  m.RoomCode,
		MatchID:   m.ID,
		AttemptID: uuid.NewString(),
	}
	cl.pendingRejoin = hs

	cl.Send(game.Msg{"type": "match:started", "roomCode": hs.RoomCode, "matchId": hs.MatchID})
	cl.Send(game.Msg{
		"type":            "mp:rejoin_ack",
		"roomCode":        hs.RoomCode,
		"matchId":         hs.MatchID,
		"serverTime":      time.Now().UnixMilli(),
		"rejoinAttemptId": hs.AttemptID,
	})

	hs.timer = time.AfterFunc(rejoinFallback, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if cl.pendingRejoin != hs {
			return
		}
		g.log.WithFields(logrus.Fields{
			"userId":  cl.UserID,
			"matchId": hs.MatchID,
		}).Debug("rejoin_ready timed out, pushing sync bundle")
		g.sendRejoinBundleLocked(cl, hs)
	})
}

// handleRejoinReady validates the client's ack against the pending handshake
// and sends the bundle on match. Mismatches are logged and dropped.
func (g *Gateway) handleRejoinReady(cl *Client, roomCode, matchID, attemptID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	hs := cl.pendingRejoin
	if hs == nil || hs.RoomCode != roomCode || hs.MatchID != matchID || hs.AttemptID != attemptID {
		g.log.WithFields(logrus.Fields{
			"userId":   cl.UserID,
			"roomCode": roomCode,
			"matchId":  matchID,
		}).Warn("mismatched mp:rejoin_ready, dropping")
		return
	}
	hs.timer.Stop()
	g.sendRejoinBundleLocked(cl, hs)
}

// sendRejoinBundleLocked pushes the full sync sequence: match:started,
// mp:rejoin_sync, world init, and the current snapshot. Caller holds g.mu.
func (g *Gateway) sendRejoinBundleLocked(cl *Client, hs *rejoinHandshake) {
	cl.pendingRejoin = nil

	m, ok := g.Matches.GetMatch(hs.MatchID)
	if !ok || m.IsEnded() {
		g.log.WithFields(logrus.Fields{
			"userId":  cl.UserID,
			"matchId": hs.MatchID,
		}).Debug("match gone before rejoin sync")
		return
	}

	cl.Send(game.Msg{"type": "match:started", "roomCode": hs.RoomCode, "matchId": hs.MatchID})
	cl.Send(game.Msg{"type": "mp:rejoin_sync", "matchId": hs.MatchID})
	cl.Send(m.WorldInitMsg())
	cl.Send(m.Snapshot(time.Now()))
}
