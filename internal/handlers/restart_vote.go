// internal/handlers/restart_vote.go
//
// Post-match restart voting. One vote per room; unanimous yes restarts the
// match with the same stable seating. Proposals that time out count against
// the proposer, and three ignored proposals get them kicked.
package handlers

import (
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/game"
)

const (
	restartVoteTimeout   = 10 * time.Second
	restartCooldown      = 60 * time.Second
	restartKickThreshold = 3
)

type restartVote struct {
	RoomCode       string
	ProposerUserID string
	Yes            map[string]bool
	Total          int
	ExpiresAtMs    int64
	timer          *time.Timer
}

// handleRestartPropose starts a vote if the proposer is allowed: the room's
// match must be over, or the proposer eliminated from the live one.
func (g *Gateway) handleRestartPropose(cl *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !cl.Attached {
		cl.sendError("not_in_room")
		return
	}
	room := g.rooms[cl.RoomCode]
	if room == nil {
		cl.sendError("not_in_room")
		return
	}

	if _, active := g.votes[room.Code]; active {
		cl.Send(game.Msg{
			"type":     "room:restart_rejected",
			"roomCode": room.Code,
			"reason":   "restart_vote_already_active",
		})
		return
	}

	nowMs := time.Now().UnixMilli()
	if retryAt := g.restartCooldown[cl.UserID]; nowMs < retryAt {
		cl.Send(game.Msg{
			"type":      "room:restart_rejected",
			"roomCode":  room.Code,
			"reason":    "restart_propose_cooldown",
			"retryAtMs": retryAt,
		})
		return
	}

	if !g.restartAllowedLocked(room, cl.UserID) {
		cl.Send(game.Msg{
			"type":     "room:restart_rejected",
			"roomCode": room.Code,
			"reason":   "restart_propose_not_allowed",
		})
		return
	}

	v := &restartVote{
		RoomCode:       room.Code,
		ProposerUserID: cl.UserID,
		Yes:            map[string]bool{cl.UserID: true},
		Total:          len(room.Players),
		ExpiresAtMs:    nowMs + restartVoteTimeout.Milliseconds(),
	}
	g.votes[room.Code] = v
	v.timer = time.AfterFunc(restartVoteTimeout, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.votes[v.RoomCode] == v {
			g.cancelRestartVoteLocked(v, "timeout")
		}
	})

	g.log.WithFields(logrus.Fields{
		"roomCode": room.Code,
		"byUserId": cl.UserID,
		"total":    v.Total,
	}).Info("restart proposed")

	g.broadcastToRoomLocked(room.Code, game.Msg{
		"type":      "room:restart_proposed",
		"roomCode":  room.Code,
		"byUserId":  cl.UserID,
		"expiresAt": v.ExpiresAtMs,
	})
	g.broadcastVoteStateLocked(v)
}

// restartAllowedLocked: no live match, an ended match, or proposer already
// eliminated. Caller holds g.mu.
func (g *Gateway) restartAllowedLocked(room *Room, userID string) bool {
	m, ok := g.Matches.MatchForRoom(room.Code)
	if !ok {
		return true
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Ended {
		return true
	}
	p := m.Players[userID]
	return p != nil && p.State == game.PlayerEliminated
}

// handleRestartVote records a yes/no ballot. Unanimous yes restarts the
// match; any no cancels.
func (g *Gateway) handleRestartVote(cl *Client, vote string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !cl.Attached {
		return
	}
	v := g.votes[cl.RoomCode]
	if v == nil {
		g.log.WithField("userId", cl.UserID).Debug("vote without active restart proposal")
		return
	}

	switch vote {
	case "no":
		g.cancelRestartVoteLocked(v, "no_vote")
	case "yes":
		v.Yes[cl.UserID] = true
		g.broadcastVoteStateLocked(v)
		if len(v.Yes) >= v.Total {
			g.acceptRestartVoteLocked(v)
		}
	default:
		cl.sendError("invalid_payload")
	}
}

func (g *Gateway) broadcastVoteStateLocked(v *restartVote) {
	g.broadcastToRoomLocked(v.RoomCode, game.Msg{
		"type":     "room:restart_vote_state",
		"roomCode": v.RoomCode,
		"yesCount": len(v.Yes),
		"total":    v.Total,
	})
}

func (g *Gateway) acceptRestartVoteLocked(v *restartVote) {
	v.timer.Stop()
	delete(g.votes, v.RoomCode)
	g.restartIgnored[v.ProposerUserID] = 0

	g.log.WithField("roomCode", v.RoomCode).Info("restart accepted")
	g.broadcastToRoomLocked(v.RoomCode, game.Msg{
		"type":     "room:restart_accepted",
		"roomCode": v.RoomCode,
	})

	if room := g.rooms[v.RoomCode]; room != nil {
		g.startMatchInRoomLocked(room)
	}
}

// cancelRestartVoteLocked tears the vote down and penalises the proposer:
// a 60s cooldown always, plus an ignored strike on timeouts. Three strikes
// and the proposer is kicked.
func (g *Gateway) cancelRestartVoteLocked(v *restartVote, reason string) {
	v.timer.Stop()
	delete(g.votes, v.RoomCode)

	g.broadcastToRoomLocked(v.RoomCode, game.Msg{
		"type":     "room:restart_cancelled",
		"roomCode": v.RoomCode,
		"reason":   reason,
	})

	retryAtMs := time.Now().Add(restartCooldown).UnixMilli()
	g.restartCooldown[v.ProposerUserID] = retryAtMs

	room := g.rooms[v.RoomCode]
	var proposer *Client
	if room != nil {
		proposer = room.Players[v.ProposerUserID]
	}
	if proposer != nil {
		proposer.Send(game.Msg{
			"type":      "room:restart_cooldown",
			"roomCode":  v.RoomCode,
			"retryAtMs": retryAtMs,
		})
	}

	if reason != "timeout" {
		return
	}
	g.restartIgnored[v.ProposerUserID]++
	if g.restartIgnored[v.ProposerUserID] < restartKickThreshold {
		return
	}

	g.log.WithFields(logrus.Fields{
		"roomCode": v.RoomCode,
		"userId":   v.ProposerUserID,
	}).Warn("kicking restart spammer")
	if proposer != nil {
		proposer.Send(game.Msg{"type": "ws_player_kicked", "reason": "restart_spam"})
		g.detachLocked(proposer)
		proposer.terminate(websocket.StatusPolicyViolation, "restart_spam")
	}
}
