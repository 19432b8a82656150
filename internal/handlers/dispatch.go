// internal/handlers/dispatch.go
package handlers

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/database"
	"github.com/rumblerush/server/internal/game"
	"github.com/rumblerush/server/internal/models"
)

func msgString(packet map[string]interface{}, key string) string {
	s, _ := packet[key].(string)
	return s
}

func msgInt64(packet map[string]interface{}, key string) int64 {
	f, _ := packet[key].(float64)
	return int64(f)
}

// dispatch routes one inbound frame. Unknown types are rejected with a
// logged reason.
func (g *Gateway) dispatch(cl *Client, packet map[string]interface{}) {
	switch typ, _ := packet["type"].(string); typ {
	case "ping":
		cl.Send(game.Msg{
			"type":      "pong",
			"id":        packet["id"],
			"t":         packet["t"],
			"serverNow": time.Now().UnixMilli(),
		})
	case "room:join":
		g.handleRoomJoin(cl, msgString(packet, "roomId"))
	case "room:leave":
		g.handleRoomLeave(cl)
	case "match:start":
		g.handleMatchStart(cl)
	case "match:input":
		g.handleMatchInput(cl, packet)
	case "match:bomb_place":
		g.handleBombPlace(cl)
	case "mp:rejoin_ready":
		g.handleRejoinReady(cl,
			database.NormalizeRoomCode(msgString(packet, "roomCode")),
			msgString(packet, "matchId"),
			msgString(packet, "rejoinAttemptId"))
	case "mp:snapshot_applied":
		g.log.WithFields(logrus.Fields{
			"userId":  cl.UserID,
			"matchId": msgString(packet, "matchId"),
		}).Debug("snapshot applied")
	case "room:restart_propose":
		g.handleRestartPropose(cl)
	case "room:restart_vote":
		g.handleRestartVote(cl, msgString(packet, "vote"))
	default:
		g.log.WithFields(logrus.Fields{
			"userId": cl.UserID,
			"type":   typ,
		}).Warn("unknown ws message type")
		cl.sendError("invalid_message")
	}
}

// handleRoomJoin attaches the client to a room. When the room's match is
// already running, only known match players within the rejoin grace (or
// displacing their own stale socket) get through.
func (g *Gateway) handleRoomJoin(cl *Client, roomID string) {
	code := database.NormalizeRoomCode(roomID)
	if code == "" {
		cl.sendError("invalid_room_id")
		return
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()

	roomRow, err := g.dbGetRoom(ctx, code)
	if err != nil {
		cl.sendError(database.CodeOf(err))
		return
	}
	members, err := g.dbGetMembers(ctx, code)
	if err != nil {
		cl.sendError(database.CodeOf(err))
		return
	}
	isMember := false
	for _, mem := range members {
		if mem.UserID == cl.UserID {
			isMember = true
			break
		}
	}
	if !isMember {
		cl.sendError("not_a_member")
		return
	}

	now := time.Now()
	nowMs := now.UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.roomLocked(code, roomRow.OwnerUserID)
	for _, mem := range members {
		room.assignSlotLocked(mem.UserID, "")
	}
	room.assignSlotLocked(cl.UserID, cl.DisplayName)

	m, hasMatch := g.Matches.MatchForRoom(code)
	stale := room.Players[cl.UserID]

	if roomRow.Phase != models.RoomPhaseLobby {
		allowed := hasMatch && m.HasPlayer(cl.UserID) &&
			(m.IsPlayerRejoinable(cl.UserID, nowMs) || (stale != nil && stale != cl))
		if !allowed {
			cl.sendError("room_started:rejoin_grace_expired")
			return
		}
	}

	if stale != nil && stale != cl {
		g.log.WithFields(logrus.Fields{
			"userId":   cl.UserID,
			"roomCode": code,
		}).Info("displacing stale socket")
		g.detachLocked(stale)
		stale.terminate(websocket.StatusPolicyViolation, "displaced by newer connection")
	}
	if cl.Attached && cl.RoomCode != code {
		g.detachLocked(cl)
	}

	room.Players[cl.UserID] = cl
	cl.RoomCode = code
	cl.Attached = true
	cl.MatchID = ""
	room.LastActivityMs = nowMs

	if hasMatch && !m.IsEnded() {
		cl.MatchID = m.ID
		m.MarkPlayerReconnected(cl.UserID)
		g.Resume.TouchMultiplayer(cl.UserID, code, m.ID, now)
		g.beginRejoinHandshakeLocked(cl, m)
	}
}

// handleRoomLeave detaches the client and pushes the membership change to
// the store off the hot path.
func (g *Gateway) handleRoomLeave(cl *Client) {
	g.mu.Lock()
	if !cl.Attached {
		g.mu.Unlock()
		cl.sendError("not_in_room")
		return
	}
	code := cl.RoomCode
	room := g.rooms[code]
	isOwner := room != nil && room.OwnerUserID == cl.UserID
	g.detachLocked(cl)
	g.mu.Unlock()

	g.Resume.MarkTerminated(cl.UserID)

	userID := cl.UserID
	go func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFn()
		var err error
		if isOwner {
			err = g.dbCloseRoom(ctx, userID, code)
		} else {
			_, _, err = g.dbLeaveRoom(ctx, userID)
		}
		if err != nil && database.CodeOf(err) == "internal_error" {
			g.log.WithError(err).WithFields(logrus.Fields{
				"userId":   userID,
				"roomCode": code,
			}).Warn("room leave persistence failed")
		}
	}()
}

// handleMatchStart launches the room's match. Only the owner may start, and
// at least two players must be attached over WS.
func (g *Gateway) handleMatchStart(cl *Client) {
	g.mu.Lock()
	if !cl.Attached {
		g.mu.Unlock()
		cl.sendError("not_in_room")
		return
	}
	code := cl.RoomCode
	room := g.rooms[code]
	if room == nil {
		g.mu.Unlock()
		cl.sendError("not_in_room")
		return
	}
	if room.OwnerUserID != cl.UserID {
		g.mu.Unlock()
		cl.sendError("forbidden")
		return
	}
	attached := len(room.Players)
	g.mu.Unlock()

	if attached < 2 {
		cl.sendError("not_enough_ws_players")
		return
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	if _, err := g.dbStartRoom(ctx, cl.UserID, code); err != nil {
		errCode := database.CodeOf(err)
		// room_started with no live match means the phase was set via REST
		// already; the simulation still has to launch.
		if _, live := g.Matches.MatchForRoom(code); errCode != "room_started" || live {
			cl.sendError(errCode)
			return
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, live := g.Matches.MatchForRoom(code); live {
		cl.sendError("room_started")
		return
	}
	if room := g.rooms[code]; room != nil {
		g.startMatchInRoomLocked(room)
	}
}

// handleMatchInput rate-limits and enqueues a movement input. Only move
// payloads come through this path.
func (g *Gateway) handleMatchInput(cl *Client, packet map[string]interface{}) {
	g.mu.Lock()
	if !cl.Attached || cl.MatchID == "" {
		g.mu.Unlock()
		cl.sendError("not_in_room")
		return
	}
	nowMs := time.Now().UnixMilli()
	if !cl.limiter.Allow(nowMs) {
		g.mu.Unlock()
		g.log.WithField("userId", cl.UserID).Debug("match:input rate limited, dropping")
		return
	}
	matchID := cl.MatchID
	g.mu.Unlock()

	m, ok := g.Matches.GetMatch(matchID)
	if !ok {
		return
	}

	payload, _ := packet["payload"].(map[string]interface{})
	if kind, _ := payload["kind"].(string); kind != "move" {
		cl.sendError("invalid_payload")
		return
	}
	dir, _ := payload["dir"].(string) // nil clears intent
	switch dir {
	case "", game.DirUp, game.DirDown, game.DirLeft, game.DirRight:
	default:
		cl.sendError("invalid_payload")
		return
	}

	seq := msgInt64(packet, "seq")
	if !m.EnqueueInput(cl.UserID, seq, dir) {
		g.log.WithFields(logrus.Fields{
			"userId": cl.UserID,
			"seq":    seq,
		}).Debug("input dropped (stale seq or full queue)")
	}
}

// handleBombPlace places a bomb at the caller's authoritative cell. Client
// supplied coordinates are ignored.
func (g *Gateway) handleBombPlace(cl *Client) {
	g.mu.Lock()
	if !cl.Attached || cl.MatchID == "" {
		g.mu.Unlock()
		cl.sendError("not_in_room")
		return
	}
	roomCode, matchID := cl.RoomCode, cl.MatchID
	g.mu.Unlock()

	m, ok := g.Matches.GetMatch(matchID)
	if !ok {
		return
	}
	ev, reject := m.TryPlaceBombAtPlayer(cl.UserID)
	if reject != "" {
		g.log.WithFields(logrus.Fields{
			"userId": cl.UserID,
			"reject": reject,
		}).Debug("bomb placement rejected")
		return
	}
	g.broadcastToRoomMatch(roomCode, matchID, ev)
}
