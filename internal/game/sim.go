// internal/game/sim.go
//
// The fixed-rate simulator. Each tick resolves, in this exact order:
// disconnect pruning, respawns, input drain, player movement, enemy AI,
// enemy contact damage, bomb explosions, end check, snapshot.
package game

import (
	"sort"
	"time"
)

// Msg is one outbound event payload keyed by its "type" tag.
type Msg = map[string]interface{}

// Advance runs a single tick and returns the events to broadcast (snapshot
// included) plus whether the match just ended. The caller broadcasts after
// this returns; no I/O happens under the match lock.
func (m *Match) Advance(now time.Time) (events []Msg, ended bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Ended {
		return nil, true
	}

	m.Tick++
	nowMs := now.UnixMilli()

	events = m.pruneDisconnected(nowMs, events)
	events = m.advanceRespawns(events)
	m.drainInputs()
	m.advanceMovement(nowMs)
	m.stepEnemies(nowMs)
	events = m.applyEnemyContact(events)
	events = m.resolveExplosions(events)
	events, ended = m.checkEnd(events)
	events = append(events, m.snapshotLocked(nowMs))

	return events, ended
}

// sortedPlayerIDs returns player ids in deterministic order.
func (m *Match) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(m.Players))
	for id := range m.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pruneDisconnected eliminates players whose disconnection exceeded the
// rejoin grace.
func (m *Match) pruneDisconnected(nowMs int64, events []Msg) []Msg {
	for _, uid := range m.sortedPlayerIDs() {
		at, ok := m.Disconnected[uid]
		if !ok || nowMs-at <= RejoinGraceMs {
			continue
		}
		p := m.Players[uid]
		if p.State == PlayerEliminated {
			continue
		}
		m.Lives[uid] = 0
		p.State = PlayerEliminated
		p.IsMoving = false
		p.IntentDir = ""
		events = append(events, Msg{
			"type":    "match:player_eliminated",
			"matchId": m.ID,
			"userId":  uid,
			"tick":    m.Tick,
			"seq":     m.nextEventSeq(),
		})
	}
	return events
}

// advanceRespawns returns dead players to their spawn once the delay lapses.
func (m *Match) advanceRespawns(events []Msg) []Msg {
	for _, uid := range m.sortedPlayerIDs() {
		p := m.Players[uid]
		if p.State != PlayerDeadRespawning || p.RespawnAtTick > m.Tick {
			continue
		}
		p.State = PlayerAlive
		p.X, p.Y = p.SpawnX, p.SpawnY
		p.IsMoving = false
		p.IntentDir = ""
		p.InvulnUntilTick = m.Tick + InvulnTicks
		p.LastEnemyHitTick = -EnemyHitCooldownTicks
		events = append(events, Msg{
			"type":            "match:player_respawned",
			"matchId":         m.ID,
			"userId":          uid,
			"x":               p.X,
			"y":               p.Y,
			"invulnUntilTick": p.InvulnUntilTick,
			"tick":            m.Tick,
			"seq":             m.nextEventSeq(),
		})
	}
	return events
}

// drainInputs applies the queued inputs FIFO. Stale seqs and inputs from
// missing, eliminated or respawning players are dropped.
func (m *Match) drainInputs() {
	for _, in := range m.inputQueue {
		p, ok := m.Players[in.UserID]
		if !ok || p.State == PlayerEliminated || p.State == PlayerDeadRespawning {
			continue
		}
		if in.Seq <= p.LastInputSeq {
			continue
		}
		p.LastInputSeq = in.Seq
		p.IntentDir = in.Dir
	}
	m.inputQueue = m.inputQueue[:0]
}

func dirDelta(dir string) (dx, dy int, ok bool) {
	switch dir {
	case DirUp:
		return 0, -1, true
	case DirDown:
		return 0, 1, true
	case DirLeft:
		return -1, 0, true
	case DirRight:
		return 1, 0, true
	}
	return 0, 0, false
}

// cellBlocked reports whether (x, y) cannot be entered: non-empty tile, a
// bomb, or another player's authoritative cell.
func (m *Match) cellBlocked(x, y int, selfID string) bool {
	if m.World.TileAt(x, y) != TileEmpty {
		return true
	}
	for _, b := range m.Bombs {
		if b.X == x && b.Y == y {
			return true
		}
	}
	for uid, p := range m.Players {
		if uid == selfID || p.State == PlayerEliminated || p.State == PlayerDeadRespawning {
			continue
		}
		if p.X == x && p.Y == y {
			return true
		}
	}
	return false
}

// advanceMovement finishes due move animations and starts one-cell steps for
// players with a pending intent. The authoritative cell commits at move
// start; interpolation fields are presentational.
func (m *Match) advanceMovement(nowMs int64) {
	for _, uid := range m.sortedPlayerIDs() {
		p := m.Players[uid]
		if p.State != PlayerAlive {
			continue
		}
		if p.IsMoving && m.Tick-p.MoveStartTick >= int64(p.MoveDurationTicks) {
			p.IsMoving = false
			p.IntentDir = ""
		}
		if p.IsMoving || p.IntentDir == "" {
			continue
		}
		dx, dy, ok := dirDelta(p.IntentDir)
		if !ok {
			p.IntentDir = ""
			continue
		}
		tx, ty := p.X+dx, p.Y+dy
		if m.cellBlocked(tx, ty, uid) {
			continue
		}
		p.IsMoving = true
		p.MoveFromX, p.MoveFromY = p.X, p.Y
		p.MoveToX, p.MoveToY = tx, ty
		p.MoveStartTick = m.Tick
		p.MoveDurationTicks = MoveDurationTicks
		p.MoveStartServerTimeMs = nowMs
		p.X, p.Y = tx, ty
	}
}

// applyEnemyContact damages alive players sharing a cell with an alive enemy,
// subject to invulnerability and the per-player contact cooldown.
func (m *Match) applyEnemyContact(events []Msg) []Msg {
	for _, eid := range m.sortedEnemyIDs() {
		e := m.Enemies[eid]
		if !e.Alive {
			continue
		}
		for _, uid := range m.sortedPlayerIDs() {
			p := m.Players[uid]
			if p.State != PlayerAlive || p.X != e.X || p.Y != e.Y {
				continue
			}
			if p.InvulnUntilTick > m.Tick {
				continue
			}
			if m.Tick-p.LastEnemyHitTick < EnemyHitCooldownTicks {
				continue
			}
			p.LastEnemyHitTick = m.Tick
			events = m.applyDamage(uid, events)
		}
	}
	return events
}

// applyDamage decrements lives and transitions the player to respawning or
// eliminated. Emits match:player_damaged, plus match:player_eliminated when
// the last life is gone.
func (m *Match) applyDamage(userID string, events []Msg) []Msg {
	p := m.Players[userID]
	if p == nil || p.State != PlayerAlive {
		return events
	}
	m.Lives[userID]--
	p.IsMoving = false
	p.IntentDir = ""

	if m.Lives[userID] <= 0 {
		m.Lives[userID] = 0
		p.State = PlayerEliminated
	} else {
		p.State = PlayerDeadRespawning
		p.RespawnAtTick = m.Tick + RespawnDelayTicks
	}

	ev := Msg{
		"type":    "match:player_damaged",
		"matchId": m.ID,
		"userId":  userID,
		"lives":   m.Lives[userID],
		"state":   p.State,
		"tick":    m.Tick,
		"seq":     m.nextEventSeq(),
	}
	if p.State == PlayerDeadRespawning {
		ev["respawnAtTick"] = p.RespawnAtTick
	}
	events = append(events, ev)

	if p.State == PlayerEliminated {
		events = append(events, Msg{
			"type":    "match:player_eliminated",
			"matchId": m.ID,
			"userId":  userID,
			"tick":    m.Tick,
			"seq":     m.nextEventSeq(),
		})
	}
	return events
}

// checkEnd finishes the match when at most one player remains un-eliminated.
func (m *Match) checkEnd(events []Msg) ([]Msg, bool) {
	var survivors []string
	for _, uid := range m.sortedPlayerIDs() {
		if m.Players[uid].State != PlayerEliminated {
			survivors = append(survivors, uid)
		}
	}
	if len(survivors) > 1 {
		return events, false
	}

	m.Ended = true
	reason := "draw"
	var winner interface{}
	if len(survivors) == 1 {
		m.WinnerUserID = survivors[0]
		winner = survivors[0]
		reason = "elimination"
	}
	m.EndReason = reason

	events = append(events, Msg{
		"type":         "match:end",
		"matchId":      m.ID,
		"roomCode":     m.RoomCode,
		"winnerUserId": winner,
		"reason":       reason,
		"tick":         m.Tick,
		"seq":          m.nextEventSeq(),
	})
	return events, true
}

// snapshotLocked builds the full match:snapshot message. Caller holds Mu.
func (m *Match) snapshotLocked(nowMs int64) Msg {
	bombs := make([]Msg, 0, len(m.Bombs))
	for _, id := range m.sortedBombIDs() {
		b := m.Bombs[id]
		bombs = append(bombs, Msg{
			"id":            b.ID,
			"x":             b.X,
			"y":             b.Y,
			"ownerId":       b.OwnerUserID,
			"tickPlaced":    b.TickPlaced,
			"explodeAtTick": b.ExplodeAtTick,
		})
	}

	teamScore := 0
	for _, s := range m.Scores {
		if s > 0 {
			teamScore += s
		}
	}

	players := make([]Msg, 0, len(m.Players))
	for _, uid := range m.sortedPlayerIDs() {
		p := m.Players[uid]
		_, disconnected := m.Disconnected[uid]
		fromX, fromY := p.X, p.Y
		toX, toY := p.X, p.Y
		durTicks := 0
		startTick := m.Tick
		startMs := nowMs
		if p.IsMoving {
			fromX, fromY = p.MoveFromX, p.MoveFromY
			toX, toY = p.MoveToX, p.MoveToY
			durTicks = p.MoveDurationTicks
			startTick = p.MoveStartTick
			startMs = p.MoveStartServerTimeMs
		}
		players = append(players, Msg{
			"userId":                uid,
			"displayName":           p.DisplayName,
			"colorId":               p.ColorID,
			"skinId":                p.SkinID,
			"lastInputSeq":          p.LastInputSeq,
			"x":                     p.X,
			"y":                     p.Y,
			"isMoving":              p.IsMoving,
			"moveFromX":             fromX,
			"moveFromY":             fromY,
			"moveToX":               toX,
			"moveToY":               toY,
			"moveStartTick":         startTick,
			"moveDurationTicks":     durTicks,
			"moveStartServerTimeMs": startMs,
			"moveDurationMs":        int64(durTicks) * TickPeriod.Milliseconds(),
			"lives":                 m.Lives[uid],
			"score":                 m.Scores[uid],
			"eliminated":            p.State == PlayerEliminated,
			"disconnected":          disconnected,
		})
	}

	enemies := make([]Msg, 0, len(m.Enemies))
	for _, eid := range m.sortedEnemyIDs() {
		e := m.Enemies[eid]
		fromX, fromY := e.X, e.Y
		toX, toY := e.X, e.Y
		durTicks := 0
		startTick := m.Tick
		startMs := nowMs
		if e.IsMoving {
			fromX, fromY = e.MoveFromX, e.MoveFromY
			toX, toY = e.MoveToX, e.MoveToY
			durTicks = e.MoveDurationTicks
			startTick = e.MoveStartTick
			startMs = e.MoveStartServerTimeMs
		}
		enemies = append(enemies, Msg{
			"id":                    e.ID,
			"x":                     e.X,
			"y":                     e.Y,
			"alive":                 e.Alive,
			"isMoving":              e.IsMoving,
			"moveFromX":             fromX,
			"moveFromY":             fromY,
			"moveToX":               toX,
			"moveToY":               toY,
			"moveStartTick":         startTick,
			"moveDurationTicks":     durTicks,
			"moveStartServerTimeMs": startMs,
		})
	}

	return Msg{
		"type": "match:snapshot",
		"snapshot": Msg{
			"version":      "match_v1",
			"roomCode":     m.RoomCode,
			"matchId":      m.ID,
			"tick":         m.Tick,
			"serverTime":   nowMs,
			"serverTimeMs": nowMs,
			"world": Msg{
				"gridW":     m.World.GridW,
				"gridH":     m.World.GridH,
				"worldHash": m.World.WorldHash,
				"bombs":     bombs,
			},
			"score":   teamScore,
			"players": players,
			"enemies": enemies,
		},
	}
}

// Snapshot builds the current snapshot outside the tick loop (rejoin sync).
func (m *Match) Snapshot(now time.Time) Msg {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.snapshotLocked(now.UnixMilli())
}

// WorldInitMsg builds the match:world_init message.
func (m *Match) WorldInitMsg() Msg {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return Msg{
		"type":     "match:world_init",
		"roomCode": m.RoomCode,
		"matchId":  m.ID,
		"world": Msg{
			"gridW":     m.World.GridW,
			"gridH":     m.World.GridH,
			"tiles":     m.World.Tiles,
			"worldHash": m.World.WorldHash,
		},
	}
}
