// internal/game/bombs.go
package game

import "sort"

// Bomb placement reject reasons.
const (
	RejectPlayerMissing      = "player_missing"
	RejectPlayerEliminated   = "player_eliminated"
	RejectPlayerNotAlive     = "player_not_alive"
	RejectWrongCell          = "wrong_cell"
	RejectCellNotTraversable = "cell_not_traversable"
	RejectTooManyBombs       = "too_many_bombs"
	RejectCellOccupied       = "cell_occupied_by_bomb"
)

// TryPlaceBomb attempts a bomb placement at (x, y) for the player. On
// success it returns the match:bomb_spawned event; otherwise a nil event and
// a machine-readable reject reason.
func (m *Match) TryPlaceBomb(userID string, x, y int) (Msg, string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.tryPlaceBombLocked(userID, x, y)
}

// TryPlaceBombAtPlayer places a bomb at the caller's authoritative cell; the
// gateway uses this so client-supplied coordinates are never trusted.
func (m *Match) TryPlaceBombAtPlayer(userID string) (Msg, string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p, ok := m.Players[userID]
	if !ok {
		return nil, RejectPlayerMissing
	}
	return m.tryPlaceBombLocked(userID, p.X, p.Y)
}

func (m *Match) tryPlaceBombLocked(userID string, x, y int) (Msg, string) {
	p, ok := m.Players[userID]
	if !ok {
		return nil, RejectPlayerMissing
	}
	if p.State == PlayerEliminated {
		return nil, RejectPlayerEliminated
	}
	if p.State != PlayerAlive {
		return nil, RejectPlayerNotAlive
	}
	if x != p.X || y != p.Y {
		return nil, RejectWrongCell
	}
	if m.World.TileAt(x, y) != TileEmpty {
		return nil, RejectCellNotTraversable
	}

	owned := 0
	for _, b := range m.Bombs {
		if b.OwnerUserID == userID {
			owned++
		}
		if b.X == x && b.Y == y {
			return nil, RejectCellOccupied
		}
	}
	if owned >= m.MaxBombsPerPlayer {
		return nil, RejectTooManyBombs
	}

	m.nextBombID++
	b := &Bomb{
		ID:            m.nextBombID,
		OwnerUserID:   userID,
		X:             x,
		Y:             y,
		TickPlaced:    m.Tick,
		ExplodeAtTick: m.Tick + m.BombFuseTicks,
		Range:         m.BombRange,
	}
	m.Bombs[b.ID] = b

	return Msg{
		"type":    "match:bomb_spawned",
		"matchId": m.ID,
		"bomb": Msg{
			"id":            b.ID,
			"x":             b.X,
			"y":             b.Y,
			"ownerId":       b.OwnerUserID,
			"tickPlaced":    b.TickPlaced,
			"explodeAtTick": b.ExplodeAtTick,
		},
		"seq": m.nextEventSeq(),
	}, ""
}

func (m *Match) sortedBombIDs() []int64 {
	ids := make([]int64, 0, len(m.Bombs))
	for id := range m.Bombs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// blastCells computes a bomb's damage footprint: the origin plus up to rng
// cells along each axis direction, stopping at hard walls and including (then
// stopping at) the first brick.
func (m *Match) blastCells(bx, by, rng int) [][2]int {
	cells := [][2]int{{bx, by}}
	dirs := [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	for _, d := range dirs {
		for step := 1; step <= rng; step++ {
			x, y := bx+d[0]*step, by+d[1]*step
			tile := m.World.TileAt(x, y)
			if tile == TileWall {
				break
			}
			cells = append(cells, [2]int{x, y})
			if tile == TileBrick {
				break
			}
		}
	}
	return cells
}

// resolveExplosions detonates every due bomb in (explodeAtTick, id) order.
// A blast over a non-due bomb does not accelerate it; each player takes at
// most one bomb's damage per tick.
func (m *Match) resolveExplosions(events []Msg) []Msg {
	damagedThisTick := make(map[string]bool)

	for {
		var due *Bomb
		for _, id := range m.sortedBombIDs() {
			b := m.Bombs[id]
			if b.ExplodeAtTick > m.Tick {
				continue
			}
			if due == nil || b.ExplodeAtTick < due.ExplodeAtTick ||
				(b.ExplodeAtTick == due.ExplodeAtTick && b.ID < due.ID) {
				due = b
			}
		}
		if due == nil {
			return events
		}
		delete(m.Bombs, due.ID)

		cells := m.blastCells(due.X, due.Y, due.Range)
		blast := make(map[[2]int]bool, len(cells))
		cellMsgs := make([]Msg, 0, len(cells))
		for _, c := range cells {
			blast[c] = true
			cellMsgs = append(cellMsgs, Msg{"x": c[0], "y": c[1]})
		}

		var destroyed []Msg
		for _, c := range cells {
			if m.World.TileAt(c[0], c[1]) == TileBrick {
				m.World.SetTile(c[0], c[1], TileEmpty)
				destroyed = append(destroyed, Msg{"x": c[0], "y": c[1]})
			}
		}

		events = append(events, Msg{
			"type":    "match:bomb_exploded",
			"matchId": m.ID,
			"bombId":  due.ID,
			"ownerId": due.OwnerUserID,
			"x":       due.X,
			"y":       due.Y,
			"cells":   cellMsgs,
			"tick":    m.Tick,
			"seq":     m.nextEventSeq(),
		})
		if len(destroyed) > 0 {
			events = append(events, Msg{
				"type":    "match:tiles_destroyed",
				"matchId": m.ID,
				"tiles":   destroyed,
				"tick":    m.Tick,
				"seq":     m.nextEventSeq(),
			})
			m.Scores[due.OwnerUserID] += len(destroyed)
		}

		for _, uid := range m.sortedPlayerIDs() {
			p := m.Players[uid]
			if p.State != PlayerAlive || p.InvulnUntilTick > m.Tick {
				continue
			}
			if damagedThisTick[uid] || !blast[[2]int{p.X, p.Y}] {
				continue
			}
			damagedThisTick[uid] = true
			events = m.applyDamage(uid, events)
		}

		for _, eid := range m.sortedEnemyIDs() {
			e := m.Enemies[eid]
			if e.Alive && blast[[2]int{e.X, e.Y}] {
				e.Alive = false
				e.IsMoving = false
				m.Scores[due.OwnerUserID] += 10
			}
		}
	}
}
