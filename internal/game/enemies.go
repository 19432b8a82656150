// internal/game/enemies.go
package game

import (
	"fmt"
	"sort"
)

// Direction codes for enemies: 0=up 1=down 2=left 3=right.
var enemyDirDeltas = [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}

func oppositeDir(dir int) int {
	switch dir {
	case 0:
		return 1
	case 1:
		return 0
	case 2:
		return 3
	case 3:
		return 2
	}
	return -1
}

func (m *Match) sortedEnemyIDs() []int {
	ids := make([]int, 0, len(m.Enemies))
	for id := range m.Enemies {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// enemyRoll derives a deterministic pseudo-random value for an enemy's move
// decision from the match id, tick and enemy id. Same inputs, same roll.
func (m *Match) enemyRoll(enemyID int) uint32 {
	return fnv1a32String(fmt.Sprintf("%s|%d|%d", m.ID, m.Tick, enemyID))
}

// enemyCellFree reports whether an enemy may step onto (x, y): in bounds,
// empty tile, no bomb, and not occupied by another enemy.
func (m *Match) enemyCellFree(x, y, selfID int) bool {
	if m.World.TileAt(x, y) != TileEmpty {
		return false
	}
	for _, b := range m.Bombs {
		if b.X == x && b.Y == y {
			return false
		}
	}
	for id, e := range m.Enemies {
		if id == selfID || !e.Alive {
			continue
		}
		if e.X == x && e.Y == y {
			return false
		}
	}
	return true
}

// stepEnemies advances enemy AI. Every moveInterval ticks an idle enemy
// prefers continuing its last direction; otherwise it picks deterministically
// among free neighbour cells, avoiding the backtrack direction unless it is
// the only option. The grid position commits immediately; clients
// interpolate via the move fields.
func (m *Match) stepEnemies(nowMs int64) {
	if m.EnemyMoveIntervalTicks <= 0 {
		return
	}
	for _, eid := range m.sortedEnemyIDs() {
		e := m.Enemies[eid]
		if !e.Alive {
			continue
		}
		if e.IsMoving && m.Tick-e.MoveStartTick >= int64(e.MoveDurationTicks) {
			e.IsMoving = false
		}
		if m.Tick%m.EnemyMoveIntervalTicks != 0 || e.IsMoving {
			continue
		}

		dir := -1
		if e.LastDir >= 0 {
			d := enemyDirDeltas[e.LastDir]
			if m.enemyCellFree(e.X+d[0], e.Y+d[1], eid) {
				dir = e.LastDir
			}
		}
		if dir < 0 {
			var candidates []int
			back := oppositeDir(e.LastDir)
			for cand := 0; cand < 4; cand++ {
				d := enemyDirDeltas[cand]
				if m.enemyCellFree(e.X+d[0], e.Y+d[1], eid) {
					candidates = append(candidates, cand)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			// Disfavour turning straight back unless nothing else is open.
			if len(candidates) > 1 && back >= 0 {
				filtered := candidates[:0]
				for _, cand := range candidates {
					if cand != back {
						filtered = append(filtered, cand)
					}
				}
				if len(filtered) > 0 {
					candidates = filtered
				}
			}
			dir = candidates[int(m.enemyRoll(eid))%len(candidates)]
		}

		d := enemyDirDeltas[dir]
		tx, ty := e.X+d[0], e.Y+d[1]
		e.IsMoving = true
		e.MoveFromX, e.MoveFromY = e.X, e.Y
		e.MoveToX, e.MoveToY = tx, ty
		e.MoveStartTick = m.Tick
		e.MoveDurationTicks = MoveDurationTicks
		e.MoveStartServerTimeMs = nowMs
		e.X, e.Y = tx, ty
		e.LastDir = dir
	}
}
