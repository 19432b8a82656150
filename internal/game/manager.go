// internal/game/manager.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config tunes a match. Zero values fall back to defaults.
type Config struct {
	GridW, GridH           int
	BombFuseTicks          int64
	BombRange              int
	MaxBombsPerPlayer      int
	InitialLives           int
	EnemyCount             int
	EnemyMoveIntervalTicks int64
}

// DefaultConfig returns the standard match tuning.
func DefaultConfig() Config {
	return Config{
		GridW:                  DefaultGridW,
		GridH:                  DefaultGridH,
		BombFuseTicks:          DefaultBombFuse,
		BombRange:              DefaultBombRange,
		MaxBombsPerPlayer:      DefaultMaxBombs,
		InitialLives:           InitialLives,
		EnemyCount:             DefaultEnemyCount,
		EnemyMoveIntervalTicks: DefaultEnemyMoveInterval,
	}
}

// Manager owns every live match: matchId -> Match plus the roomCode ->
// matchId index. Creating a match for a room ends any previous one.
type Manager struct {
	mu          sync.RWMutex
	matches     map[string]*Match
	roomToMatch map[string]string

	cfg Config
	log *logrus.Logger
}

// NewManager builds an empty match manager.
func NewManager(log *logrus.Logger, cfg Config) *Manager {
	return &Manager{
		matches:     make(map[string]*Match),
		roomToMatch: make(map[string]string),
		cfg:         cfg,
		log:         log,
	}
}

// CreateMatch builds a fresh match for the room. Seat order determines
// colorId (idx % 4) and the spawn corner, so stable slots survive restarts.
// The tick loop is NOT started; call StartLoop once broadcast wiring is set.
func (mgr *Manager) CreateMatch(roomCode string, seats []Seat) *Match {
	mgr.mu.Lock()
	if oldID, ok := mgr.roomToMatch[roomCode]; ok {
		if old := mgr.matches[oldID]; old != nil {
			old.Stop()
		}
		delete(mgr.matches, oldID)
		delete(mgr.roomToMatch, roomCode)
	}
	mgr.mu.Unlock()

	world := NewWorld(mgr.cfg.GridW, mgr.cfg.GridH)
	corners := SpawnCorners(world.GridW, world.GridH)

	m := &Match{
		ID:                     uuid.NewString(),
		RoomCode:               roomCode,
		World:                  world,
		Players:                make(map[string]*PlayerState, len(seats)),
		Lives:                  make(map[string]int, len(seats)),
		Scores:                 make(map[string]int, len(seats)),
		Disconnected:           make(map[string]int64),
		Bombs:                  make(map[int64]*Bomb),
		Enemies:                make(map[int]*EnemyState),
		MaxBombsPerPlayer:      mgr.cfg.MaxBombsPerPlayer,
		BombFuseTicks:          mgr.cfg.BombFuseTicks,
		BombRange:              mgr.cfg.BombRange,
		EnemyMoveIntervalTicks: mgr.cfg.EnemyMoveIntervalTicks,
		stopCh:                 make(chan struct{}),
	}

	for idx, seat := range seats {
		corner := corners[idx%4]
		m.Players[seat.UserID] = &PlayerState{
			UserID:           seat.UserID,
			DisplayName:      seat.DisplayName,
			ColorID:          idx % 4,
			SkinID:           seat.SkinID,
			X:                corner[0],
			Y:                corner[1],
			SpawnX:           corner[0],
			SpawnY:           corner[1],
			State:            PlayerAlive,
			LastEnemyHitTick: -EnemyHitCooldownTicks,
		}
		m.Lives[seat.UserID] = mgr.cfg.InitialLives
	}

	for i, cell := range enemySpawnCells(world, corners, mgr.cfg.EnemyCount) {
		m.Enemies[i] = &EnemyState{
			ID:      i,
			X:       cell[0],
			Y:       cell[1],
			Alive:   true,
			LastDir: -1,
		}
	}

	mgr.mu.Lock()
	mgr.matches[m.ID] = m
	mgr.roomToMatch[roomCode] = m.ID
	mgr.mu.Unlock()

	mgr.log.WithFields(logrus.Fields{
		"roomCode":  roomCode,
		"matchId":   m.ID,
		"players":   len(seats),
		"enemies":   len(m.Enemies),
		"worldHash": world.WorldHash,
	}).Info("match created")
	return m
}

// enemySpawnCells deterministically picks empty interior cells far from
// every player spawn, evenly spread over the candidate list.
func enemySpawnCells(world *World, corners [4][2]int, count int) [][2]int {
	var candidates [][2]int
	for y := 1; y < world.GridH-1; y++ {
		for x := 1; x < world.GridW-1; x++ {
			if world.TileAt(x, y) != TileEmpty {
				continue
			}
			farEnough := true
			for _, c := range corners {
				if abs(x-c[0])+abs(y-c[1]) < 6 {
					farEnough = false
					break
				}
			}
			if farEnough {
				candidates = append(candidates, [2]int{x, y})
			}
		}
	}
	if count > len(candidates) {
		count = len(candidates)
	}
	cells := make([][2]int, 0, count)
	for i := 0; i < count; i++ {
		cells = append(cells, candidates[i*len(candidates)/count])
	}
	return cells
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// StartLoop runs the 20 Hz tick loop for a match in its own goroutine.
// emit receives every event (snapshot included) after the tick releases the
// match lock; onEnd fires once when the match finishes or is stopped.
func (mgr *Manager) StartLoop(m *Match, emit func(Msg), onEnd func(winnerUserID, reason string)) {
	go func() {
		ticker := time.NewTicker(TickPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				mgr.remove(m)
				return
			case now := <-ticker.C:
				events, ended := m.Advance(now)
				for _, ev := range events {
					emit(ev)
				}
				if ended {
					m.Mu.Lock()
					winner, reason := m.WinnerUserID, m.EndReason
					m.Mu.Unlock()
					mgr.log.WithFields(logrus.Fields{
						"matchId":  m.ID,
						"roomCode": m.RoomCode,
						"winner":   winner,
						"reason":   reason,
					}).Info("match ended")
					if onEnd != nil {
						onEnd(winner, reason)
					}
					m.Stop()
					mgr.remove(m)
					return
				}
			}
		}
	}()
}

func (mgr *Manager) remove(m *Match) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.matches[m.ID] == m {
		delete(mgr.matches, m.ID)
	}
	if mgr.roomToMatch[m.RoomCode] == m.ID {
		delete(mgr.roomToMatch, m.RoomCode)
	}
}

// EndMatch stops a match's tick loop and drops it from the indices.
func (mgr *Manager) EndMatch(matchID string) {
	mgr.mu.Lock()
	m := mgr.matches[matchID]
	mgr.mu.Unlock()
	if m != nil {
		m.Stop()
		mgr.remove(m)
	}
}

// GetMatch looks up a live match by id.
func (mgr *Manager) GetMatch(matchID string) (*Match, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	m, ok := mgr.matches[matchID]
	return m, ok
}

// MatchForRoom looks up the live match attached to a room.
func (mgr *Manager) MatchForRoom(roomCode string) (*Match, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	id, ok := mgr.roomToMatch[roomCode]
	if !ok {
		return nil, false
	}
	m, ok := mgr.matches[id]
	return m, ok
}
