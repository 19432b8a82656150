// internal/game/match.go
package game

import (
	"sync"
	"time"
)

// Simulation constants. The tick loop runs at a fixed 20 Hz.
const (
	TickPeriod = 50 * time.Millisecond

	MoveDurationTicks     = 6
	RespawnDelayTicks     = 24
	InvulnTicks           = 20
	EnemyHitCooldownTicks = 12

	InputQueueCap   = 500
	RejoinGraceMs   = 60_000
	InitialLives    = 3
	DefaultBombFuse = 35 // ticks; valid range 30..40
	DefaultBombRange = 2
	DefaultMaxBombs  = 1

	DefaultEnemyCount        = 4
	DefaultEnemyMoveInterval = 10 // ticks between enemy steps
)

// Player states.
const (
	PlayerAlive          = "alive"
	PlayerDeadRespawning = "dead_respawning"
	PlayerEliminated     = "eliminated"
)

// Movement directions on the wire.
const (
	DirUp    = "up"
	DirDown  = "down"
	DirLeft  = "left"
	DirRight = "right"
)

// PlayerState is the authoritative per-player match state. X/Y are the
// authoritative cell; the move* fields are presentational interpolation
// hints committed at move start.
type PlayerState struct {
	UserID      string
	DisplayName string
	ColorID     int
	SkinID      int

	LastInputSeq int64

	X, Y           int
	SpawnX, SpawnY int
	State          string

	IntentDir string // "" = no intent
	IsMoving  bool
	MoveFromX, MoveFromY  int
	MoveToX, MoveToY      int
	MoveStartTick         int64
	MoveDurationTicks     int
	MoveStartServerTimeMs int64

	RespawnAtTick    int64
	InvulnUntilTick  int64
	LastEnemyHitTick int64
}

// Bomb is a placed bomb awaiting detonation.
type Bomb struct {
	ID            int64  `json:"id"`
	OwnerUserID   string `json:"ownerId"`
	X             int    `json:"x"`
	Y             int    `json:"y"`
	TickPlaced    int64  `json:"tickPlaced"`
	ExplodeAtTick int64  `json:"explodeAtTick"`
	Range         int    `json:"-"`
}

// EnemyState is an AI-driven enemy. Direction codes: 0=up 1=down 2=left
// 3=right, -1 when it has not moved yet.
type EnemyState struct {
	ID      int
	X, Y    int
	Alive   bool
	LastDir int

	IsMoving bool
	MoveFromX, MoveFromY  int
	MoveToX, MoveToY      int
	MoveStartTick         int64
	MoveDurationTicks     int
	MoveStartServerTimeMs int64
}

// Input is one queued client input awaiting the next tick.
type Input struct {
	UserID string
	Seq    int64
	Dir    string // "" clears intent
}

// Seat identifies one participant when a match is created. Order determines
// color and spawn corner.
type Seat struct {
	UserID      string
	DisplayName string
	SkinID      int
}

// Match holds the entire authoritative state for one running match. All
// mutation happens under Mu; Advance, input enqueue, bomb placement and
// disconnection handling are mutually exclusive per match.
type Match struct {
	ID       string
	RoomCode string

	Mu sync.Mutex

	Tick  int64
	World *World

	Players map[string]*PlayerState
	Lives   map[string]int
	Scores  map[string]int

	// Disconnected maps userId to disconnect wall-clock millis; players
	// absent longer than the rejoin grace get eliminated by the tick loop.
	Disconnected map[string]int64

	Bombs   map[int64]*Bomb
	Enemies map[int]*EnemyState

	inputQueue []Input
	EventSeq   int64

	Ended        bool
	WinnerUserID string // empty on draw
	EndReason    string

	MaxBombsPerPlayer      int
	BombFuseTicks          int64
	BombRange              int
	EnemyMoveIntervalTicks int64

	nextBombID int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// EnqueueInput appends a client input to the queue drained by the next tick.
// Returns false when the queue is full or the seq is stale; stale seqs are
// also re-checked at drain time.
func (m *Match) EnqueueInput(userID string, seq int64, dir string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if len(m.inputQueue) >= InputQueueCap {
		return false
	}
	if p, ok := m.Players[userID]; ok && seq <= p.LastInputSeq {
		return false
	}
	m.inputQueue = append(m.inputQueue, Input{UserID: userID, Seq: seq, Dir: dir})
	return true
}

// MarkPlayerDisconnected records a disconnect and purges the player's queued
// inputs. Lives and position are untouched pending the rejoin grace.
func (m *Match) MarkPlayerDisconnected(userID string, nowMs int64) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if _, ok := m.Players[userID]; !ok {
		return
	}
	m.Disconnected[userID] = nowMs

	kept := m.inputQueue[:0]
	for _, in := range m.inputQueue {
		if in.UserID != userID {
			kept = append(kept, in)
		}
	}
	m.inputQueue = kept
}

// MarkPlayerReconnected clears the disconnect marker. It does not reset
// lives or position.
func (m *Match) MarkPlayerReconnected(userID string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	delete(m.Disconnected, userID)
}

// IsPlayerRejoinable reports whether the user disconnected within the grace
// window (or is still connected).
func (m *Match) IsPlayerRejoinable(userID string, nowMs int64) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p, ok := m.Players[userID]
	if !ok || p.State == PlayerEliminated {
		return false
	}
	at, disconnected := m.Disconnected[userID]
	if !disconnected {
		return true
	}
	return nowMs-at <= RejoinGraceMs
}

// HasRejoinablePlayer reports whether any non-eliminated player could still
// come back within the rejoin grace. Used by the stale-room sweep.
func (m *Match) HasRejoinablePlayer(nowMs int64) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Ended {
		return false
	}
	for userID, p := range m.Players {
		if p.State == PlayerEliminated {
			continue
		}
		at, disconnected := m.Disconnected[userID]
		if !disconnected || nowMs-at <= RejoinGraceMs {
			return true
		}
	}
	return false
}

// HasPlayer reports whether the user belongs to this match.
func (m *Match) HasPlayer(userID string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	_, ok := m.Players[userID]
	return ok
}

// IsEnded reports whether the match has finished.
func (m *Match) IsEnded() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Ended
}

// Stop cancels the tick loop. Idempotent.
func (m *Match) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Match) nextEventSeq() int64 {
	m.EventSeq++
	return m.EventSeq
}
