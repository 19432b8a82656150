// internal/handlers/gateway.go
//
// The Gateway owns every piece of in-memory WebSocket state: connected
// clients, attached rooms, restart votes, and pending rejoin handshakes.
// A single mutex serialises all of it; match state has its own per-match
// lock and is always acquired after the gateway lock, never before.
package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/config"
	"github.com/rumblerush/server/internal/database"
	"github.com/rumblerush/server/internal/game"
	"github.com/rumblerush/server/internal/models"
	"github.com/rumblerush/server/internal/resume"
)

// Idle thresholds enforced by the background sweep.
const (
	connIdleTimeoutMs = 60_000
	roomIdleTimeoutMs = 90_000
	sweepInterval     = 10 * time.Second
)

const outChanSize = 64

// Client is one live WebSocket connection and its attachment context.
type Client struct {
	ConnectionID uuid.UUID
	UserID       string
	DisplayName  string

	conn   *websocket.Conn
	cancel context.CancelFunc

	// OutChan is drained by the write pump. Sends never block: a full
	// channel drops the message and the client catches up on the next
	// snapshot.
	OutChan chan game.Msg

	RoomCode string
	MatchID  string
	Attached bool
	closed   bool

	LastSeenMs int64
	limiter    rateLimiter

	pendingRejoin *rejoinHandshake
}

// Send queues a message for the write pump without blocking. Returns false
// when the message was dropped.
func (cl *Client) Send(msg game.Msg) bool {
	select {
	case cl.OutChan <- msg:
		return true
	default:
		return false
	}
}

func (cl *Client) sendError(code string) {
	cl.Send(game.Msg{"type": "match:error", "error": code})
}

// terminate closes the socket and cancels the pumps. Safe to call on clients
// that never had a real socket (tests).
func (cl *Client) terminate(status websocket.StatusCode, reason string) {
	cl.closed = true
	if cl.conn != nil {
		_ = cl.conn.Close(status, reason)
	}
	if cl.cancel != nil {
		cl.cancel()
	}
}

// Room is the in-memory attachment state for one room code. SlotByUserID
// assigns each user a stable 0..3 slot the first time they are seen, so
// colour and spawn survive restarts.
type Room struct {
	Code        string
	OwnerUserID string

	SlotByUserID map[string]int
	Names        map[string]string

	// Players maps userId to the currently attached client, if any.
	Players map[string]*Client

	LastActivityMs int64
}

// Gateway routes WebSocket traffic between clients, rooms, and matches.
type Gateway struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*Client
	rooms   map[string]*Room

	Matches *game.Manager
	Resume  *resume.Service
	log     *logrus.Logger

	votes           map[string]*restartVote // roomCode -> active vote
	restartCooldown map[string]int64        // userId -> retryAtMs
	restartIgnored  map[string]int          // userId -> timed-out proposals

	snapshotLogEvery int

	// Store operations, swappable in tests.
	dbGetRoom    func(ctx context.Context, code string) (*models.Room, error)
	dbGetMembers func(ctx context.Context, code string) ([]models.RoomMember, error)
	dbStartRoom  func(ctx context.Context, owner, code string) (*models.Room, error)
	dbSetPhase   func(ctx context.Context, code, phase string) error
	dbLeaveRoom  func(ctx context.Context, userID string) (string, bool, error)
	dbCloseRoom  func(ctx context.Context, owner, code string) error
	dbDeleteRoom func(ctx context.Context, code string) error
}

// NewGateway wires a gateway against the real store.
func NewGateway(log *logrus.Logger, matches *game.Manager, res *resume.Service) *Gateway {
	return &Gateway{
		clients:          make(map[uuid.UUID]*Client),
		rooms:            make(map[string]*Room),
		Matches:          matches,
		Resume:           res,
		log:              log,
		votes:            make(map[string]*restartVote),
		restartCooldown:  make(map[string]int64),
		restartIgnored:   make(map[string]int),
		snapshotLogEvery: config.SnapshotBroadcastLogEvery(),
		dbGetRoom:        database.GetRoom,
		dbGetMembers:     database.GetRoomMembers,
		dbStartRoom:      database.StartRoom,
		dbSetPhase:       database.SetRoomPhase,
		dbLeaveRoom:      database.LeaveRoom,
		dbCloseRoom:      database.CloseRoom,
		dbDeleteRoom:     database.DeleteRoom,
	}
}

func (g *Gateway) newClient(userID, displayName string, conn *websocket.Conn, cancel context.CancelFunc) *Client {
	cl := &Client{
		ConnectionID: uuid.New(),
		UserID:       userID,
		DisplayName:  displayName,
		conn:         conn,
		cancel:       cancel,
		OutChan:      make(chan game.Msg, outChanSize),
		LastSeenMs:   time.Now().UnixMilli(),
	}
	g.mu.Lock()
	g.clients[cl.ConnectionID] = cl
	g.mu.Unlock()
	return cl
}

// dropClient runs after a client's read pump exits: detach from the room,
// mark the player disconnected in any live match (rejoin grace applies), and
// forget the connection.
func (g *Gateway) dropClient(cl *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detachLocked(cl)
	delete(g.clients, cl.ConnectionID)
}

// detachLocked removes the client from its room without touching the clients
// index. Caller holds g.mu.
func (g *Gateway) detachLocked(cl *Client) {
	if hs := cl.pendingRejoin; hs != nil {
		hs.timer.Stop()
		cl.pendingRejoin = nil
	}
	if !cl.Attached {
		return
	}
	cl.Attached = false

	room := g.rooms[cl.RoomCode]
	if room != nil && room.Players[cl.UserID] == cl {
		delete(room.Players, cl.UserID)
		room.LastActivityMs = time.Now().UnixMilli()
	}
	if m, ok := g.Matches.MatchForRoom(cl.RoomCode); ok && m.HasPlayer(cl.UserID) {
		m.MarkPlayerDisconnected(cl.UserID, time.Now().UnixMilli())
	}
}

// roomLocked returns the in-memory room for a code, creating it on first
// attach. Caller holds g.mu.
func (g *Gateway) roomLocked(code, ownerUserID string) *Room {
	room, ok := g.rooms[code]
	if !ok {
		room = &Room{
			Code:         code,
			OwnerUserID:  ownerUserID,
			SlotByUserID: make(map[string]int),
			Names:        make(map[string]string),
			Players:      make(map[string]*Client),
		}
		g.rooms[code] = room
	}
	return room
}

// assignSlotLocked gives the user a stable slot on first sight.
func (room *Room) assignSlotLocked(userID, displayName string) {
	if _, ok := room.SlotByUserID[userID]; !ok {
		room.SlotByUserID[userID] = len(room.SlotByUserID)
	}
	if displayName != "" {
		room.Names[userID] = displayName
	}
}

// getStableMatchPlayers returns the room's users ordered by slot then userId,
// as match seats. Caller holds g.mu.
func getStableMatchPlayers(room *Room) []game.Seat {
	type entry struct {
		userID string
		slot   int
	}
	entries := make([]entry, 0, len(room.SlotByUserID))
	for userID, slot := range room.SlotByUserID {
		entries = append(entries, entry{userID, slot})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].slot != entries[j].slot {
			return entries[i].slot < entries[j].slot
		}
		return entries[i].userID < entries[j].userID
	})

	seats := make([]game.Seat, 0, len(entries))
	for _, e := range entries {
		name := room.Names[e.userID]
		if name == "" {
			name = e.userID
		}
		seats = append(seats, game.Seat{UserID: e.userID, DisplayName: name})
	}
	return seats
}

// broadcastToRoom sends to every attached client of a room, regardless of
// match binding. Used for lobby-level traffic like restart votes.
func (g *Gateway) broadcastToRoom(roomCode string, msg game.Msg) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcastToRoomLocked(roomCode, msg)
}

func (g *Gateway) broadcastToRoomLocked(roomCode string, msg game.Msg) {
	room := g.rooms[roomCode]
	if room == nil {
		return
	}
	for _, cl := range room.Players {
		if cl.Attached && !cl.closed {
			cl.Send(msg)
		}
	}
}

// broadcastToRoomMatch sends a match event to every client whose connection
// context binds it to exactly this (room, match) pair and whose socket is
// still open. Snapshot broadcasts are sampled into a diagnostic log line
// when RR_LOG_SNAPSHOT_BROADCAST is on.
func (g *Gateway) broadcastToRoomMatch(roomCode, matchID string, msg game.Msg) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.rooms[roomCode]
	if room == nil {
		return
	}

	var considered, sent, dropped int
	skipped := map[string]int{}
	for _, cl := range room.Players {
		considered++
		switch {
		case !cl.Attached:
			skipped["detached"]++
		case cl.closed:
			skipped["closed"]++
		case cl.RoomCode != roomCode:
			skipped["other_room"]++
		case cl.MatchID != matchID:
			skipped["other_match"]++
		default:
			if cl.Send(msg) {
				sent++
			} else {
				dropped++
			}
		}
	}

	if g.snapshotLogEvery > 0 && msg["type"] == "match:snapshot" {
		if snap, ok := msg["snapshot"].(game.Msg); ok {
			if tick, ok := snap["tick"].(int64); ok && tick%int64(g.snapshotLogEvery) == 0 {
				g.log.WithFields(logrus.Fields{
					"roomCode":   roomCode,
					"matchId":    matchID,
					"tick":       tick,
					"considered": considered,
					"sent":       sent,
					"dropped":    dropped,
					"skipped":    skipped,
				}).Debug("snapshot broadcast")
			}
		}
	}
}

// startMatchInRoom creates a match for the room with stable seating, binds
// every attached client to it, announces it, and starts the tick loop.
// Caller holds g.mu.
func (g *Gateway) startMatchInRoomLocked(room *Room) *game.Match {
	seats := getStableMatchPlayers(room)
	m := g.Matches.CreateMatch(room.Code, seats)

	now := time.Now()
	for userID, cl := range room.Players {
		cl.MatchID = m.ID
		g.Resume.TouchMultiplayer(userID, room.Code, m.ID, now)
	}
	room.LastActivityMs = now.UnixMilli()

	started := game.Msg{"type": "match:started", "roomCode": room.Code, "matchId": m.ID}
	worldInit := m.WorldInitMsg()
	for _, cl := range room.Players {
		cl.Send(started)
		cl.Send(worldInit)
	}

	// Phase persistence runs off the hot path; transient failures are
	// logged and the match plays on.
	roomCode, matchID := room.Code, m.ID
	go func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFn()
		if err := g.dbSetPhase(ctx, roomCode, models.RoomPhaseStarted); err != nil {
			g.log.WithError(err).WithField("roomCode", roomCode).Warn("failed to persist STARTED phase")
		}
	}()

	g.Matches.StartLoop(m,
		func(ev game.Msg) { g.broadcastToRoomMatch(roomCode, matchID, ev) },
		func(winner, reason string) {
			go func() {
				ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelFn()
				if err := g.dbSetPhase(ctx, roomCode, models.RoomPhaseFinished); err != nil {
					g.log.WithError(err).WithField("roomCode", roomCode).Warn("failed to persist FINISHED phase")
				}
			}()
			g.mu.Lock()
			if r := g.rooms[roomCode]; r != nil {
				r.LastActivityMs = time.Now().UnixMilli()
			}
			g.mu.Unlock()
		})
	return m
}

// FinalizeRoom force-stops a room: match ended, in-memory state dropped,
// DB rows removed, remaining sockets terminated.
func (g *Gateway) FinalizeRoom(roomCode string) {
	g.mu.Lock()
	g.finalizeRoomLocked(roomCode)
	g.mu.Unlock()
}

func (g *Gateway) finalizeRoomLocked(roomCode string) {
	if m, ok := g.Matches.MatchForRoom(roomCode); ok {
		g.Matches.EndMatch(m.ID)
	}
	if v, ok := g.votes[roomCode]; ok {
		v.timer.Stop()
		delete(g.votes, roomCode)
	}

	room := g.rooms[roomCode]
	delete(g.rooms, roomCode)

	go func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFn()
		if err := g.dbSetPhase(ctx, roomCode, models.RoomPhaseFinished); err != nil {
			g.log.WithError(err).WithField("roomCode", roomCode).Warn("finalize: failed to set FINISHED phase")
		}
		if err := g.dbDeleteRoom(ctx, roomCode); err != nil {
			g.log.WithError(err).WithField("roomCode", roomCode).Warn("finalize: failed to delete room rows")
		}
	}()

	if room != nil {
		for _, cl := range room.Players {
			cl.Attached = false
			cl.terminate(websocket.StatusPolicyViolation, "room finalized")
		}
	}
	g.log.WithField("roomCode", roomCode).Info("room finalized")
}
