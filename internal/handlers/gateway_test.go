// internal/handlers/gateway_test.go
package handlers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumblerush/server/internal/database"
	"github.com/rumblerush/server/internal/game"
	"github.com/rumblerush/server/internal/models"
	"github.com/rumblerush/server/internal/resume"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestGateway builds a gateway with all store operations stubbed out.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	log := quietLogger()
	cfg := game.DefaultConfig()
	cfg.EnemyCount = 0
	g := NewGateway(log, game.NewManager(log, cfg), resume.NewService())

	g.dbGetRoom = func(ctx context.Context, code string) (*models.Room, error) {
		return nil, database.Err("room_not_found")
	}
	g.dbGetMembers = func(ctx context.Context, code string) ([]models.RoomMember, error) {
		return nil, nil
	}
	g.dbStartRoom = func(ctx context.Context, owner, code string) (*models.Room, error) {
		return &models.Room{RoomCode: code, Phase: models.RoomPhaseStarted}, nil
	}
	g.dbSetPhase = func(ctx context.Context, code, phase string) error { return nil }
	g.dbLeaveRoom = func(ctx context.Context, userID string) (string, bool, error) { return "", false, nil }
	g.dbCloseRoom = func(ctx context.Context, owner, code string) error { return nil }
	g.dbDeleteRoom = func(ctx context.Context, code string) error { return nil }
	return g
}

// newTestClient registers a socketless client; messages land in OutChan.
func newTestClient(g *Gateway, userID string) *Client {
	cl := &Client{
		ConnectionID: uuid.New(),
		UserID:       userID,
		DisplayName:  "player " + userID,
		OutChan:      make(chan game.Msg, outChanSize),
		LastSeenMs:   time.Now().UnixMilli(),
	}
	g.mu.Lock()
	g.clients[cl.ConnectionID] = cl
	g.mu.Unlock()
	return cl
}

// attachTestClient wires a client straight into an in-memory room.
func attachTestClient(g *Gateway, code, owner string, cl *Client) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	room := g.roomLocked(code, owner)
	room.assignSlotLocked(cl.UserID, cl.DisplayName)
	room.Players[cl.UserID] = cl
	room.LastActivityMs = time.Now().UnixMilli()
	cl.RoomCode = code
	cl.Attached = true
	return room
}

func drainMsgs(cl *Client) []game.Msg {
	var out []game.Msg
	for {
		select {
		case m := <-cl.OutChan:
			out = append(out, m)
		default:
			return out
		}
	}
}

func typesOf(msgs []game.Msg) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t, ok := m["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func findMsg(msgs []game.Msg, typ string) game.Msg {
	for _, m := range msgs {
		if m["type"] == typ {
			return m
		}
	}
	return nil
}

func TestStableSlotOrdering(t *testing.T) {
	g := newTestGateway(t)
	b := newTestClient(g, "b")
	a := newTestClient(g, "a")
	room := attachTestClient(g, "RMAAAA", "b", b)
	attachTestClient(g, "RMAAAA", "b", a)

	seats := getStableMatchPlayers(room)
	require.Len(t, seats, 2)
	// b joined first, so it keeps slot 0 regardless of lexical order.
	assert.Equal(t, "b", seats[0].UserID)
	assert.Equal(t, "a", seats[1].UserID)
	assert.Equal(t, "player b", seats[0].DisplayName)
}

func TestBroadcastToRoomMatchFilters(t *testing.T) {
	g := newTestGateway(t)
	a := newTestClient(g, "a")
	b := newTestClient(g, "b")
	c := newTestClient(g, "c")
	attachTestClient(g, "RMAAAA", "a", a)
	attachTestClient(g, "RMAAAA", "a", b)
	attachTestClient(g, "RMAAAA", "a", c)

	g.mu.Lock()
	a.MatchID = "m1"
	b.MatchID = "m2" // bound to a different match
	c.MatchID = "m1"
	c.closed = true // socket already gone
	g.mu.Unlock()

	g.broadcastToRoomMatch("RMAAAA", "m1", game.Msg{"type": "match:snapshot"})

	assert.Len(t, drainMsgs(a), 1)
	assert.Empty(t, drainMsgs(b))
	assert.Empty(t, drainMsgs(c))
}

func TestStartMatchInRoomBindsClients(t *testing.T) {
	g := newTestGateway(t)
	a := newTestClient(g, "a")
	b := newTestClient(g, "b")
	room := attachTestClient(g, "RMAAAA", "a", a)
	attachTestClient(g, "RMAAAA", "a", b)

	g.mu.Lock()
	m := g.startMatchInRoomLocked(room)
	g.mu.Unlock()
	t.Cleanup(func() { g.Matches.EndMatch(m.ID) })

	assert.Equal(t, m.ID, a.MatchID)
	assert.Equal(t, m.ID, b.MatchID)

	msgs := drainMsgs(a)
	started := findMsg(msgs, "match:started")
	require.NotNil(t, started)
	assert.Equal(t, m.ID, started["matchId"])
	require.NotNil(t, findMsg(msgs, "match:world_init"))

	// The resume service now tracks both players.
	rec, ok := g.Resume.GetActiveSession("a", time.Now())
	require.True(t, ok)
	assert.Equal(t, m.ID, rec.MatchID)
}

func TestSweepTerminatesIdleConnections(t *testing.T) {
	g := newTestGateway(t)
	a := newTestClient(g, "a")
	fresh := newTestClient(g, "b")

	g.mu.Lock()
	a.LastSeenMs = time.Now().Add(-2 * time.Minute).UnixMilli()
	g.mu.Unlock()

	g.sweep(time.Now())

	g.mu.Lock()
	_, aStays := g.clients[a.ConnectionID]
	_, bStays := g.clients[fresh.ConnectionID]
	g.mu.Unlock()
	assert.False(t, aStays)
	assert.True(t, bStays)
	assert.True(t, a.closed)
}

func TestSweepFinalizesAbandonedRoom(t *testing.T) {
	g := newTestGateway(t)
	phases := make(chan string, 2)
	deleted := make(chan string, 1)
	g.dbSetPhase = func(ctx context.Context, code, phase string) error {
		phases <- phase
		return nil
	}
	g.dbDeleteRoom = func(ctx context.Context, code string) error {
		deleted <- code
		return nil
	}

	g.mu.Lock()
	room := g.roomLocked("RMAAAA", "a")
	room.LastActivityMs = time.Now().Add(-3 * time.Minute).UnixMilli()
	g.mu.Unlock()

	g.sweep(time.Now())

	g.mu.Lock()
	_, stays := g.rooms["RMAAAA"]
	g.mu.Unlock()
	assert.False(t, stays)

	select {
	case phase := <-phases:
		assert.Equal(t, models.RoomPhaseFinished, phase)
	case <-time.After(time.Second):
		t.Fatal("phase never persisted")
	}
	select {
	case code := <-deleted:
		assert.Equal(t, "RMAAAA", code)
	case <-time.After(time.Second):
		t.Fatal("rows never deleted")
	}
}

func TestSweepKeepsRoomWithRejoinablePlayer(t *testing.T) {
	g := newTestGateway(t)

	g.mu.Lock()
	room := g.roomLocked("RMAAAA", "a")
	room.assignSlotLocked("a", "a")
	room.assignSlotLocked("b", "b")
	m := g.startMatchInRoomLocked(room)
	room.LastActivityMs = time.Now().UnixMilli()
	g.mu.Unlock()
	t.Cleanup(func() { g.Matches.EndMatch(m.ID) })

	// Both players just disconnected; rejoin grace still open.
	m.MarkPlayerDisconnected("a", time.Now().UnixMilli())
	m.MarkPlayerDisconnected("b", time.Now().UnixMilli())

	g.sweep(time.Now())

	g.mu.Lock()
	_, stays := g.rooms["RMAAAA"]
	g.mu.Unlock()
	assert.True(t, stays)
}

func TestFinalizeRoomStopsMatch(t *testing.T) {
	g := newTestGateway(t)
	a := newTestClient(g, "a")
	room := attachTestClient(g, "RMAAAA", "a", a)
	g.mu.Lock()
	room.assignSlotLocked("b", "b")
	m := g.startMatchInRoomLocked(room)
	g.mu.Unlock()

	g.FinalizeRoom("RMAAAA")

	_, live := g.Matches.GetMatch(m.ID)
	assert.False(t, live)
	assert.True(t, a.closed)
	g.mu.Lock()
	_, stays := g.rooms["RMAAAA"]
	g.mu.Unlock()
	assert.False(t, stays)
}
