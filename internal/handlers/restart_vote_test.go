// internal/handlers/restart_vote_test.go
package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumblerush/server/internal/game"
)

// voteFixture attaches two clients to a room with no live match, so restart
// proposals are allowed.
func voteFixture(t *testing.T) (*Gateway, *Client, *Client) {
	t.Helper()
	g := newTestGateway(t)
	a := newTestClient(g, "a")
	b := newTestClient(g, "b")
	attachTestClient(g, "RMAAAA", "a", a)
	attachTestClient(g, "RMAAAA", "a", b)
	return g, a, b
}

func TestRestartUnanimousAccept(t *testing.T) {
	g, a, b := voteFixture(t)

	g.handleRestartPropose(a)

	aMsgs := drainMsgs(a)
	proposed := findMsg(aMsgs, "room:restart_proposed")
	require.NotNil(t, proposed)
	assert.Equal(t, "a", proposed["byUserId"])
	state := findMsg(aMsgs, "room:restart_vote_state")
	require.NotNil(t, state)
	assert.Equal(t, 1, state["yesCount"])
	assert.Equal(t, 2, state["total"])
	require.NotNil(t, findMsg(drainMsgs(b), "room:restart_proposed"))

	g.handleRestartVote(b, "yes")

	bMsgs := drainMsgs(b)
	state = findMsg(bMsgs, "room:restart_vote_state")
	require.NotNil(t, state)
	assert.Equal(t, 2, state["yesCount"])
	require.NotNil(t, findMsg(bMsgs, "room:restart_accepted"))
	require.NotNil(t, findMsg(bMsgs, "match:started"), "accepted vote starts a fresh match")

	m, live := g.Matches.MatchForRoom("RMAAAA")
	require.True(t, live)
	t.Cleanup(func() { g.Matches.EndMatch(m.ID) })

	g.mu.Lock()
	_, active := g.votes["RMAAAA"]
	g.mu.Unlock()
	assert.False(t, active)
}

func TestRestartSlotsSurviveAcceptedVote(t *testing.T) {
	g, a, b := voteFixture(t)

	// First match establishes slot/colour identity.
	g.mu.Lock()
	first := g.startMatchInRoomLocked(g.rooms["RMAAAA"])
	g.mu.Unlock()
	first.Mu.Lock()
	first.Ended = true
	first.Mu.Unlock()
	g.Matches.EndMatch(first.ID)
	drainMsgs(a)
	drainMsgs(b)

	g.handleRestartPropose(a)
	g.handleRestartVote(b, "yes")

	second, live := g.Matches.MatchForRoom("RMAAAA")
	require.True(t, live)
	t.Cleanup(func() { g.Matches.EndMatch(second.ID) })

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Players["a"].ColorID, second.Players["a"].ColorID)
	assert.Equal(t, first.Players["b"].ColorID, second.Players["b"].ColorID)
}

func TestRestartNoVoteCancelsWithCooldown(t *testing.T) {
	g, a, b := voteFixture(t)

	g.handleRestartPropose(a)
	drainMsgs(a)
	g.handleRestartVote(b, "no")

	aMsgs := drainMsgs(a)
	cancelled := findMsg(aMsgs, "room:restart_cancelled")
	require.NotNil(t, cancelled)
	assert.Equal(t, "no_vote", cancelled["reason"])
	cooldown := findMsg(aMsgs, "room:restart_cooldown")
	require.NotNil(t, cooldown, "proposer is told when they may retry")

	// Retrying inside the cooldown is rejected.
	g.handleRestartPropose(a)
	rejected := findMsg(drainMsgs(a), "room:restart_rejected")
	require.NotNil(t, rejected)
	assert.Equal(t, "restart_propose_cooldown", rejected["reason"])
	assert.NotNil(t, rejected["retryAtMs"])

	// A no_vote cancel does not count as an ignored proposal.
	g.mu.Lock()
	ignored := g.restartIgnored["a"]
	g.mu.Unlock()
	assert.Equal(t, 0, ignored)
}

func TestRestartRejectedWhileAlive(t *testing.T) {
	g, a, b := voteFixture(t)
	g.mu.Lock()
	m := g.startMatchInRoomLocked(g.rooms["RMAAAA"])
	g.mu.Unlock()
	t.Cleanup(func() { g.Matches.EndMatch(m.ID) })
	drainMsgs(a)
	drainMsgs(b)

	g.handleRestartPropose(a)
	rejected := findMsg(drainMsgs(a), "room:restart_rejected")
	require.NotNil(t, rejected)
	assert.Equal(t, "restart_propose_not_allowed", rejected["reason"])

	// Once eliminated, the same player may propose.
	m.Mu.Lock()
	m.Players["a"].State = game.PlayerEliminated
	m.Mu.Unlock()

	g.handleRestartPropose(a)
	require.NotNil(t, findMsg(drainMsgs(a), "room:restart_proposed"))
}

func TestRestartSecondProposalRejectedWhileActive(t *testing.T) {
	g, a, b := voteFixture(t)

	g.handleRestartPropose(a)
	drainMsgs(b)
	g.handleRestartPropose(b)

	rejected := findMsg(drainMsgs(b), "room:restart_rejected")
	require.NotNil(t, rejected)
	assert.Equal(t, "restart_vote_already_active", rejected["reason"])
}

func TestRestartTimeoutStrikesAndKicks(t *testing.T) {
	g, a, b := voteFixture(t)

	expire := func() {
		g.mu.Lock()
		v := g.votes["RMAAAA"]
		require.NotNil(t, v)
		g.cancelRestartVoteLocked(v, "timeout")
		g.restartCooldown["a"] = 0 // wait out the cooldown
		g.mu.Unlock()
	}

	for i := 1; i <= 2; i++ {
		g.handleRestartPropose(a)
		expire()
		g.mu.Lock()
		ignored := g.restartIgnored["a"]
		g.mu.Unlock()
		assert.Equal(t, i, ignored)
		assert.True(t, a.Attached)
	}

	g.handleRestartPropose(a)
	expire()

	msgs := drainMsgs(a)
	kicked := findMsg(msgs, "ws_player_kicked")
	require.NotNil(t, kicked)
	assert.Equal(t, "restart_spam", kicked["reason"])
	assert.False(t, a.Attached)
	assert.True(t, a.closed)

	// The other player saw every cancellation but stays attached.
	assert.True(t, b.Attached)
	cancels := 0
	for _, m := range drainMsgs(b) {
		if m["type"] == "room:restart_cancelled" {
			cancels++
		}
	}
	assert.Equal(t, 3, cancels)
}

func TestRestartVoteRequiresActiveProposal(t *testing.T) {
	g, a, _ := voteFixture(t)
	g.handleRestartVote(a, "yes")
	assert.Empty(t, drainMsgs(a), "ballot without a proposal is dropped")
}

func TestRestartVoteExpiresAtIsTenSeconds(t *testing.T) {
	g, a, _ := voteFixture(t)
	before := time.Now().UnixMilli()
	g.handleRestartPropose(a)

	proposed := findMsg(drainMsgs(a), "room:restart_proposed")
	require.NotNil(t, proposed)
	expiresAt := proposed["expiresAt"].(int64)
	assert.GreaterOrEqual(t, expiresAt, before+10_000)
	assert.Less(t, expiresAt, before+11_000)

	g.mu.Lock()
	v := g.votes["RMAAAA"]
	g.cancelRestartVoteLocked(v, "no_vote")
	g.mu.Unlock()
}
