// internal/resume/resume_test.go
package resume

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndGet(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)

	_, ok := s.GetActiveSession("u1", now)
	assert.False(t, ok)

	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)
	rec, ok := s.GetActiveSession("u1", now)
	require.True(t, ok)
	assert.Equal(t, ModeMultiplayer, rec.Mode)
	assert.Equal(t, "RMAAAA", rec.RoomCode)
	assert.Equal(t, "m1", rec.MatchID)
	assert.Equal(t, now.Add(TTL), rec.ExpiresAt)
}

func TestLazyExpiry(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)

	_, ok := s.GetActiveSession("u1", now.Add(TTL-time.Second))
	assert.True(t, ok)

	_, ok = s.GetActiveSession("u1", now.Add(TTL+time.Second))
	assert.False(t, ok)
	// The expired record was dropped, not just hidden.
	s.mu.Lock()
	_, still := s.records["u1"]
	s.mu.Unlock()
	assert.False(t, still)
}

func TestTouchRefreshesExpiry(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now.Add(50*time.Second))

	_, ok := s.GetActiveSession("u1", now.Add(100*time.Second))
	assert.True(t, ok)
}

func TestConsumeMultiplayerResume(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)

	assert.False(t, s.ConsumeMultiplayerResume("u1", "RMBBBB", "m1", now), "room mismatch")
	assert.False(t, s.ConsumeMultiplayerResume("u1", "RMAAAA", "m2", now), "match mismatch")
	assert.True(t, s.ConsumeMultiplayerResume("u1", "RMAAAA", "m1", now))
	// Consumed once, gone after.
	assert.False(t, s.ConsumeMultiplayerResume("u1", "RMAAAA", "m1", now))
}

func TestConsumeRejectsTerminatedAndSingleplayer(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)

	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)
	s.MarkTerminated("u1")
	assert.False(t, s.ConsumeMultiplayerResume("u1", "RMAAAA", "m1", now))

	s.TouchSingleplayer("u2", now)
	assert.False(t, s.ConsumeMultiplayerResume("u2", "", "", now))
}

func TestTouchClearsTermination(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)
	s.MarkTerminated("u1")
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now.Add(time.Second))

	assert.True(t, s.ConsumeMultiplayerResume("u1", "RMAAAA", "m1", now.Add(2*time.Second)))
}

func TestClear(t *testing.T) {
	s := NewService()
	now := time.Unix(1_700_000_000, 0)
	s.TouchMultiplayer("u1", "RMAAAA", "m1", now)
	s.Clear("u1")
	_, ok := s.GetActiveSession("u1", now)
	assert.False(t, ok)
}
