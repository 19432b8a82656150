// internal/resume/resume.go
package resume

import (
	"sync"
	"time"
)

// Mode of a tracked session.
const (
	ModeMultiplayer  = "MULTIPLAYER"
	ModeSingleplayer = "SINGLEPLAYER"
)

// TTL is how long a record stays eligible after the last activity touch.
const TTL = 60 * time.Second

// Record marks a user's last active session. A record past its expiry is
// treated as absent; expiry is evaluated lazily on read.
type Record struct {
	UserID                 string
	Mode                   string
	RoomCode               string
	MatchID                string
	LastActivityAt         time.Time
	ExpiresAt              time.Time
	IntentionallyTerminated bool
}

// Service tracks at most one resume record per user.
type Service struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewService() *Service {
	return &Service{records: make(map[string]*Record)}
}

// TouchMultiplayer upserts the user's record for an active multiplayer
// session and refreshes its expiry. A touch clears any previous
// intentional-termination mark.
func (s *Service) TouchMultiplayer(userID, roomCode, matchID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = &Record{
		UserID:         userID,
		Mode:           ModeMultiplayer,
		RoomCode:       roomCode,
		MatchID:        matchID,
		LastActivityAt: now,
		ExpiresAt:      now.Add(TTL),
	}
}

// TouchSingleplayer upserts a singleplayer record.
func (s *Service) TouchSingleplayer(userID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = &Record{
		UserID:         userID,
		Mode:           ModeSingleplayer,
		LastActivityAt: now,
		ExpiresAt:      now.Add(TTL),
	}
}

// GetActiveSession returns a copy of the user's live record, expiring it
// lazily when past its deadline.
func (s *Service) GetActiveSession(userID string, now time.Time) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return Record{}, false
	}
	if now.After(rec.ExpiresAt) {
		delete(s.records, userID)
		return Record{}, false
	}
	return *rec, true
}

// ConsumeMultiplayerResume clears and returns true iff the user holds a live
// multiplayer record matching (roomCode, matchID) that was not intentionally
// terminated.
func (s *Service) ConsumeMultiplayerResume(userID, roomCode, matchID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return false
	}
	if now.After(rec.ExpiresAt) {
		delete(s.records, userID)
		return false
	}
	if rec.Mode != ModeMultiplayer || rec.IntentionallyTerminated {
		return false
	}
	if rec.RoomCode != roomCode || rec.MatchID != matchID {
		return false
	}
	delete(s.records, userID)
	return true
}

// MarkTerminated flags the user's record so it no longer qualifies for
// resume, without deleting it. Used when the user leaves a match on purpose.
func (s *Service) MarkTerminated(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok {
		rec.IntentionallyTerminated = true
	}
}

// Clear drops the user's record outright.
func (s *Service) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
}
