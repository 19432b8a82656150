package models

import "time"

// Room status values.
const (
	RoomStatusOpen   = "OPEN"
	RoomStatusClosed = "CLOSED"
)

// Room phase values.
const (
	RoomPhaseLobby    = "LOBBY"
	RoomPhaseStarted  = "STARTED"
	RoomPhaseFinished = "FINISHED"
)

// Room is a persisted lobby room identified by a 6-character code.
type Room struct {
	RoomCode        string     `json:"roomCode"`
	OwnerUserID     string     `json:"ownerUserId"`
	Name            string     `json:"name,omitempty"`
	Capacity        int        `json:"capacity"`
	Status          string     `json:"status"`
	Phase           string     `json:"phase"`
	IsPublic        bool       `json:"isPublic"`
	HasPassword     bool       `json:"hasPassword"`
	PasswordHash    string     `json:"-"`
	PasswordSalt    string     `json:"-"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	StartedByUserID string     `json:"startedByUserId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RoomMember is a user's membership in a room. The owner's ready flag is
// implicitly true.
type RoomMember struct {
	RoomCode string    `json:"roomCode"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
	Ready    bool      `json:"ready"`
}
