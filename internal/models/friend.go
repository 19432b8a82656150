package models

import "time"

// Friend request status values.
const (
	FriendRequestPending  = "PENDING"
	FriendRequestAccepted = "ACCEPTED"
	FriendRequestDeclined = "DECLINED"
)

// FriendRequest is a directed friendship proposal.
type FriendRequest struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FriendEdge is one half of a symmetric friendship pair; rows are stored with
// user_a < user_b.
type FriendEdge struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}
