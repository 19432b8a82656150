// internal/handlers/friend_http.go
package handlers

import (
	"net/http"

	"github.com/rumblerush/server/internal/database"
	"github.com/rumblerush/server/internal/models"
)

// AddFriendHandler sends a friend request to another user.
func AddFriendHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := database.SendFriendRequest(r.Context(), userID, body.UserID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "requested"})
}

// RespondFriendHandler accepts or declines a pending request addressed to
// the caller.
func RespondFriendHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		RequestID int64 `json:"requestId"`
		Accept    bool  `json:"accept"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := database.RespondFriendRequest(r.Context(), userID, body.RequestID, body.Accept); err != nil {
		writeStoreError(w, err)
		return
	}
	status := "declined"
	if body.Accept {
		status = "accepted"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ListFriendsHandler returns the caller's friends.
func ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	friends, err := database.ListFriends(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if friends == nil {
		friends = []models.User{}
	}
	writeJSON(w, http.StatusOK, friends)
}

// ListFriendRequestsHandler returns pending requests addressed to the caller.
func ListFriendRequestsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	requests, err := database.ListPendingRequests(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}
