// internal/handlers/rooms_http.go
package handlers

import (
	"net/http"

	"github.com/rumblerush/server/internal/database"
)

// CreateRoomHandler creates a lobby room owned by the caller.
func CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		Capacity int    `json:"capacity"`
		Name     string `json:"name"`
		Password string `json:"password"`
		IsPublic bool   `json:"isPublic"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	room, err := database.CreateRoom(r.Context(), userID, body.Capacity, body.Name, body.Password, body.IsPublic)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// JoinRoomHandler adds the caller as a member of a lobby room.
func JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeError(w, "room_code_required")
		return
	}
	room, err := database.JoinRoom(r.Context(), userID, body.Code, body.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// ReadyRoomHandler flips the caller's ready flag.
func ReadyRoomHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		Code  string `json:"code"`
		Ready *bool  `json:"ready"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeError(w, "room_code_required")
		return
	}
	if body.Ready == nil {
		writeError(w, "ready_invalid")
		return
	}
	if err := database.SetReady(r.Context(), userID, body.Code, *body.Ready); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": *body.Ready})
}

// StartRoomHandler transitions the room to STARTED. The simulation itself
// launches when the owner sends match:start over WS.
func StartRoomHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeError(w, "room_code_required")
		return
	}
	room, err := database.StartRoom(r.Context(), userID, body.Code)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// LeaveRoomHandler removes the caller from their current room. Owners close
// the room for everyone.
func LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	code, closed, err := database.LeaveRoom(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roomCode": code, "closed": closed})
}

// ListRoomsHandler lists joinable public rooms.
func ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, err := sessionUserID(r); err != nil {
		writeStoreError(w, err)
		return
	}
	rooms, err := database.ListPublicRooms(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if rooms == nil {
		rooms = []database.RoomListing{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// RoomInfoHandler returns a room and its members.
func RoomInfoHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, err := sessionUserID(r); err != nil {
		writeStoreError(w, err)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, "room_code_required")
		return
	}
	room, err := database.GetRoom(r.Context(), code)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	members, err := database.GetRoomMembers(r.Context(), room.RoomCode)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"room": room, "members": members})
}
