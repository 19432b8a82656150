// internal/handlers/user_http.go
package handlers

import (
	"net/http"
	"regexp"

	"github.com/rumblerush/server/internal/database"
)

var nicknameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// MeHandler returns the authenticated user's profile.
func MeHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	user, err := database.GetUser(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SetNicknameHandler sets the caller's unique game nickname.
func SetNicknameHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		Nickname string `json:"nickname"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !nicknameRe.MatchString(body.Nickname) {
		writeError(w, "invalid_nickname")
		return
	}
	if err := database.SetGameNickname(r.Context(), userID, body.Nickname); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nickname": body.Nickname})
}

// WalletHandler returns the caller's wallet balances.
func WalletHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID, err := sessionUserID(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	wallet, err := database.GetWallet(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}
