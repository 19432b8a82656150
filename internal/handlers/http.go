// internal/handlers/http.go
//
// Shared REST plumbing: JSON responses and the error-code -> HTTP status
// table. Every client-visible failure is a short machine-readable code.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rumblerush/server/internal/database"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code string) {
	writeJSON(w, codeStatus(code), map[string]string{"error": code})
}

func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, database.CodeOf(err))
}

var errorStatus = map[string]int{
	"unauthorized": http.StatusUnauthorized,

	"forbidden":      http.StatusForbidden,
	"not_room_owner": http.StatusForbidden,

	"room_not_found":    http.StatusNotFound,
	"user_not_found":    http.StatusNotFound,
	"request_not_found": http.StatusNotFound,
	"sku_not_found":     http.StatusNotFound,

	"capacity_invalid":   http.StatusBadRequest,
	"room_code_required": http.StatusBadRequest,
	"ready_invalid":      http.StatusBadRequest,
	"q_required":         http.StatusBadRequest,
	"code_required":      http.StatusBadRequest,
	"sku_required":       http.StatusBadRequest,

	"room_full":                http.StatusConflict,
	"room_closed":              http.StatusConflict,
	"room_started":             http.StatusConflict,
	"not_a_member":             http.StatusConflict,
	"room_not_joined":          http.StatusConflict,
	"not_enough_players":       http.StatusConflict,
	"not_all_ready":            http.StatusConflict,
	"room_code_conflict":       http.StatusConflict,
	"wrong_password":           http.StatusConflict,
	"nickname_taken":           http.StatusConflict,
	"insufficient_funds":       http.StatusConflict,
	"already_owned":            http.StatusConflict,
	"not_purchasable":          http.StatusConflict,
	"already_friends":          http.StatusConflict,
	"already_requested":        http.StatusConflict,
	"already_redeemed":         http.StatusConflict,
	"limit_reached":            http.StatusConflict,
	"self_referral_not_allowed": http.StatusConflict,
	"invalid_target":           http.StatusConflict,

	"rate_limited": http.StatusTooManyRequests,
}

// codeStatus maps an error code to its HTTP status. invalid_* and *_invalid
// codes are validation failures; room_started may carry a :reason suffix.
func codeStatus(code string) int {
	if status, ok := errorStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "invalid_") || strings.HasPrefix(code, "initData_") {
		return http.StatusBadRequest
	}
	if strings.HasPrefix(code, "room_started:") {
		return http.StatusConflict
	}
	switch code {
	case "signature_invalid", "auth_date_expired":
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// sessionUserID authenticates a REST request via the bearer token.
func sessionUserID(r *http.Request) (string, error) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	} else if v := r.URL.Query().Get("token"); v != "" {
		token = v
	}
	if token == "" {
		return "", database.Err("unauthorized")
	}
	return resolveSessionUser(r.Context(), token)
}

// requireMethod short-circuits with 405 on a method mismatch.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid_json")
		return false
	}
	return true
}
