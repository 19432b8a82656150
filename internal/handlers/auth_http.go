// internal/handlers/auth_http.go
package handlers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/auth"
	"github.com/rumblerush/server/internal/config"
	"github.com/rumblerush/server/internal/database"
)

// AuthTelegramHandler exchanges a verified Telegram initData string for a
// session token, creating the user on first login. In non-production, with
// the dev flag set, a bare tgUserId is accepted instead.
func AuthTelegramHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var body struct {
			InitData string `json:"initData"`
			TgUserID int64  `json:"tgUserId,omitempty"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		var userID, username, displayName string
		switch {
		case body.InitData != "":
			claims, err := auth.VerifyInitData(body.InitData, config.BotToken(), time.Now())
			if err != nil {
				var code string
				if ve, ok := err.(*auth.VerifyError); ok {
					code = ve.Code
				} else {
					code = "signature_invalid"
				}
				logger.WithError(err).Warn("initData verification failed")
				writeError(w, code)
				return
			}
			userID = auth.TelegramUserID(claims.UserID)
			username = claims.User.Username
			displayName = displayNameFromClaims(claims)
		case body.TgUserID != 0 && config.DevAllowQueryTgUserID():
			userID = auth.TelegramUserID(body.TgUserID)
			displayName = userID
		default:
			writeError(w, "initData_empty")
			return
		}

		user, err := database.UpsertTelegramUser(r.Context(), userID, username, displayName)
		if err != nil {
			logger.WithError(err).Error("user upsert failed")
			writeError(w, "internal_error")
			return
		}
		token, expiresAt, err := database.CreateSession(r.Context(), userID, config.SessionTTL())
		if err != nil {
			logger.WithError(err).Error("session creation failed")
			writeError(w, "internal_error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":     token,
			"expiresAt": expiresAt.UnixMilli(),
			"user":      user,
		})
	}
}
