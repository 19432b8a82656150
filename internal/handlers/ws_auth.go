// internal/handlers/ws_auth.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rumblerush/server/internal/auth"
	"github.com/rumblerush/server/internal/cache"
	"github.com/rumblerush/server/internal/config"
	"github.com/rumblerush/server/internal/database"
)

// sessionCacheTTL bounds how long a resolved session lives in redis; the
// sessions table stays authoritative.
const sessionCacheTTL = 5 * time.Minute

var errUnauthenticated = errors.New("no usable credential")

// wsAuthError distinguishes bad credentials (close 4401) from machinery
// failures (close 4500).
type wsAuthError struct {
	internal bool
	cause    error
}

func (e *wsAuthError) Error() string { return e.cause.Error() }

// resolveSessionUser maps a raw bearer token to a user id, read-through the
// redis session cache.
func resolveSessionUser(ctx context.Context, token string) (string, error) {
	tokenHash := auth.HashSessionToken(token)
	if userID := cache.GetSessionUser(ctx, tokenHash); userID != "" {
		return userID, nil
	}
	userID, err := database.ResolveSession(ctx, token)
	if err != nil {
		return "", err
	}
	cache.PutSessionUser(ctx, tokenHash, userID, sessionCacheTTL)
	return userID, nil
}

// requestToken finds a session token in the Authorization header, the
// query string, or a session_token.<enc> subprotocol entry.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	q := r.URL.Query()
	for _, key := range []string{"sessionToken", "token", "accessToken"} {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return subprotocolValue(r, "session_token.")
}

// requestInitData finds a Telegram initData credential in the header, the
// query string, or an init_data.<enc> subprotocol entry.
func requestInitData(r *http.Request) string {
	if v := r.Header.Get("x-telegram-init-data"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("initData"); v != "" {
		return v
	}
	return subprotocolValue(r, "init_data.")
}

// subprotocolValue extracts a url-encoded value smuggled through the
// Sec-WebSocket-Protocol list under the given prefix.
func subprotocolValue(r *http.Request, prefix string) string {
	for _, part := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, prefix) {
			continue
		}
		val, err := url.QueryUnescape(strings.TrimPrefix(part, prefix))
		if err != nil {
			return ""
		}
		return val
	}
	return ""
}

func displayNameFromClaims(claims *auth.InitDataClaims) string {
	name := strings.TrimSpace(claims.User.FirstName + " " + claims.User.LastName)
	if name == "" {
		name = claims.User.Username
	}
	if name == "" {
		name = auth.TelegramUserID(claims.UserID)
	}
	return name
}

// authenticateWS resolves the connecting user, in priority order: session
// token, Telegram initData, and finally the dev-only tgUserId query fallback.
func authenticateWS(ctx context.Context, r *http.Request) (userID, displayName string, authErr *wsAuthError) {
	if token := requestToken(r); token != "" {
		uid, err := resolveSessionUser(ctx, token)
		if err != nil {
			if database.CodeOf(err) == "unauthorized" {
				return "", "", &wsAuthError{cause: err}
			}
			return "", "", &wsAuthError{internal: true, cause: err}
		}
		name := uid
		if u, err := database.GetUser(ctx, uid); err == nil {
			name = u.DisplayName
		}
		return uid, name, nil
	}

	if initData := requestInitData(r); initData != "" {
		claims, err := auth.VerifyInitData(initData, config.BotToken(), time.Now())
		if err != nil {
			return "", "", &wsAuthError{cause: err}
		}
		uid := auth.TelegramUserID(claims.UserID)
		name := displayNameFromClaims(claims)
		if _, err := database.UpsertTelegramUser(ctx, uid, claims.User.Username, name); err != nil {
			return "", "", &wsAuthError{internal: true, cause: err}
		}
		return uid, name, nil
	}

	if config.DevAllowQueryTgUserID() {
		if raw := r.URL.Query().Get("tgUserId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return "", "", &wsAuthError{cause: fmt.Errorf("invalid tgUserId: %w", err)}
			}
			uid := auth.TelegramUserID(id)
			if _, err := database.UpsertTelegramUser(ctx, uid, "", uid); err != nil {
				return "", "", &wsAuthError{internal: true, cause: err}
			}
			return uid, uid, nil
		}
	}

	return "", "", &wsAuthError{cause: errUnauthenticated}
}
