// internal/database/session.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rumblerush/server/internal/auth"
)

// CreateSession mints a fresh opaque token for the user and stores its hash.
// The raw token is returned once and never persisted.
func CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	token, tokenHash, err := auth.NewSessionToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := time.Now().Add(ttl)
	_, err = DB.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		tokenHash, userID, expiresAt,
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return token, expiresAt, nil
}

// ResolveSession maps a raw bearer token to its user id. Expired or unknown
// tokens fail with the unauthorized code.
func ResolveSession(ctx context.Context, token string) (string, error) {
	tokenHash := auth.HashSessionToken(token)
	var userID string
	err := DB.QueryRow(ctx,
		`SELECT user_id FROM sessions WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", Err("unauthorized")
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// DeleteExpiredSessions removes stale session rows; run opportunistically.
func DeleteExpiredSessions(ctx context.Context) error {
	_, err := DB.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	return err
}
