// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rumblerush/server/internal/models"
)

// UpsertTelegramUser creates the user row on first login and refreshes
// username/display name on subsequent logins. A wallet row is created
// alongside the user.
func UpsertTelegramUser(ctx context.Context, userID, username, displayName string) (*models.User, error) {
	var u models.User
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
		INSERT INTO users (id, username, display_name)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (id) DO UPDATE
		SET username = NULLIF($2, ''), display_name = $3, updated_at = now()
		RETURNING id, COALESCE(username, ''), display_name, COALESCE(game_nickname, ''),
		          COALESCE(referral_code, ''), created_at, updated_at
		`
		if err := tx.QueryRow(ctx, q, userID, username, displayName).Scan(
			&u.ID, &u.Username, &u.DisplayName, &u.GameNickname,
			&u.ReferralCode, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, COALESCE(username, ''), display_name, COALESCE(game_nickname, ''),
	       COALESCE(referral_code, ''), created_at, updated_at
	FROM users WHERE id = $1
	`
	err := DB.QueryRow(ctx, q, userID).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.GameNickname,
		&u.ReferralCode, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Err("user_not_found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetGameNickname sets the case-insensitively unique game nickname. Format
// validation happens in the handler; uniqueness is enforced here.
func SetGameNickname(ctx context.Context, userID, nickname string) error {
	tag, err := DB.Exec(ctx,
		`UPDATE users SET game_nickname = $2, updated_at = now() WHERE id = $1`,
		userID, nickname,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Err("nickname_taken")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return Err("user_not_found")
	}
	return nil
}
