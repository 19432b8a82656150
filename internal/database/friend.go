// internal/database/friend.go
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rumblerush/server/internal/models"
)

func edgePair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// AreFriends reports whether a symmetric friend edge exists.
func AreFriends(ctx context.Context, a, b string) (bool, error) {
	ua, ub := edgePair(a, b)
	var exists bool
	err := DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM friend_edges WHERE user_a = $1 AND user_b = $2)`,
		ua, ub).Scan(&exists)
	return exists, err
}

// SendFriendRequest creates a PENDING request from one user to another.
func SendFriendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return Err("invalid_target")
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, to).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return Err("user_not_found")
		}

		ua, ub := edgePair(from, to)
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM friend_edges WHERE user_a = $1 AND user_b = $2)`,
			ua, ub).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return Err("already_friends")
		}

		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM friend_requests
				WHERE status = 'PENDING'
				  AND ((from_user = $1 AND to_user = $2) OR (from_user = $2 AND to_user = $1))
			)`, from, to).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return Err("already_requested")
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO friend_requests (from_user, to_user) VALUES ($1, $2)`, from, to)
		return err
	})
}

// RespondFriendRequest accepts or declines a pending request addressed to the
// caller. Accepting inserts the symmetric edge in the same transaction.
func RespondFriendRequest(ctx context.Context, userID string, requestID int64, accept bool) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var from, to, status string
		err := tx.QueryRow(ctx,
			`SELECT from_user, to_user, status FROM friend_requests WHERE id = $1 FOR UPDATE`,
			requestID).Scan(&from, &to, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return Err("request_not_found")
		}
		if err != nil {
			return err
		}
		if to != userID || status != models.FriendRequestPending {
			return Err("request_not_found")
		}

		newStatus := models.FriendRequestDeclined
		if accept {
			newStatus = models.FriendRequestAccepted
		}
		if _, err := tx.Exec(ctx,
			`UPDATE friend_requests SET status = $2, updated_at = now() WHERE id = $1`,
			requestID, newStatus); err != nil {
			return err
		}
		if accept {
			ua, ub := edgePair(from, to)
			if _, err := tx.Exec(ctx,
				`INSERT INTO friend_edges (user_a, user_b) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				ua, ub); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFriends returns all users sharing a friend edge with the caller.
func ListFriends(ctx context.Context, userID string) ([]models.User, error) {
	rows, err := DB.Query(ctx, `
		SELECT u.id, COALESCE(u.username, ''), u.display_name, COALESCE(u.game_nickname, ''),
		       COALESCE(u.referral_code, ''), u.created_at, u.updated_at
		FROM friend_edges e
		JOIN users u ON u.id = CASE WHEN e.user_a = $1 THEN e.user_b ELSE e.user_a END
		WHERE e.user_a = $1 OR e.user_b = $1
		ORDER BY u.display_name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.GameNickname,
			&u.ReferralCode, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

// ListPendingRequests returns PENDING requests addressed to the caller.
func ListPendingRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	rows, err := DB.Query(ctx, `
		SELECT id, from_user, to_user, status, created_at, updated_at
		FROM friend_requests
		WHERE to_user = $1 AND status = 'PENDING'
		ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.FriendRequest
	for rows.Next() {
		var fr models.FriendRequest
		if err := rows.Scan(&fr.ID, &fr.From, &fr.To, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, fr)
	}
	return reqs, rows.Err()
}
