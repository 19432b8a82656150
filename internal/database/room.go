// internal/database/room.go
//
// Room lobby service. Every state-mutating operation runs as a single
// transaction with SELECT ... FOR UPDATE on the room row under contention,
// and fails with a machine-readable StoreError code.
package database

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rumblerush/server/internal/auth"
	"github.com/rumblerush/server/internal/models"
)

// roomCodeAlphabet excludes ambiguous characters (I, O, 0, 1).
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	roomCodeLen        = 6
	roomCodeMaxRetries = 8
)

// NewRoomCode generates a random 6-character room code.
func NewRoomCode() (string, error) {
	buf := make([]byte, roomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, roomCodeLen)
	for i, b := range buf {
		code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(code), nil
}

// NormalizeRoomCode uppercases client-supplied codes before lookup.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const roomColumns = `
	room_code, owner_user_id, COALESCE(name, ''), capacity, status, phase,
	is_public, COALESCE(password_hash, ''), COALESCE(password_salt, ''),
	started_at, COALESCE(started_by_user_id, ''), created_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(
		&r.RoomCode, &r.OwnerUserID, &r.Name, &r.Capacity, &r.Status, &r.Phase,
		&r.IsPublic, &r.PasswordHash, &r.PasswordSalt,
		&r.StartedAt, &r.StartedByUserID, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.HasPassword = r.PasswordHash != ""
	return &r, nil
}

// lockRoom fetches a room row with FOR UPDATE inside a transaction.
func lockRoom(ctx context.Context, tx pgx.Tx, code string) (*models.Room, error) {
	r, err := scanRoom(tx.QueryRow(ctx,
		`SELECT`+roomColumns+` FROM rooms WHERE room_code = $1 FOR UPDATE`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Err("room_not_found")
	}
	return r, err
}

// CreateRoom creates an OPEN/LOBBY room owned by the caller, who joins as a
// member with ready=true. Code generation retries on collision up to 8 times.
func CreateRoom(ctx context.Context, ownerUserID string, capacity int, name, password string, isPublic bool) (*models.Room, error) {
	if capacity < 2 || capacity > 4 {
		return nil, Err("capacity_invalid")
	}

	var passwordHash, passwordSalt string
	if password != "" {
		var err error
		passwordHash, passwordSalt, err = auth.HashRoomPassword(password)
		if err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < roomCodeMaxRetries; attempt++ {
		code, err := NewRoomCode()
		if err != nil {
			return nil, err
		}
		var room *models.Room
		err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
			q := `
			INSERT INTO rooms (room_code, owner_user_id, name, capacity, is_public, password_hash, password_salt)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''))
			RETURNING` + roomColumns
			room, err = scanRoom(tx.QueryRow(ctx, q, code, ownerUserID, name, capacity, isPublic, passwordHash, passwordSalt))
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO room_members (room_code, user_id, ready) VALUES ($1, $2, true)`,
				code, ownerUserID)
			return err
		})
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue // code collision, retry
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
	return nil, Err("room_code_conflict")
}

// JoinRoom adds the user as a member of an OPEN lobby-phase room. Joining a
// room you already belong to (including as owner) is idempotent.
func JoinRoom(ctx context.Context, userID, code, password string) (*models.Room, error) {
	code = NormalizeRoomCode(code)
	var room *models.Room
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		room, err = lockRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusOpen {
			return Err("room_closed")
		}

		var already bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_code = $1 AND user_id = $2)`,
			code, userID).Scan(&already); err != nil {
			return err
		}
		if already {
			return nil
		}

		if room.Phase != models.RoomPhaseLobby {
			return Err("room_started")
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM room_members WHERE room_code = $1`, code).Scan(&count); err != nil {
			return err
		}
		if count >= room.Capacity {
			return Err("room_full")
		}

		if room.HasPassword && !auth.VerifyRoomPassword(password, room.PasswordHash, room.PasswordSalt) {
			return Err("wrong_password")
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO room_members (room_code, user_id, ready) VALUES ($1, $2, false)`,
			code, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// SetReady updates the caller's ready flag in an OPEN lobby-phase room.
func SetReady(ctx context.Context, userID, code string, ready bool) error {
	code = NormalizeRoomCode(code)
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusOpen {
			return Err("room_closed")
		}
		if room.Phase != models.RoomPhaseLobby {
			return Err("room_started")
		}
		tag, err := tx.Exec(ctx,
			`UPDATE room_members SET ready = $3 WHERE room_code = $1 AND user_id = $2`,
			code, userID, ready)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return Err("not_a_member")
		}
		return nil
	})
}

// StartRoom transitions LOBBY -> STARTED. Only the owner may start; member
// count must be within [2, capacity] and every non-owner member ready.
func StartRoom(ctx context.Context, ownerUserID, code string) (*models.Room, error) {
	code = NormalizeRoomCode(code)
	var room *models.Room
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		room, err = lockRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		if room.OwnerUserID != ownerUserID {
			return Err("forbidden")
		}
		if room.Status != models.RoomStatusOpen || room.Phase != models.RoomPhaseLobby {
			return Err("room_started")
		}

		var total, notReady int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE NOT ready AND user_id <> $2)
			FROM room_members WHERE room_code = $1`,
			code, ownerUserID).Scan(&total, &notReady); err != nil {
			return err
		}
		if total < 2 || total > room.Capacity {
			return Err("not_enough_players")
		}
		if notReady > 0 {
			return Err("not_all_ready")
		}

		now := time.Now()
		_, err = tx.Exec(ctx, `
			UPDATE rooms SET phase = 'STARTED', started_at = $2, started_by_user_id = $3
			WHERE room_code = $1`,
			code, now, ownerUserID)
		if err != nil {
			return err
		}
		room.Phase = models.RoomPhaseStarted
		room.StartedAt = &now
		room.StartedByUserID = ownerUserID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// LeaveRoom removes the caller from their OPEN room. If the caller owns the
// room it is closed and all members removed; otherwise only the caller's
// membership is deleted, and the room is deleted when it empties out.
// Returns the room code and whether the room was closed.
func LeaveRoom(ctx context.Context, userID string) (code string, closed bool, err error) {
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var ownerUserID string
		err := tx.QueryRow(ctx, `
			SELECT r.room_code, r.owner_user_id
			FROM rooms r
			JOIN room_members m ON m.room_code = r.room_code
			WHERE m.user_id = $1 AND r.status = 'OPEN'
			FOR UPDATE OF r`,
			userID).Scan(&code, &ownerUserID)
		if errors.Is(err, pgx.ErrNoRows) {
			return Err("room_not_joined")
		}
		if err != nil {
			return err
		}

		if ownerUserID == userID {
			if _, err := tx.Exec(ctx, `DELETE FROM room_members WHERE room_code = $1`, code); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE rooms SET status = 'CLOSED' WHERE room_code = $1`, code); err != nil {
				return err
			}
			closed = true
			return nil
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM room_members WHERE room_code = $1 AND user_id = $2`, code, userID); err != nil {
			return err
		}
		var remaining int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM room_members WHERE room_code = $1`, code).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE room_code = $1`, code); err != nil {
				return err
			}
			closed = true
		}
		return nil
	})
	return code, closed, err
}

// CloseRoom closes a room and removes all members. Owner only.
func CloseRoom(ctx context.Context, ownerUserID, code string) error {
	code = NormalizeRoomCode(code)
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		if room.OwnerUserID != ownerUserID {
			return Err("forbidden")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM room_members WHERE room_code = $1`, code); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE rooms SET status = 'CLOSED' WHERE room_code = $1`, code)
		return err
	})
}

// SetRoomPhase updates a room's phase. Transitioning to STARTED keeps an
// existing started_at (idempotent restarts).
func SetRoomPhase(ctx context.Context, code, phase string) error {
	code = NormalizeRoomCode(code)
	_, err := DB.Exec(ctx, `
		UPDATE rooms
		SET phase = $2,
		    started_at = CASE WHEN $2 = 'STARTED' THEN COALESCE(started_at, now()) ELSE started_at END
		WHERE room_code = $1`,
		code, phase)
	return err
}

// DeleteRoom removes the room and its members. Used by the stale sweep.
func DeleteRoom(ctx context.Context, code string) error {
	code = NormalizeRoomCode(code)
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM room_members WHERE room_code = $1`, code); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM rooms WHERE room_code = $1`, code)
		return err
	})
}

// GetRoom fetches a room by code.
func GetRoom(ctx context.Context, code string) (*models.Room, error) {
	code = NormalizeRoomCode(code)
	r, err := scanRoom(DB.QueryRow(ctx, `SELECT`+roomColumns+` FROM rooms WHERE room_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Err("room_not_found")
	}
	return r, err
}

// GetRoomMembers returns a room's members ordered by join time.
func GetRoomMembers(ctx context.Context, code string) ([]models.RoomMember, error) {
	code = NormalizeRoomCode(code)
	rows, err := DB.Query(ctx, `
		SELECT room_code, user_id, joined_at, ready
		FROM room_members WHERE room_code = $1 ORDER BY joined_at`,
		code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.RoomMember
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.RoomCode, &m.UserID, &m.JoinedAt, &m.Ready); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RoomListing is a public room plus its member count.
type RoomListing struct {
	models.Room
	MemberCount int `json:"memberCount"`
}

// ListPublicRooms returns joinable public rooms (OPEN, LOBBY phase).
func ListPublicRooms(ctx context.Context) ([]RoomListing, error) {
	rows, err := DB.Query(ctx, `
		SELECT`+roomColumns+`, (SELECT COUNT(*) FROM room_members m WHERE m.room_code = rooms.room_code)
		FROM rooms
		WHERE is_public AND status = 'OPEN' AND phase = 'LOBBY'
		ORDER BY created_at DESC
		LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []RoomListing
	for rows.Next() {
		var l RoomListing
		err := rows.Scan(
			&l.RoomCode, &l.OwnerUserID, &l.Name, &l.Capacity, &l.Status, &l.Phase,
			&l.IsPublic, &l.PasswordHash, &l.PasswordSalt,
			&l.StartedAt, &l.StartedByUserID, &l.CreatedAt,
			&l.MemberCount,
		)
		if err != nil {
			return nil, err
		}
		l.HasPassword = l.PasswordHash != ""
		l.PasswordHash, l.PasswordSalt = "", ""
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
