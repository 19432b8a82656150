// internal/database/wallet.go
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rumblerush/server/internal/models"
)

var walletCurrencies = map[string]bool{
	"stars":    true,
	"crystals": true,
	"plasma":   true,
}

// GetWallet fetches a user's balances.
func GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := DB.QueryRow(ctx,
		`SELECT user_id, stars, crystals, plasma FROM wallets WHERE user_id = $1`,
		userID).Scan(&w.UserID, &w.Stars, &w.Crystals, &w.Plasma)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Err("user_not_found")
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ApplyWalletDelta atomically mutates one currency balance and appends the
// ledger entry in the same transaction. The wallet row is locked for the
// duration; a debit below zero fails with insufficient_funds.
func ApplyWalletDelta(ctx context.Context, userID, entryType, currency string, amount int64, meta string) (*models.Wallet, error) {
	if !walletCurrencies[currency] {
		return nil, Err("invalid_payload")
	}
	var w models.Wallet
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT user_id, stars, crystals, plasma FROM wallets WHERE user_id = $1 FOR UPDATE`,
			userID).Scan(&w.UserID, &w.Stars, &w.Crystals, &w.Plasma)
		if errors.Is(err, pgx.ErrNoRows) {
			return Err("user_not_found")
		}
		if err != nil {
			return err
		}

		var balance *int64
		switch currency {
		case "stars":
			balance = &w.Stars
		case "crystals":
			balance = &w.Crystals
		case "plasma":
			balance = &w.Plasma
		}
		if *balance+amount < 0 {
			return Err("insufficient_funds")
		}
		*balance += amount

		if _, err := tx.Exec(ctx,
			`UPDATE wallets SET stars = $2, crystals = $3, plasma = $4 WHERE user_id = $1`,
			userID, w.Stars, w.Crystals, w.Plasma); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (user_id, type, currency, amount, meta) VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			userID, entryType, currency, amount, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}
