package models

import "time"

// User is a persisted player identity, created on first authenticated login.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	DisplayName  string    `json:"displayName"`
	GameNickname string    `json:"gameNickname,omitempty"`
	ReferralCode string    `json:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Wallet holds a user's currency balances. All balances are non-negative and
// mutated only via atomic delta+ledger transactions.
type Wallet struct {
	UserID   string `json:"userId"`
	Stars    int64  `json:"stars"`
	Crystals int64  `json:"crystals"`
	Plasma   int64  `json:"plasma"`
}

// Ledger entry types.
const (
	LedgerReward     = "reward"
	LedgerPurchase   = "purchase"
	LedgerRefund     = "refund"
	LedgerAdjustment = "adjustment"
)

// LedgerEntry is an append-only record of a wallet mutation.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	Meta      string    `json:"meta,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
