// internal/auth/initdata.go
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxInitDataAge is how long a signed initData blob stays acceptable.
const MaxInitDataAge = 24 * time.Hour

// VerifyError is a machine-readable initData verification failure.
type VerifyError struct {
	Code string
}

func (e *VerifyError) Error() string {
	return e.Code
}

// InitDataUser is the parsed `user` JSON object inside initData.
type InitDataUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// InitDataClaims is the verified identity extracted from an initData string.
type InitDataClaims struct {
	UserID   int64
	User     InitDataUser
	AuthDate time.Time
}

// VerifyInitData validates a mini-app initData string against the bot token.
//
// The HMAC chain: secret = SHA-256(botToken); the data-check-string joins all
// k=v pairs except hash, sorted lexicographically, newline-separated; the
// hex HMAC-SHA256 of it must equal the hash pair (constant-time compare).
func VerifyInitData(initData, botToken string, now time.Time) (*InitDataClaims, error) {
	if strings.TrimSpace(initData) == "" {
		return nil, &VerifyError{Code: "initData_empty"}
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, &VerifyError{Code: "initData_empty"}
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, &VerifyError{Code: "hash_missing"}
	}
	authDateRaw := values.Get("auth_date")
	if authDateRaw == "" {
		return nil, &VerifyError{Code: "auth_date_missing"}
	}
	authUnix, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, &VerifyError{Code: "auth_date_invalid"}
	}

	pairs := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)
	dataCheckString := strings.Join(pairs, "\n")

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(dataCheckString))
	wantHash := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(wantHash), []byte(strings.ToLower(gotHash))) {
		return nil, &VerifyError{Code: "signature_invalid"}
	}

	authDate := time.Unix(authUnix, 0)
	if now.Sub(authDate) > MaxInitDataAge {
		return nil, &VerifyError{Code: "auth_date_expired"}
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return nil, &VerifyError{Code: "user_missing"}
	}
	var user InitDataUser
	if err := json.Unmarshal([]byte(userRaw), &user); err != nil || user.ID == 0 {
		return nil, &VerifyError{Code: "user_invalid"}
	}

	return &InitDataClaims{
		UserID:   user.ID,
		User:     user,
		AuthDate: authDate,
	}, nil
}

// SignInitData produces a correctly signed initData string from raw pairs.
// Used by tests and local tooling; the production flow only verifies.
func SignInitData(pairs map[string]string, botToken string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+pairs[k])
	}
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	hash := hex.EncodeToString(mac.Sum(nil))

	q := url.Values{}
	for k, v := range pairs {
		q.Set(k, v)
	}
	q.Set("hash", hash)
	return q.Encode()
}

// TelegramUserID renders a numeric Telegram id as the opaque user id stored
// in the users table.
func TelegramUserID(id int64) string {
	return fmt.Sprintf("tg:%d", id)
}
