// internal/auth/initdata_test.go
package auth

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "12345:TEST_BOT_TOKEN"

func freshInitData(t *testing.T, now time.Time) string {
	t.Helper()
	return SignInitData(map[string]string{
		"auth_date": strconv.FormatInt(now.Unix(), 10),
		"query_id":  "AAF3xyz",
		"user":      `{"id":777000,"first_name":"Test","username":"testuser"}`,
	}, testBotToken)
}

func TestVerifyInitDataHappyPath(t *testing.T) {
	now := time.Now()
	claims, err := VerifyInitData(freshInitData(t, now), testBotToken, now)
	require.NoError(t, err)
	assert.Equal(t, int64(777000), claims.UserID)
	assert.Equal(t, "testuser", claims.User.Username)
	assert.Equal(t, "Test", claims.User.FirstName)
}

func TestVerifyInitDataTamperedSignature(t *testing.T) {
	now := time.Now()
	initData := freshInitData(t, now)

	// Mutating any pair invalidates the HMAC.
	tampered := strings.Replace(initData, "testuser", "evilattacker", 1)
	_, err := VerifyInitData(tampered, testBotToken, now)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "signature_invalid", verr.Code)

	// Wrong bot token also fails.
	_, err = VerifyInitData(initData, "99999:OTHER", now)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "signature_invalid", verr.Code)
}

func TestVerifyInitDataExpired(t *testing.T) {
	signedAt := time.Now().Add(-25 * time.Hour)
	initData := freshInitData(t, signedAt)
	_, err := VerifyInitData(initData, testBotToken, time.Now())
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "auth_date_expired", verr.Code)
}

func TestVerifyInitDataFailureCodes(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name     string
		initData string
		want     string
	}{
		{"empty", "", "initData_empty"},
		{"blank", "   ", "initData_empty"},
		{"no hash", "auth_date=123&user=%7B%7D", "hash_missing"},
		{"no auth_date", "hash=abc&user=%7B%7D", "auth_date_missing"},
		{"bad auth_date", "hash=abc&auth_date=notanumber", "auth_date_invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := VerifyInitData(tc.initData, testBotToken, now)
			var verr *VerifyError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.want, verr.Code)
		})
	}
}

func TestVerifyInitDataMissingUser(t *testing.T) {
	now := time.Now()
	initData := SignInitData(map[string]string{
		"auth_date": strconv.FormatInt(now.Unix(), 10),
	}, testBotToken)
	_, err := VerifyInitData(initData, testBotToken, now)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_missing", verr.Code)

	initData = SignInitData(map[string]string{
		"auth_date": strconv.FormatInt(now.Unix(), 10),
		"user":      "{not json",
	}, testBotToken)
	_, err = VerifyInitData(initData, testBotToken, now)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_invalid", verr.Code)
}

func TestSessionTokenHash(t *testing.T) {
	token, hash, err := NewSessionToken()
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashSessionToken(token))

	token2, hash2, err := NewSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
	assert.NotEqual(t, hash, hash2)
}
