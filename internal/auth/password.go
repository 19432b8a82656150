// internal/auth/password.go
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Room password KDF parameters.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLen      = 16
)

// HashRoomPassword derives a scrypt key from a room password with a fresh
// random salt. Both return values are hex-encoded for storage.
func HashRoomPassword(password string) (hash, salt string, err error) {
	saltBytes := make([]byte, saltLen)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(password), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", "", fmt.Errorf("scrypt failed: %w", err)
	}
	return hex.EncodeToString(key), hex.EncodeToString(saltBytes), nil
}

// VerifyRoomPassword checks a password attempt against a stored hash+salt
// using a constant-time compare.
func VerifyRoomPassword(password, storedHash, storedSalt string) bool {
	saltBytes, err := hex.DecodeString(storedSalt)
	if err != nil {
		return false
	}
	wantKey, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	key, err := scrypt.Key([]byte(password), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, wantKey) == 1
}
