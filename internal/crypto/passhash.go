// Package crypto implements server-side hashing and verification of the admin secret.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashSecret returns the Argon2id hash of secret using the provided salt.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifySecret verifies secret against expected Argon2id hash and salt.
func VerifySecret(secret, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	got := HashSecret(secret, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// NewSecretHash salts and hashes secret, returning hex strings suitable for the config file.
func NewSecretHash(secret string) (hashHex, saltHex string, err error) {
	if secret == "" {
		return "", "", errors.New("empty secret")
	}
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(HashSecret([]byte(secret), salt)), hex.EncodeToString(salt), nil
}

// DecodeSecretHash parses the hex pair produced by NewSecretHash.
func DecodeSecretHash(hashHex, saltHex string) (hash, salt []byte, err error) {
	if hash, err = hex.DecodeString(hashHex); err != nil {
		return nil, nil, fmt.Errorf("secret hash: %w", err)
	}
	if salt, err = hex.DecodeString(saltHex); err != nil {
		return nil, nil, fmt.Errorf("secret salt: %w", err)
	}
	if len(hash) != int(argonKeyLen) || len(salt) == 0 {
		return nil, nil, errors.New("secret hash: unexpected length")
	}
	return hash, salt, nil
}
