// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"strings"
)

// Payload pipeline taxonomy.
var (
	// ErrInvalidInput indicates a bad argument shape (empty payload, nil instruction set).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidKey indicates the configured key is absent or shorter than the local minimum.
	ErrInvalidKey = errors.New("invalid encryption key")

	// ErrMalformedEnvelope indicates the decoded envelope is shorter than IV+tag+1 bytes.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrCryptoFailure indicates AEAD open failed: wrong key or tampered/corrupted bytes.
	ErrCryptoFailure = errors.New("decrypt failed")

	// ErrInvalidJSON indicates the decrypted plaintext is not JSON.
	ErrInvalidJSON = errors.New("invalid json")

	// ErrValidation indicates the instruction set violates structural rules.
	ErrValidation = errors.New("validation")
)

// Service-level sentinels.
var (
	// ErrUnauthorized indicates failed admin authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the client is temporarily blocked after repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrConflict indicates a row with the same identity already exists.
	ErrConflict = errors.New("already exists")

	// ErrUnavailable indicates an optional backend (database) is not configured.
	ErrUnavailable = errors.New("unavailable")
)

// GenericPayloadMessage replaces error text that could help an oracle attack.
const GenericPayloadMessage = "Failed to process encrypted payload"

// SanitizedError carries a generic message; the cause is kept for logs only.
type SanitizedError struct {
	cause error
}

func (e *SanitizedError) Error() string { return GenericPayloadMessage }

// Unwrap exposes the cause to errors.Is/As so callers can still classify.
func (e *SanitizedError) Unwrap() error { return e.cause }

// Cause returns the original error for debug logging.
func (e *SanitizedError) Cause() error { return e.cause }

// Sanitize hides err behind GenericPayloadMessage when its text mentions "decrypt" or "key".
// Other errors are returned unchanged.
func Sanitize(err error) error {
	if err == nil {
		return nil
	}
	var already *SanitizedError
	if errors.As(err, &already) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "decrypt") || strings.Contains(msg, "key") {
		return &SanitizedError{cause: err}
	}
	return err
}
