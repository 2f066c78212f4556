// Package limiter throttles repeated failures (bad payloads, bad admin secrets) per client.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Scopes partition counters so payload failures never lock out admin login and vice versa.
const (
	ScopeOpen  = "open"
	ScopeLogin = "login"
)

// Limiter tracks failures per (scope, client) and places temporary blocks.
type Limiter interface {
	// Allow reports whether the client may proceed and, if not, the retry-after.
	Allow(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters for the client.
	Success(ctx context.Context, scope string, ipHash []byte) error
	// Failure records a failed attempt; it may place a temporary block.
	Failure(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error)
}

// Settings are the sliding-window parameters shared by implementations.
type Settings struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultSettings: five failures in fifteen minutes block for fifteen minutes.
func DefaultSettings() Settings {
	return Settings{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Window <= 0 {
		s.Window = d.Window
	}
	if s.MaxFails <= 0 {
		s.MaxFails = d.MaxFails
	}
	if s.BlockFor <= 0 {
		s.BlockFor = d.BlockFor
	}
	return s
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
