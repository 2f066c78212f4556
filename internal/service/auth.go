// Package service contains application services: payload minting and opening,
// admin authentication and routing analytics.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	pkgcrypto "github.com/and161185/goph-landing/internal/crypto"
	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/limiter"
	"github.com/and161185/goph-landing/internal/model"
)

// AdminSubject is the JWT subject of admin tokens.
const AdminSubject = "admin"

// AdminAuth authenticates the operator and verifies issued tokens.
type AdminAuth interface {
	// LoginWithIP applies rate limiting and exchanges the admin secret for a token.
	LoginWithIP(ctx context.Context, secret, ip string) (model.Token, error)
	// Verify checks a bearer token and returns its subject.
	Verify(token string) (string, error)
}

// AdminAuthImpl verifies an Argon2id-hashed secret and issues HS256 tokens.
type AdminAuthImpl struct {
	secretHash []byte
	secretSalt []byte
	signKey    []byte
	accessTTL  time.Duration
	lim        limiter.Limiter
	clock      clockwork.Clock
}

// NewAdminAuth constructs AdminAuth. An empty secretHash disables login.
func NewAdminAuth(secretHash, secretSalt, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, clock clockwork.Clock) *AdminAuthImpl {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AdminAuthImpl{
		secretHash: secretHash,
		secretSalt: secretSalt,
		signKey:    signKey,
		accessTTL:  accessTTL,
		lim:        lim,
		clock:      clock,
	}
}

// LoginWithIP authenticates with rate limiting by client ip.
func (s *AdminAuthImpl) LoginWithIP(ctx context.Context, secret, ip string) (model.Token, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, limiter.ScopeLogin, ipHash)
	if err != nil {
		return model.Token{}, err
	}
	if !allowed {
		return model.Token{}, errs.ErrRateLimited
	}

	if secret == "" || !pkgcrypto.VerifySecret([]byte(secret), s.secretSalt, s.secretHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, limiter.ScopeLogin, ipHash); ferr == nil && blocked {
			return model.Token{}, errs.ErrRateLimited
		}
		return model.Token{}, errs.ErrUnauthorized
	}

	// best-effort reset
	_ = s.lim.Success(ctx, limiter.ScopeLogin, ipHash)

	return s.issueAccessToken()
}

// issueAccessToken creates a signed HS256 JWT for the admin subject.
func (s *AdminAuthImpl) issueAccessToken() (model.Token, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return model.Token{}, err
	}
	now := s.clock.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   AdminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Token{}, err
	}
	return model.Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify parses an HS256 token and validates its time claims with 30s leeway.
func (s *AdminAuthImpl) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", errs.ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Subject != AdminSubject {
		return "", fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return claims.Subject, nil
}
