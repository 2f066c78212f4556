package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/limiter"
	"github.com/and161185/goph-landing/internal/model"
)

// Codec is the subset of payloadcodec.Codec used by services.
type Codec interface {
	Encrypt(raw any) (string, error)
	Decrypt(payload string) (model.InstructionSet, error)
}

// PayloadService mints landing links and opens incoming payloads.
type PayloadService interface {
	// Mint validates and encrypts raw, returning the payload and the landing link.
	Mint(ctx context.Context, raw any) (payload, link string, err error)
	// Open decrypts a visitor's payload, throttling clients that keep failing.
	Open(ctx context.Context, payload, ip string) (model.InstructionSet, error)
	// Inspect decrypts for an operator, without throttling.
	Inspect(ctx context.Context, payload string) (model.InstructionSet, error)
}

// PayloadServiceImpl is the default PayloadService.
type PayloadServiceImpl struct {
	codec   Codec
	lim     limiter.Limiter
	baseURL string
	log     *zap.Logger
}

// NewPayloadService constructs PayloadService. baseURL is the public landing origin.
func NewPayloadService(codec Codec, lim limiter.Limiter, baseURL string, log *zap.Logger) *PayloadServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &PayloadServiceImpl{codec: codec, lim: lim, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Mint implements PayloadService.
func (s *PayloadServiceImpl) Mint(_ context.Context, raw any) (string, string, error) {
	payload, err := s.codec.Encrypt(raw)
	if err != nil {
		return "", "", err
	}
	return payload, s.Link(payload), nil
}

// Link builds the landing URL carrying payload.
func (s *PayloadServiceImpl) Link(payload string) string {
	q := url.Values{payloadcodec.PayloadParam: {payload}}
	return s.baseURL + "/?" + q.Encode()
}

// Open implements PayloadService. Limiter outages are logged and do not block visitors.
func (s *PayloadServiceImpl) Open(ctx context.Context, payload, ip string) (model.InstructionSet, error) {
	ipHash := limiter.HashIP(ip)

	allowed, retry, err := s.lim.Allow(ctx, limiter.ScopeOpen, ipHash)
	switch {
	case err != nil:
		s.log.Warn("limiter unavailable", zap.Error(err))
	case !allowed:
		s.log.Info("payload open throttled", zap.Duration("retry_after", retry))
		return model.InstructionSet{}, errs.ErrRateLimited
	}

	set, err := s.codec.Decrypt(payload)
	if err != nil {
		if !errors.Is(err, errs.ErrInvalidInput) {
			if blocked, _, ferr := s.lim.Failure(ctx, limiter.ScopeOpen, ipHash); ferr != nil {
				s.log.Warn("limiter failure not recorded", zap.Error(ferr))
			} else if blocked {
				s.log.Info("client blocked after repeated payload failures")
			}
		}
		return model.InstructionSet{}, err
	}
	return set, nil
}

// Inspect implements PayloadService.
func (s *PayloadServiceImpl) Inspect(_ context.Context, payload string) (model.InstructionSet, error) {
	return s.codec.Decrypt(payload)
}
