// Package landing turns a request URL into what the landing page should display.
package landing

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
)

// User-facing messages. Internal error text never reaches the page.
const (
	MessageNoPayload = "No content to display. Please use a valid link."
	MessageFailed    = "Unable to load content. The link may be invalid or expired."
)

// Status is the page outcome.
type Status int

const (
	StatusNoPayload Status = iota
	StatusFailed
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "no_payload"
	}
}

// State is what the page renders.
type State struct {
	Status  Status
	Message string
	Payload string // query value as received, only when Ready
	Set     model.InstructionSet
	Err     error // classification for logs; never rendered
}

// Opener decrypts a visitor payload.
type Opener interface {
	Open(ctx context.Context, payload, ip string) (model.InstructionSet, error)
}

// Page resolves landing requests.
type Page struct {
	open Opener
	log  *zap.Logger
}

// NewPage constructs a Page.
func NewPage(open Opener, log *zap.Logger) *Page {
	if log == nil {
		log = zap.NewNop()
	}
	return &Page{open: open, log: log}
}

// Resolve extracts and opens the payload carried by u.
func (p *Page) Resolve(ctx context.Context, u *url.URL, ip string) State {
	payload, ok := payloadcodec.ExtractPayload(u)
	if !ok {
		return State{Status: StatusNoPayload, Message: MessageNoPayload}
	}
	if err := payloadcodec.CheckPayloadSyntax(payload); err != nil {
		p.log.Info("payload rejected", zap.String("reason", "syntax"), zap.Int("len", len(payload)))
		return State{Status: StatusFailed, Message: MessageFailed, Err: err}
	}

	set, err := p.open.Open(ctx, payload, ip)
	if err != nil {
		p.log.Info("payload rejected", zap.String("reason", reason(err)), zap.Error(err))
		return State{Status: StatusFailed, Message: MessageFailed, Err: err}
	}
	return State{Status: StatusReady, Payload: payload, Set: set}
}

func reason(err error) string {
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errs.ErrMalformedEnvelope):
		return "malformed"
	case errors.Is(err, errs.ErrCryptoFailure):
		return "crypto"
	case errors.Is(err, errs.ErrInvalidJSON):
		return "json"
	case errors.Is(err, errs.ErrValidation):
		return "validation"
	case errors.Is(err, errs.ErrInvalidKey):
		return "key"
	default:
		return "internal"
	}
}
