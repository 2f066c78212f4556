// Package grpcserver exposes the payload admin gRPC API.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/goph-landing/internal/convert"
	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
	"github.com/and161185/goph-landing/internal/service"
)

// Query defaults.
const (
	DefaultEventsSince = time.Hour
	DefaultEventsLimit = 100
	DefaultStatsSince  = 24 * time.Hour
)

// EventQuerier reads stored analytics.
type EventQuerier interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]model.Event, error)
	Stats(ctx context.Context, since time.Time) ([]model.EventCount, error)
}

// Server wires services into gRPC handlers.
type Server struct {
	auth     service.AdminAuth
	payloads service.PayloadService
	events   EventQuerier
	clock    clockwork.Clock
	log      *zap.Logger
}

var _ PayloadAdminServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(auth service.AdminAuth, payloads service.PayloadService, events EventQuerier, clock clockwork.Clock, log *zap.Logger) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, payloads: payloads, events: events, clock: clock, log: log}
}

// --- Auth ---

func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Login authenticates the operator and returns an access token.
func (s *Server) Login(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "empty secret")
	}
	tok, err := s.auth.LoginWithIP(ctx, req.GetValue(), remoteIP(ctx))
	if err != nil {
		return nil, s.toStatus(err, "login")
	}
	return wrapperspb.String(tok.AccessToken), nil
}

// --- Payloads ---

// Encrypt validates the instruction set and mints a payload.
func (s *Server) Encrypt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := convert.FromProtoRaw(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad instruction set: %v", err)
	}
	payload, link, err := s.payloads.Mint(ctx, raw)
	if err != nil {
		return nil, s.toStatus(err, "encrypt")
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"payload": structpb.NewStringValue(payload),
		"url":     structpb.NewStringValue(link),
	}}, nil
}

// Decrypt opens a payload for inspection.
func (s *Server) Decrypt(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	set, err := s.payloads.Inspect(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(err, "decrypt")
	}
	return convert.ToProtoInstructionSet(set), nil
}

// --- Analytics ---

// Events lists analytics rows.
func (s *Server) Events(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	if s.events == nil {
		return nil, status.Error(codes.Unavailable, "analytics storage not configured")
	}
	since, limit, err := convert.FromProtoEventQuery(req, DefaultEventsSince, DefaultEventsLimit)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	evs, err := s.events.Recent(ctx, s.clock.Now().Add(-since), limit)
	if err != nil {
		return nil, s.toStatus(err, "events")
	}
	return convert.ToProtoEvents(evs), nil
}

// Stats aggregates analytics rows.
func (s *Server) Stats(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s.events == nil {
		return nil, status.Error(codes.Unavailable, "analytics storage not configured")
	}
	since := DefaultStatsSince
	if v := req.GetValue(); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, status.Errorf(codes.InvalidArgument, "invalid since %q", v)
		}
		since = d
	}
	cs, err := s.events.Stats(ctx, s.clock.Now().Add(-since))
	if err != nil {
		return nil, s.toStatus(err, "stats")
	}
	return convert.ToProtoCounts(cs), nil
}

// toStatus maps domain errors to gRPC codes. Payload errors carry only their
// sanitized text.
func (s *Server) toStatus(err error, op string) error {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, errs.ErrInvalidInput),
		errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrInvalidKey),
		errors.Is(err, errs.ErrMalformedEnvelope),
		errors.Is(err, errs.ErrCryptoFailure),
		errors.Is(err, errs.ErrInvalidJSON):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.log.Error("admin call failed", zap.String("op", op), zap.Error(err))
	return status.Errorf(codes.Internal, "%s failed", op)
}
