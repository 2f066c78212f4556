// Command landing-server serves encrypted landing pages and the payload admin API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/goph-landing/internal/config"
	pkgcrypto "github.com/and161185/goph-landing/internal/crypto"
	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
	"github.com/and161185/goph-landing/internal/landing"
	"github.com/and161185/goph-landing/internal/limiter"
	"github.com/and161185/goph-landing/internal/migrate"
	"github.com/and161185/goph-landing/internal/repository"
	"github.com/and161185/goph-landing/internal/repository/postgres"
	grpcserver "github.com/and161185/goph-landing/internal/server/grpc"
	httpserver "github.com/and161185/goph-landing/internal/server/http"
	"github.com/and161185/goph-landing/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, prepares storage and serves HTTP and gRPC until signalled.
func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// Storage is optional
	var (
		lim  limiter.Limiter
		repo repository.EventRepository
	)
	if cfg.DSN != "" {
		pool, err := postgres.Connect(ctx, cfg.DSN, cfg.DBWait, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		if v, err := migrate.Version(ctx, cfg.DSN); err == nil {
			logger.Info("database ready", zap.Int64("schema_version", v))
		}
		lim = limiter.NewPG(pool, cfg.Limiter)
		repo = postgres.NewEventRepo(&postgres.DB{Pool: pool})
	} else {
		logger.Info("no database configured: in-memory limiter, analytics logged only")
		lim = limiter.NewMemory(nil, cfg.Limiter)
	}

	// Services
	codec, err := payloadcodec.New(cfg.CodecConfig(), logger.Named("codec"))
	if err != nil {
		return fmt.Errorf("payload codec: %w", err)
	}
	payloads := service.NewPayloadService(codec, lim, cfg.BaseURL, logger.Named("payloads"))
	analytics := service.NewAnalytics(repo, logger.Named("analytics"), service.AnalyticsOptions{})

	var auth service.AdminAuth
	if cfg.AdminEnabled() {
		hash, salt, err := pkgcrypto.DecodeSecretHash(cfg.AdminSecretHash, cfg.AdminSecretSalt)
		if err != nil {
			return fmt.Errorf("admin secret: %w", err)
		}
		auth = service.NewAdminAuth(hash, salt, []byte(cfg.JWTKey), cfg.TokenTTL, lim, nil)
	}

	actx, stopAnalytics := context.WithCancel(ctx)
	defer stopAnalytics()
	analyticsDone := make(chan struct{})
	go func() {
		defer close(analyticsDone)
		_ = analytics.Run(actx)
	}()

	// HTTP
	web := httpserver.New(httpserver.Deps{
		Page:     landing.NewPage(payloads, logger.Named("landing")),
		Payloads: payloads,
		Auth:     auth,
		Reporter: analytics,
		Logger:   logger.Named("http"),
	})
	httpSrv := httpserver.NewHTTPServer(cfg.HTTPAddr, web.Handler())

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (http)", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// gRPC admin
	var (
		gs *grpc.Server
		hs *health.Server
	)
	switch {
	case cfg.GRPCAddr == "":
	case auth == nil:
		logger.Info("admin secret not configured, gRPC admin API disabled")
	default:
		gs, hs, err = newGRPCServer(cfg, auth, payloads, analytics, logger)
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			logger.Info("listening (grpc)", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	// Wait for stop
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	// graceful shutdown
	if hs != nil {
		hs.Shutdown()
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			gs.Stop()
		}
	}
	// flush queued analytics after the listeners are closed
	stopAnalytics()
	<-analyticsDone
	if n := analytics.Dropped(); n > 0 {
		logger.Warn("analytics events dropped", zap.Int64("count", n))
	}
	return runErr
}

func newGRPCServer(cfg config.Config, auth service.AdminAuth, payloads service.PayloadService, events grpcserver.EventQuerier, logger *zap.Logger) (*grpc.Server, *health.Server, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger.Named("grpc")),
			grpcserver.AuthUnary(auth),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)

	grpcserver.RegisterPayloadAdminServer(s, grpcserver.New(auth, payloads, events, nil, logger.Named("admin")))

	// Health & reflection (dev)
	hs := health.NewServer()
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}
	return s, hs, nil
}
