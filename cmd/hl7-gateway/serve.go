package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hl7results/gateway/internal/config"
	"github.com/hl7results/gateway/internal/domain/labresult"
	"github.com/hl7results/gateway/internal/platform/auth"
	"github.com/hl7results/gateway/internal/platform/health"
	"github.com/hl7results/gateway/internal/platform/hl7v2"
	"github.com/hl7results/gateway/internal/platform/middleware"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// app is the wired gateway: the HTTP server and the optional MLLP listener
// share one labresult service.
type app struct {
	echo *echo.Echo
	mllp *hl7v2.MLLPServer
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	authMW, err := auth.Middleware(auth.Config{
		Mode:    cfg.ResolvedAuthMode(),
		APIKeys: cfg.APIKeys,
		JWT: auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSigningKey),
		},
	})
	if err != nil {
		return nil, err
	}

	svc := labresult.NewService(hl7v2.NewParser(), logger, labresult.WithCache(cfg.ResultCacheTTL))

	a := &app{}
	var checks []health.Checker
	if cfg.MLLPAddr != "" {
		a.mllp = hl7v2.NewMLLPServer(cfg.MLLPAddr, labresult.MLLPHandler(svc), logger)
		checks = append(checks, health.TCPCheck("mllp", a.mllp.Addr))
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Slow request bodies fail the read instead of holding a handler open.
	for _, srv := range []*http.Server{e.Server, e.TLSServer} {
		srv.ReadHeaderTimeout = readHeaderTimeout
		if cfg.RequestTimeout > 0 {
			srv.ReadTimeout = cfg.RequestTimeout
		}
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{
			"Authorization", "Content-Type", middleware.RequestIDHeader,
			labresult.SourceHeader, auth.APIKeyHeader,
		},
	}))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(authMW)

	// Health check
	e.GET("/health", health.Handler(health.Info{
		Service:     serviceName,
		Version:     version,
		Environment: cfg.Env,
	}, checks...))

	// API
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	labresult.NewHandler(svc).RegisterRoutes(apiV1)

	a.echo = e
	return a, nil
}

// run serves until ctx is done or one of the listeners fails, then shuts
// everything down.
func (a *app) run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = a.echo.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = a.echo.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.mllp != nil {
		g.Go(func() error {
			if err := a.mllp.Start(); err != nil {
				return err
			}
			logger.Info().Str("addr", a.mllp.Addr()).Msg("MLLP server started")
			<-gctx.Done()
			return a.mllp.Stop()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	logger.Info().Msg("server stopped")
	return err
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	if cfg.ResolvedAuthMode() == auth.ModeDevelopment {
		logger.Warn().Msg("authentication is disabled (AUTH_MODE=development); do not expose this instance")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx, cfg, logger)
}
