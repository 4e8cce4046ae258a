// Goal coach chat server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/goalcoach/internal/api"
	"github.com/ashureev/goalcoach/internal/app"
	"github.com/ashureev/goalcoach/internal/config"
	"github.com/ashureev/goalcoach/internal/healthcheck"
	"github.com/ashureev/goalcoach/internal/identity"
	"github.com/ashureev/goalcoach/internal/metrics"
	"github.com/ashureev/goalcoach/internal/middleware"
	"github.com/ashureev/goalcoach/internal/realtime"
	"github.com/ashureev/goalcoach/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	coach, err := app.New(ctx, cfg, logger, m)
	if err != nil {
		slog.Error("Failed to initialize coach", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := coach.Close(); closeErr != nil {
			slog.Error("Failed to close coach resources", "error", closeErr)
		}
	}()
	slog.Info("Database connected")

	var verifier *identity.Verifier
	if cfg.AuthEnabled() {
		verifier, err = identity.NewJWKSVerifier(ctx, cfg.Auth.JWKSURL, identity.VerifierConfig{
			Issuer:        cfg.Auth.Issuer,
			Audience:      cfg.Auth.Audience,
			RequiredScope: cfg.Auth.RequiredScope,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize JWT verifier", "error", err)
			os.Exit(1)
		}
		defer verifier.Close()
		slog.Info("JWT authentication enabled", "issuer", cfg.Auth.Issuer, "audience", cfg.Auth.Audience)
	} else {
		slog.Warn("AUTH_JWKS_URL not set, using anonymous development identities")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	go limiter.RunEviction(ctx, time.Minute)
	onLimited := func() { m.RateLimited.Inc() }

	// Initialize handlers.
	handler := api.NewHandler(coach.Repo, coach.Chat, api.Options{ChatTimeout: cfg.ChatTimeout}, logger)
	sm := realtime.NewSessionManager()
	wsHandler := realtime.NewChatHandler(coach.Chat, sm, realtime.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDev:          cfg.IsDevelopment(),
		ChatTimeout:    cfg.ChatTimeout,
		Limiter:        limiter,
		OnLimited:      onLimited,
		Gauge:          m.WSConnections,
	})
	handler.SetWebSocket(wsHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	r.Get("/ready", handler.HandleReady)
	r.Handle("/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier, cfg.IsDevelopment()))

		chatGuard := []func(http.Handler) http.Handler{
			identity.RequireChat,
			middleware.RateLimit(limiter, func(r *http.Request) string {
				return identity.UserIDFromContext(r.Context())
			}, onLimited),
		}
		handler.RegisterRoutes(r, chatGuard...)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE responses stream for up to CHAT_REQUEST_TIMEOUT, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	health := healthcheck.NewServer(coach.Repo, 10*time.Second, logger)
	go func() {
		if err := health.Serve(ctx, net.JoinHostPort("", cfg.GRPCPort)); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	sm.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}
