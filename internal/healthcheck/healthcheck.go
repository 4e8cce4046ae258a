// Package healthcheck serves and probes the gRPC health protocol for orchestrators.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported for the coach API.
const ServiceName = "goalcoach.v1.Coach"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes grpc.health.v1.Health and tracks readiness of a dependency.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewServer creates a health server that re-checks pinger every interval.
func NewServer(pinger Pinger, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{grpc: srv, health: hs, pinger: pinger, interval: interval, logger: logger}
}

// Check pings the dependency once and updates the serving status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Server) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, s.interval/2)
	defer cancel()
	s.Check(pingCtx)
}

// Probe queries a remote health service and returns its status.
func Probe(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %s: %w", addr, err)
	}
	return resp.GetStatus(), nil
}
