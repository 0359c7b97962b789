// Package grpcserver runs the gRPC health endpoint used by orchestrators.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"messaging-service/internal/observability"
)

// ServiceName is the health service name reported for the messaging API.
const ServiceName = "messaging.v1.Messaging"

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Server wraps a grpc.Server exposing grpc.health.v1.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New builds a server with tracing and metrics interceptors installed.
func New() *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: srv, health: hs}
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// SetServing flips the status of both the overall and the named service.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Watch runs check every interval and updates the serving status until ctx
// is done. The first check runs immediately.
func (s *Server) Watch(ctx context.Context, interval time.Duration, check CheckFunc) {
	run := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := check(cctx)
		if err != nil {
			slog.WarnContext(ctx, "health check failed", "error", err)
		}
		s.SetServing(err == nil)
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Stop drains in-flight calls and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
