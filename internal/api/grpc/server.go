// Package grpcapi exposes the status process over gRPC health checking.
package grpcapi

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"speech-checkpoint-service/internal/checkpoint"
	"speech-checkpoint-service/internal/observability"
	"speech-checkpoint-service/internal/observability/logging"
	"speech-checkpoint-service/internal/service/status"
)

// ServiceName is the health-checked service of the status process.
const ServiceName = "speech.checkpoint.Status"

// Server serves gRPC health and reflection. The status service is SERVING
// while the checkpoint store can be listed.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	store  checkpoint.Store
	log    zerolog.Logger
}

// New creates the server and registers health checking and reflection.
func New(store checkpoint.Store) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor()),
	)

	// Register gRPC health check service
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, h)
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{
		grpc:   g,
		health: h,
		store:  store,
		log:    logging.WithComponent("grpc"),
	}
}

// Probe lists the store once and updates the status service accordingly.
func (s *Server) Probe(ctx context.Context) bool {
	_, err := s.store.ListActive(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Checkpoint store unavailable")
		s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return false
	}
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return true
}

// Monitor probes the store every interval until ctx is cancelled. A
// non-positive interval means status.DefaultInterval.
func (s *Server) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = status.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
