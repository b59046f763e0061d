// Package grpcserver serves the acquisition daemon over gRPC: the standard
// grpc.health.v1 service for orchestrators, plus AcquisitionService for the
// Gateway. Serving status follows database reachability: without Postgres no
// run can keep its dedup guarantees.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probes can ask for besides the overall "" service.
const ServiceName = "jobmate.acquisition.v1.AcquisitionService"

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a grpc.Server with a health service.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	logger   *slog.Logger
}

// New constructs a Server that re-checks the database every interval.
func New(db Pinger, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Server{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		db:       db,
		interval: interval,
		logger:   logger.With("component", "grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Watch probes the database until ctx is done, flipping the serving status.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// Check probes the database once and updates the serving status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "database unreachable, reporting NOT_SERVING", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.setStatus(status)
	return status
}

// Stop marks the service as shutting down and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
