package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "rental-payments"

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer exposes the standard gRPC health protocol. The service is
// SERVING while the database answers pings.
type HealthServer struct {
	health *health.Server
	db     pinger
}

func NewHealthServer(db pinger) *HealthServer {
	return &HealthServer{health: health.NewServer(), db: db}
}

func (s *HealthServer) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Refresh pings the database and publishes the result for both the overall
// server and ServiceName.
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			loggerWithContext(ctx).WithError(err).Warn("Database ping failed")
			servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", servingStatus)
	s.health.SetServingStatus(ServiceName, servingStatus)
	return servingStatus
}

// Watch refreshes the status on every tick until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
}
