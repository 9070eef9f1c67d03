package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/venuebook/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// HealthReporter publishes the readiness checks through the standard gRPC health service.
type HealthReporter struct {
	srv     *health.Server
	service string
	checks  []runtime.ReadyCheck
	logger  *slog.Logger
}

func RegisterHealth(s *grpc.Server, service string, logger *slog.Logger, checks ...runtime.ReadyCheck) *HealthReporter {
	h := &HealthReporter{
		srv:     health.NewServer(),
		service: service,
		checks:  checks,
		logger:  logger,
	}
	healthpb.RegisterHealthServer(s, h.srv)
	return h
}

// Refresh runs the checks once and updates the serving status of both "" and the named service.
func (h *HealthReporter) Refresh(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if failures := runtime.RunChecks(ctx, h.checks); len(failures) > 0 {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("grpc health degraded", "failures", failures)
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(h.service, st)
}

// Run refreshes on every tick until ctx is done, then reports NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
