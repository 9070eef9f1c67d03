package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/venuebook/libs/runtime"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthReporter_Refresh(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var dbErr error
	s := NewServer(logger)
	h := RegisterHealth(s, "booking-service", logger, runtime.ReadyCheck{
		Name:  "db",
		Check: func(context.Context) error { return dbErr },
	})

	h.Refresh(context.Background())
	resp, err := h.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "booking-service"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}

	dbErr = errors.New("connection refused")
	h.Refresh(context.Background())
	resp, err = h.srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.GetStatus())
	}
}

func TestUnaryServerRequestIDInterceptor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-42"))
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(ctx context.Context, _ any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor failed: %v", err)
	}
	if seen != "req-42" {
		t.Fatalf("expected request id from metadata, got %q", seen)
	}
}
