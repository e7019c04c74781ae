// Package health tracks whether the bot is connected to the chat gateway
// and exposes that as the standard gRPC health service.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

// ServiceName is the per-service key reported alongside the overall ("")
// status.
const ServiceName = "doorbot"

type Tracker struct {
	srv     *grpchealth.Server
	serving atomic.Bool
}

// NewTracker starts in NOT_SERVING; the gateway flips it once connected.
func NewTracker() *Tracker {
	t := &Tracker{srv: grpchealth.NewServer()}
	t.SetServing(false)
	return t
}

func (t *Tracker) SetServing(ok bool) {
	t.serving.Store(ok)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	t.srv.SetServingStatus("", status)
	t.srv.SetServingStatus(ServiceName, status)
}

// Serving is false on a nil Tracker.
func (t *Tracker) Serving() bool {
	if t == nil {
		return false
	}
	return t.serving.Load()
}

// Status is the current overall status as the gRPC enum.
func (t *Tracker) Status() healthpb.HealthCheckResponse_ServingStatus {
	if t.Serving() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Serve listens on addr and serves grpc.health.v1 until ctx is cancelled.
func (t *Tracker) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return t.ServeListener(ctx, lis, logger)
}

func (t *Tracker) ServeListener(ctx context.Context, lis net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, t.srv)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("health gRPC listening", "addr", lis.Addr().String())
		errCh <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		t.srv.Shutdown()
		gs.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
