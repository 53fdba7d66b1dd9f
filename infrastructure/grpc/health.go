package grpc

import (
	"chat-relay/contract"
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the name probes ask for, the empty name reports the whole process.
const RelayService = "chat.relay"

var _ contract.Worker = (*HealthServer)(nil)

// HealthServer exposes the standard gRPC health protocol next to the relay.
type HealthServer struct {
	log      *slog.Logger
	listener net.Listener
	server   *grpc.Server
	health   *health.Server
}

func NewHealthServer(log *slog.Logger, listener net.Listener) *HealthServer {
	h := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h)
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, listener: listener, server: s, health: h}
}

func (h *HealthServer) Addr() net.Addr { return h.listener.Addr() }

// SetServing flips both the process and the relay status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(RelayService, status)
}

// Run serves until ctx is canceled, then reports NOT_SERVING and stops gracefully.
func (h *HealthServer) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		h.log.Info("Starting gRPC health server", "address", h.Addr().String())
		if err := h.server.Serve(h.listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC health server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		h.server.GracefulStop()
		return nil
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}
