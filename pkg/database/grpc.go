package database

import (
	"fmt"
	"net"
	"time"

	"chat_presence_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer grpc server exposing only the standard health service
type HealthServer struct {
	Server   *grpc.Server
	Health   *health.Server
	listener net.Listener
}

// NewHealthServer listen on addr, status starts NOT_SERVING
func NewHealthServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	s := grpc.NewServer()
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h)
	return &HealthServer{Server: s, Health: h, listener: lis}, nil
}

// Addr listening address
func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}

// Serve block until Stop
func (h *HealthServer) Serve() error {
	return h.Server.Serve(h.listener)
}

// SetServing flip overall status
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.Health.SetServingStatus("", status)
}

// Stop graceful stop
func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}

// CreateGRPCClient create grpc client and wait until READY
func CreateGRPCClient(grpcIP string, wait time.Duration) (*grpc.ClientConn, error) {
	client, err := grpc.Dial(grpcIP, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	client.Connect()

	timeout := time.After(wait)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			client.Close()
			return nil, fmt.Errorf("connection did not become READY within %s", wait)
		case <-ticker.C:
			state := client.GetState()
			logger.Log.Debug("grpc connection state", zap.String("addr", grpcIP), zap.String("state", state.String()))
			if state == connectivity.Ready {
				return client, nil
			}
			if state == connectivity.Idle {
				client.Connect()
			}
		}
	}
}
