package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultCheckInterval = 10 * time.Second
	checkTimeout         = 3 * time.Second
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// HealthServer publishes the standard gRPC health service for the storefront.
// The overall status and the named service status follow the dependency checks: SERVING
// while every check passes, NOT_SERVING otherwise.
type HealthServer struct {
	config   *config.GRPCConfig
	service  string
	logger   *zap.Logger
	server   *grpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

func NewHealthServer(cfg *config.GRPCConfig, service string, logger *zap.Logger, checks map[string]Check) *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &HealthServer{
		config:   cfg,
		service:  service,
		logger:   logger,
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: defaultCheckInterval,
		stop:     make(chan struct{}),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *HealthServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logger.Info("gRPC health server started", zap.String("address", addr))
	return s.Serve(lis)
}

// Serve runs the checks in the background and blocks serving lis until Close.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.CheckNow(context.Background())
	go s.checkLoop()
	return s.server.Serve(lis)
}

// CheckNow runs every check once and updates the published status.
func (s *HealthServer) CheckNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(status)
}

func (s *HealthServer) checkLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.CheckNow(context.Background())
		}
	}
}

func (s *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Close flips every status to NOT_SERVING and drains in-flight RPCs.
func (s *HealthServer) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.server.GracefulStop()
	})
}
