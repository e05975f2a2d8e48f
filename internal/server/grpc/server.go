// Package grpc serves the standard gRPC health service. Clients check it to
// decide whether they are online.
package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/greenmission/internal/logging"
)

// HealthCheck reports whether a dependency the API needs is reachable.
type HealthCheck func(ctx context.Context) error

type GRPCServer struct {
	address       string
	logger        logging.Logger
	health        *health.Server
	check         HealthCheck
	checkInterval time.Duration

	mu       sync.Mutex
	addr     string
	serving  bool
	listened chan struct{}
}

// NewGRPCServer returns a health server for address. With a non-nil check
// the status follows it, rerun every interval.
func NewGRPCServer(a string, l logging.Logger, check HealthCheck, interval time.Duration) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		health:        health.NewServer(),
		check:         check,
		checkInterval: interval,
		listened:      make(chan struct{}),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = listen.Addr().String()
	s.mu.Unlock()
	close(s.listened)

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.runCheck(ctx)

	go func() {
		if s.check == nil || s.checkInterval <= 0 {
			return
		}
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runCheck(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.Addr())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

// Addr is the bound address once Run is listening, "" before.
func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Listening is closed once Run has bound its address.
func (s *GRPCServer) Listening() <-chan struct{} {
	return s.listened
}

func (s *GRPCServer) runCheck(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.check(pctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if ctx.Err() == nil {
				s.logger.Warn(ctx, "health check failed", "error", err)
			}
		}
	}

	s.mu.Lock()
	changed := s.serving != (status == healthpb.HealthCheckResponse_SERVING)
	s.serving = status == healthpb.HealthCheckResponse_SERVING
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	s.health.SetServingStatus("", status)
	if changed {
		s.logger.Info(ctx, "serving status changed", "status", status.String())
	}
}
