// Package healthcheck serves the standard grpc.health.v1.Health service so
// load balancers and orchestrators can probe the presence server.
package healthcheck

import (
	"context"
	"database/sql"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry that tracks the database. The empty name
// reports overall process health.
const ServiceName = "presence"

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	db     Pinger
	logger *log.Logger

	interval time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

// New registers the health service on a fresh gRPC server. When db is non-nil
// the "presence" entry follows its ping result.
func New(db Pinger, logger *log.Logger) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpc:     gs,
		health:   hs,
		db:       db,
		logger:   logger,
		interval: 15 * time.Second,
		stop:     make(chan struct{}),
	}
}

// Serve blocks accepting connections on lis and polls the database in the
// background until Stop.
func (s *Server) Serve(lis net.Listener) error {
	go s.watch()
	return s.grpc.Serve(lis)
}

// Check pings the database once and updates the "presence" status.
func (s *Server) Check(ctx context.Context) {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Printf("health: db ping failed: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) watch() {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.Check(context.Background())
		}
	}
}

// Stop marks every service NOT_SERVING and stops the gRPC server gracefully.
// Safe to call more than once, and before Serve.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		close(s.stop)
		s.grpc.GracefulStop()
	})
}
