// Package health serves liveness and readiness probes over HTTP and gRPC.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Checker runs the readiness checks of every registered dependency.
type Checker struct {
	checks  map[string]CheckFunc
	order   []string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Add registers a named check. Not safe to call after serving starts.
func (c *Checker) Add(name string, fn CheckFunc) {
	if _, ok := c.checks[name]; !ok {
		c.order = append(c.order, name)
	}
	c.checks[name] = fn
}

// Ready runs every check and returns the first failure.
func (c *Checker) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for _, name := range c.order {
		if err := c.checks[name](ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}
	return nil
}

// Handler serves /healthz and /readyz.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// ServeHTTP runs the probe server on port until ctx is cancelled.
func (c *Checker) ServeHTTP(ctx context.Context, port int) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.logger.Error().Err(err).Msg("health server error")
	}
}

// GRPCServer exposes the standard grpc.health.v1 service, refreshing the
// overall status from the readiness checks.
type GRPCServer struct {
	checker  *Checker
	health   *grpchealth.Server
	server   *grpc.Server
	interval time.Duration
}

func NewGRPCServer(checker *Checker) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{checker: checker, health: hs, server: srv, interval: 10 * time.Second}
}

// Refresh sets the serving status from a single readiness run.
func (g *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.checker.Ready(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		g.checker.logger.Warn().Err(err).Msg("grpc health not serving")
	}
	g.health.SetServingStatus("", status)
}

// Serve listens on port until ctx is cancelled.
func (g *GRPCServer) Serve(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}
	return g.serve(ctx, lis)
}

func (g *GRPCServer) serve(ctx context.Context, lis net.Listener) error {
	g.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.server.GracefulStop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()
	return g.server.Serve(lis)
}
