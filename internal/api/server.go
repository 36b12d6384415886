// Package api exposes the booking lifecycle over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"auditorium/internal/auth"
	"auditorium/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Exporter renders the admin spreadsheet export.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

type Options struct {
	CORSOrigins       []string
	RequestsPerSecond float64
	Burst             int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

type Server struct {
	engine   *gin.Engine
	bookings *service.BookingService
	auth     *auth.Service
	exporter Exporter
	limiter  *clientLimiter
	opts     Options
	logger   zerolog.Logger
}

func NewServer(bookings *service.BookingService, authSvc *auth.Service, exporter Exporter, opts Options, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:   gin.New(),
		bookings: bookings,
		auth:     authSvc,
		exporter: exporter,
		opts:     opts,
		logger:   logger.With().Str("component", "http").Logger(),
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = newClientLimiter(opts.RequestsPerSecond, opts.Burst)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	corsCfg := cors.DefaultConfig()
	if len(s.opts.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.opts.CORSOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}

	r.Use(s.requestLogger(), gin.Recovery(), cors.New(corsCfg), s.authenticate())

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.rateLimit(), s.handleRegister)
		authGroup.POST("/login", s.rateLimit(), s.handleLogin)
		authGroup.GET("/me", requireAuth(), s.handleMe)
	}

	bookings := api.Group("/bookings")
	{
		bookings.GET("", s.handleListBookings)
		bookings.GET("/:id", s.handleGetBooking)

		protected := bookings.Group("")
		protected.Use(requireAuth())
		protected.GET("/:id/history", s.handleBookingHistory)

		writes := protected.Group("")
		writes.Use(s.rateLimit())
		writes.POST("", s.handleCreateBooking)
		writes.PUT("/:id", s.handleUpdateBooking)
		writes.DELETE("/:id", s.handleDeleteBooking)

		admin := writes.Group("")
		admin.Use(requireAdmin())
		admin.PUT("/:id/approve", s.handleApproveBooking)
		admin.PUT("/:id/reject", s.handleRejectBooking)
	}

	adminGroup := api.Group("/admin")
	adminGroup.Use(requireAdmin())
	{
		adminGroup.GET("/conflicts", s.handleConflicts)
		adminGroup.GET("/export", s.handleExport)
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
