package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auditorium/internal/access"
	"auditorium/internal/api"
	"auditorium/internal/audit"
	"auditorium/internal/auth"
	"auditorium/internal/cache"
	"auditorium/internal/config"
	"auditorium/internal/database"
	"auditorium/internal/database/postgres"
	"auditorium/internal/events"
	"auditorium/internal/health"
	"auditorium/internal/metrics"
	"auditorium/internal/mq"
	"auditorium/internal/obs"
	"auditorium/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// store is what both database backends provide.
type store interface {
	service.BookingStore
	auth.UserStore
	audit.TableSource
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load(os.Getenv("AUDITORIUM_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracing")
	}
	defer func() {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctxShutdown)
	}()

	db, sqliteDB := openStore(cfg, &logger)
	defer db.Close()

	checker := health.NewChecker(logger)
	checker.Add("database", db.Ping)

	var bookingStore service.BookingStore = db
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cached := cache.New(db, rdb, cfg.CacheTTL(), logger)
		checker.Add("redis", cached.Ping)
		bookingStore = cached
	}

	bus := events.NewBus(logger)
	if cfg.Broker.URL != "" {
		pub, err := mq.NewPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect broker")
		}
		defer pub.Close()
		sink := mq.NewSink(pub, logger)
		sink.Attach(bus)
		sink.Start()
		defer sink.Stop()
		logger.Info().Str("exchange", cfg.Broker.Exchange).Msg("publishing booking events")
	}

	bookings := service.NewBookingService(bookingStore, access.NewPolicy(logger), bus, logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL(), cfg.App.Name)
	authSvc := auth.NewService(db, tokens, cfg.Auth.AdminEmails, logger)
	exporter := audit.NewExporter(db, logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go checker.ServeHTTP(ctx, cfg.Monitoring.HealthCheckPort)
	if cfg.Monitoring.GRPCHealthPort != 0 {
		go func() {
			if err := health.NewGRPCServer(checker).Serve(ctx, cfg.Monitoring.GRPCHealthPort); err != nil {
				logger.Error().Err(err).Msg("grpc health server error")
			}
		}()
	}

	go service.NewConsistencyChecker(bookings, cfg.ConsistencyInterval(), logger).Start(ctx)

	if sqliteDB != nil && cfg.Backup.Enabled {
		go database.NewBackupService(sqliteDB, cfg.Backup, &logger).Start(ctx)
	}

	if cfg.Export.Enabled {
		sink, err := exportSink(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("configure export sink")
		}
		exports := audit.NewService(exporter, sink, cfg.ExportInterval(), logger)
		exports.Start()
		defer exports.Stop()
	}

	srv := api.NewServer(bookings, authSvc, exporter, api.Options{
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		RequestsPerSecond: cfg.HTTP.RateLimit.RequestsPerSecond,
		Burst:             cfg.HTTP.RateLimit.Burst,
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
	}, logger)

	logger.Info().Str("env", cfg.App.Env).Str("driver", cfg.Database.Driver).Msg("auditorium booking service started")
	if err := srv.Run(ctx, cfg.HTTP.Addr); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", cfg.App.Name).Logger()
}

// openStore returns the configured store and, for SQLite, the concrete
// handle used by the backup service.
func openStore(cfg *config.Config, logger *zerolog.Logger) (store, *database.DB) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(cfg.Database.DSN, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open postgres")
		}
		return pg, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	return db, db
}

func exportSink(cfg *config.Config) (audit.Sink, error) {
	if cfg.Export.S3.Bucket != "" {
		return audit.NewS3Sink(cfg.Export.S3.Region, cfg.Export.S3.Bucket, cfg.Export.S3.Prefix)
	}
	return audit.DirSink{Dir: cfg.Export.Dir}, nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
