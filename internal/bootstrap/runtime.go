package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/audit/kafkasink"
	"github.com/MrEthical07/streamauth/httpapi"
	"github.com/MrEthical07/streamauth/metrics/export/internaldefs"
	otelexport "github.com/MrEthical07/streamauth/metrics/export/otel"
	"github.com/MrEthical07/streamauth/presence"
	"github.com/MrEthical07/streamauth/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
)

// Runtime owns the long-lived server components.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	engine     *streamauth.Engine
	httpServer *http.Server
	sweeper    *presence.Sweeper
	cleanupFn  func()
}

// Option customizes NewRuntime.
type Option func(*runtimeOptions)

type runtimeOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider publishes engine metrics through mp in addition to the
// Prometheus endpoint.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *runtimeOptions) { o.meterProvider = mp }
}

// NewLogger returns a slog logger writing to w in the configured format.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewRuntime connects dependencies, applies migrations and builds the
// engine and HTTP server. Everything opened is closed again on error.
func NewRuntime(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if logger == nil {
		logger = NewLogger(os.Stdout, cfg)
	}
	var options runtimeOptions
	for _, opt := range opts {
		opt(&options)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	closers = append(closers, func() { _ = redisClient.Close() })
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cleanup()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.MaxDBConns,
		ConnMaxIdleTime: 15 * time.Minute,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	closers = append(closers, func() { _ = sqlDB.Close() })

	if err := postgres.Migrate(ctx, db, logger); err != nil {
		cleanup()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store := postgres.New(db)

	builder := streamauth.New().
		WithConfig(cfg.Engine).
		WithRedis(redisClient).
		WithUserStore(store).
		WithDeviceStore(store).
		WithLogger(logger)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		closers = append(closers, func() { _ = sink.Close() })
		builder = builder.WithAuditSink(sink)
	} else if cfg.Engine.Audit.Enabled {
		builder = builder.WithAuditSink(streamauth.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	// Engine.Close drains the audit dispatcher; it must run before the sink closes.
	closers = append(closers, engine.Close)
	engine.LogSecurityReport(logger)

	if options.meterProvider != nil {
		closeMeter, err := registerMeter(options.meterProvider, engine)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, closeMeter)
		logger.Info("otel metrics registered", "module", "bootstrap", "operation", "metrics", "outcome", "success")
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:            logger,
		SecureCookies:     cfg.SecureCookies,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	rt := &Runtime{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		cleanupFn: cleanup,
	}
	if sweeper, ok := engine.PresenceSweeper(); ok {
		rt.sweeper = sweeper
	}
	return rt, nil
}

// registerMeter binds an OTel exporter for source to the streamauth scope
// of mp and returns its closer.
func registerMeter(mp metric.MeterProvider, source internaldefs.Source) (func(), error) {
	exp, err := otelexport.New(mp.Meter(otelexport.ScopeName), source)
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	return func() { _ = exp.Close() }, nil
}

// Engine returns the built engine.
func (r *Runtime) Engine() *streamauth.Engine {
	return r.engine
}

// Run serves HTTP until ctx is done or the server fails, then shuts down
// gracefully and releases every dependency.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.cleanupFn()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Viewer streams end when runCtx is cancelled instead of holding Shutdown open.
	r.httpServer.BaseContext = func(net.Listener) context.Context { return runCtx }

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", "module", "bootstrap", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sweepDone := make(chan struct{})
	if r.sweeper != nil {
		go func() {
			defer close(sweepDone)
			_ = r.sweeper.Run(runCtx)
		}()
	} else {
		close(sweepDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received", "module", "bootstrap")
	case runErr = <-errCh:
		r.logger.Error("server failure", "module", "bootstrap", "error", runErr)
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer stop()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown incomplete", "module", "bootstrap", "error", err)
	}
	<-sweepDone
	return runErr
}
