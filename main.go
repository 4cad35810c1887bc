package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"energy-ledger/internal/audit"
	"energy-ledger/internal/auth"
	"energy-ledger/internal/config"
	"energy-ledger/internal/finance/domain"
	"energy-ledger/internal/metering/domain"
	meteringmemory "energy-ledger/internal/metering/infrastructure/memory"
	meteringpostgres "energy-ledger/internal/metering/infrastructure/postgres"
	"energy-ledger/internal/observability/metrics"
	"energy-ledger/internal/observability/trace"
	"energy-ledger/internal/pricing/domain"
	pricingmemory "energy-ledger/internal/pricing/infrastructure/memory"
	pricingpostgres "energy-ledger/internal/pricing/infrastructure/postgres"
	"energy-ledger/internal/pricing/infrastructure/tariff"
	"energy-ledger/internal/reconcile/application"
	"energy-ledger/internal/reconcile/application/eventbus"
	reconcilehttp "energy-ledger/internal/reconcile/interfaces/http"
	"energy-ledger/internal/statistics/domain"
	statisticsmemory "energy-ledger/internal/statistics/infrastructure/memory"
	statisticspostgres "energy-ledger/internal/statistics/infrastructure/postgres"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// zap is not configured yet
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := trace.Init(cfg.TracingEnabled, version); err != nil {
		logger.Fatal("trace init error", zap.Error(err))
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db open error", zap.Error(err))
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatal("db ping error", zap.Error(err))
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}
	metrics.Init(db, logger)

	states, entries, prices := buildStores(db)
	source, err := buildPriceSource(cfg, db)
	if err != nil {
		logger.Fatal("price source error", zap.Error(err))
	}

	calc := finance.NewCalculator(cfg.Finance)
	agg, err := statistics.NewAggregator(calc, statistics.WithLocation(cfg.Location()))
	if err != nil {
		logger.Fatal("aggregator error", zap.Error(err))
	}

	bus := eventbus.NewInMemoryBus()
	hub := reconcilehttp.NewHub(logger.Named("stream"))
	hub.Attach(bus)

	opts := []application.Option{
		application.WithConfig(application.Config{
			Accumulator:   cfg.AccumulatorOptions(),
			Retention:     cfg.Retention,
			Prices:        cfg.PricePolicy(),
			FallbackPrice: cfg.Pricing.FallbackPrice,
			OutlierWindow: cfg.OutlierWindow,
		}),
		application.WithEventBus(bus),
		application.WithLogger(logger.Named("reconcile")),
	}
	if source != nil {
		opts = append(opts, application.WithPriceSource(source))
	}
	service, err := application.NewService(states, entries, prices, calc, agg, opts...)
	if err != nil {
		logger.Fatal("reconcile service error", zap.Error(err))
	}

	mux := http.NewServeMux()
	var recorder audit.Logger = audit.NewZapLogger(logger.Named("audit"))
	if db != nil {
		recorder = audit.NewRepository(db)
	}
	if err := reconcilehttp.Register(mux, service, hub, recorder, logger.Named("http")); err != nil {
		logger.Fatal("http handler error", zap.Error(err))
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, API is unauthenticated")
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("access")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = trace.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Float64("flush_interval_minutes", cfg.AccumulatorOptions().FlushIntervalMinutes),
		zap.String("timezone", cfg.Location().String()),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func buildStores(db *sql.DB) (metering.StateRepository, statistics.EntryRepository, pricing.HistoryRepository) {
	if db == nil {
		return meteringmemory.NewStateRepository(), statisticsmemory.NewEntryRepository(), pricingmemory.NewHistoryRepository()
	}
	return meteringpostgres.NewStateRepository(db), statisticspostgres.NewEntryRepository(db), pricingpostgres.NewHistoryRepository(db)
}

// buildPriceSource prefers the database tariff, then the configured
// schedule, then a fixed price. No source leaves pricing to POST /api/v1/prices.
func buildPriceSource(cfg config.Config, db *sql.DB) (pricing.Source, error) {
	switch {
	case cfg.Pricing.TariffEnabled:
		if db == nil {
			return nil, errors.New("tariff pricing requires DATABASE_URL")
		}
		return tariff.NewTariffSource(db), nil
	case len(cfg.Pricing.Schedule) > 0:
		return tariff.NewScheduleSource(cfg.Pricing.Schedule, cfg.Location())
	case cfg.Pricing.FixedPrice != nil:
		return tariff.NewFixedPriceSource(*cfg.Pricing.FixedPrice)
	}
	return nil, nil
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the stream handler upgrade through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: response does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
