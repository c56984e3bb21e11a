package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/posflow/internal/audit"
	"github.com/joao-fontenele/posflow/internal/cart"
	"github.com/joao-fontenele/posflow/internal/catalog"
	"github.com/joao-fontenele/posflow/internal/config"
	"github.com/joao-fontenele/posflow/internal/httpx"
	"github.com/joao-fontenele/posflow/internal/identity"
	"github.com/joao-fontenele/posflow/internal/inventory"
	"github.com/joao-fontenele/posflow/internal/messaging"
	"github.com/joao-fontenele/posflow/internal/orders"
	"github.com/joao-fontenele/posflow/internal/telemetry"
	"github.com/joao-fontenele/posflow/internal/terminal"
)

const serviceName = "pos"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequirePostgres(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireKafka(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Only the advisory stock cache depends on Redis.
		logger.Warn("redis unavailable, stock reads go to postgres", "error", err, "addr", cfg.RedisAddr)
	}

	producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.CompletedTopic)
	defer func() { _ = producer.Close() }()

	notifier, err := messaging.NewNotifier(producer, cfg.NotifierBuffer, logger)
	if err != nil {
		logger.Error("failed to create notifier", "error", err)
		os.Exit(1)
	}
	notifier.Start()

	ledger := inventory.NewCachedLedger(inventory.NewLedger(db, cfg.StorageTimeout), rdb, cfg.StockCacheTTL, logger)
	orderRepo := orders.NewOrderRepository(db)
	recorder := audit.NewRecorder(db)
	assembler := cart.NewAssembler(catalog.NewRepository(db), ledger)

	pipeline, err := orders.NewPipeline(orderRepo, ledger, recorder, notifier, orders.NewGuard(cfg.CommitCooldown), logger)
	if err != nil {
		logger.Error("failed to create commit pipeline", "error", err)
		os.Exit(1)
	}
	settlement := orders.NewSettlement(orderRepo, recorder, notifier, cfg.AuditLegacySync, logger)

	ordersHandler := orders.NewHandler(terminal.NewRegistry(), assembler, pipeline, settlement, orderRepo, recorder, logger)
	inventoryHandler := inventory.NewHandler(ledger, logger)

	router := httpx.NewRouter(logger, cfg.RequestTimeout)
	router.Handle("/metrics", metricsHandler)
	router.Group(func(r chi.Router) {
		r.Use(telemetry.RouteTag, identity.Middleware)
		ordersHandler.Register(r)
		inventoryHandler.Register(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("starting pos service", "port", cfg.Port, "legacy_cancel_sync", cfg.AuditLegacySync)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Error("notifier did not drain", "error", err)
	}
}
