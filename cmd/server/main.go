package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/quick-commerce/internal/adapter/handler"
	"github.com/rl1809/quick-commerce/internal/adapter/messaging"
	"github.com/rl1809/quick-commerce/internal/adapter/storage"
	"github.com/rl1809/quick-commerce/internal/core/service"
	"github.com/rl1809/quick-commerce/internal/platform/config"
	"github.com/rl1809/quick-commerce/internal/platform/logger"
	"github.com/rl1809/quick-commerce/internal/platform/metrics"
	"github.com/rl1809/quick-commerce/internal/port"
)

// backends is everything the checkout service reads and writes, picked by
// the storage and ledger drivers.
type backends struct {
	stores   port.StoreCatalog
	products port.ProductCatalog
	ledger   port.InventoryLedger
	snapshot port.InventorySnapshot
	orders   port.OrderRepository
	carts    port.CartRepository
	profiles port.ProfileRepository
	cache    port.CacheRepository
	recon    port.ReconciliationLog

	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fatal("failed to load config", err)
	}

	b, err := openStorage(ctx, cfg)
	if err != nil {
		fatal("failed to open storage", err)
	}
	defer b.close()

	if cfg.Redis.Enabled() {
		if err := attachRedis(ctx, cfg, b); err != nil {
			fatal("failed to connect redis", err)
		}
	} else if cfg.Storage.Driver != config.StorageMemory {
		// idempotency keys and the reconciliation log only live for this process
		logger.Warn("REDIS_ADDR not set, idempotency and reconciliation are process-local")
		mem := storage.NewMemoryAdapter()
		b.cache, b.recon = mem, mem
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCheckoutMetrics(registry)

	var events port.EventPublisher = messaging.LogPublisher{}
	kafkaClient := messaging.NewClient(cfg.Kafka.Brokers)
	if kafkaClient.Enabled() {
		publisher := messaging.NewKafkaPublisher(kafkaClient, cfg.Kafka.OrdersTopic, cfg.Kafka.AlertsTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close kafka writers", err)
			}
		}()
		events = publisher
		logger.Info("publishing events to kafka brokers %v", kafkaClient.Brokers)
	}

	followUps := service.NewFollowUpDispatcher(b.profiles, events, cfg.Checkout.FollowUpQueueSize)
	followUps.Start(cfg.Checkout.FollowUpWorkers)

	checkout := service.NewCheckoutService(service.Dependencies{
		Stores:         b.stores,
		Products:       b.products,
		Ledger:         b.ledger,
		Orders:         b.orders,
		Carts:          b.carts,
		Cache:          b.cache,
		Events:         events,
		Reconciliation: b.recon,
		FollowUps:      followUps,
		Metrics:        m,
	}, service.CheckoutConfig{
		BaseETAMinutes: cfg.Checkout.BaseETAMinutes,
		MinutesPerKm:   cfg.Checkout.MinutesPerKm,
	})

	reconciler := service.NewReconciler(b.recon, b.ledger, m)
	if err := reconciler.Start(cfg.Reconcile.Schedule); err != nil {
		fatal("failed to start reconciler", err)
	}

	auth := handler.NewAuthenticator(cfg.Auth.JWTSecret)

	grpcServer := grpc.NewServer()
	handler.RegisterCheckoutServer(grpcServer, handler.NewGRPCHandler(checkout, auth))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		fatal("failed to listen", err)
	}
	go func() {
		logger.Info("gRPC server listening on %s", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(checkout, reconciler, auth, m), registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	reconciler.Stop()
	followUps.Close()
	logger.Info("workers stopped")
}

func openStorage(ctx context.Context, cfg config.Config) (*backends, error) {
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Storage.ConnMaxLifetime)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		logger.Info("connected to mysql")

		a := storage.NewMySQLAdapter(db)
		return &backends{
			stores: a, products: a, ledger: a, snapshot: a,
			orders: a, carts: a, profiles: a,
			closers: []func(){func() { db.Close() }},
		}, nil

	case config.StoragePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Storage.MaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.Storage.ConnMaxLifetime
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		a := storage.NewPostgresAdapter(pool)
		return &backends{
			stores: a, products: a, ledger: a, snapshot: a,
			orders: a, carts: a, profiles: a,
			closers: []func(){pool.Close},
		}, nil

	default:
		mem := storage.NewMemoryAdapter()
		if cfg.SeedFile != "" {
			if err := seedMemory(ctx, mem, cfg.SeedFile); err != nil {
				return nil, err
			}
		} else {
			logger.Warn("memory storage started without SEED_FILE, the catalog is empty")
		}
		return &backends{
			stores: mem, products: mem, ledger: mem, snapshot: mem,
			orders: mem, carts: mem, profiles: mem, cache: mem, recon: mem,
		}, nil
	}
}

func seedMemory(ctx context.Context, mem *storage.MemoryAdapter, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	for _, s := range seed.DomainStores(now) {
		mem.PutStore(s)
	}
	products, err := seed.DomainProducts(now)
	if err != nil {
		return err
	}
	for _, p := range products {
		mem.PutProduct(p)
	}
	prices, err := seed.DomainStorePrices()
	if err != nil {
		return err
	}
	for _, sp := range prices {
		mem.PutStorePrice(sp)
	}
	for _, inv := range seed.DomainInventory(now) {
		if err := mem.SetStock(ctx, inv.StoreID, inv.ProductID, inv.Quantity); err != nil {
			return fmt.Errorf("seed stock %s/%s: %w", inv.StoreID, inv.ProductID, err)
		}
	}

	logger.Info("seeded %d stores, %d products, %d inventory records from %s",
		len(seed.Stores), len(products), len(seed.Inventory), path)
	return nil
}

// attachRedis moves idempotency and the reconciliation log to Redis. With the
// redis ledger driver, stock missing from Redis is copied from storage and
// every decrement happens there from then on.
func attachRedis(ctx context.Context, cfg config.Config, b *backends) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return err
	}
	logger.Info("connected to redis")
	b.closers = append(b.closers, func() { rdb.Close() })

	r := storage.NewRedisAdapter(rdb).WithIdempotencyTTL(cfg.Redis.IdempotencyTTL)
	b.cache, b.recon = r, r

	if cfg.Ledger.Driver == config.LedgerRedis {
		loaded, skipped, err := r.LoadStock(ctx, b.snapshot)
		if err != nil {
			return fmt.Errorf("load stock into redis: %w", err)
		}
		b.ledger = r
		logger.Info("loaded %d inventory records into the redis ledger, kept %d existing keys", loaded, skipped)
	}
	return nil
}

func fatal(msg string, err error) {
	logger.Critical(msg, err)
	os.Exit(1)
}
