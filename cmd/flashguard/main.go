// Command flashguard serves the cached resource read path and the flash-sale
// reservation path, and runs the order worker in the same process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/cache"
	gen "github.com/unkn0wn-root/flashguard/genstore"
	asynchook "github.com/unkn0wn-root/flashguard/hooks/async"
	promhooks "github.com/unkn0wn-root/flashguard/hooks/prom"
	"github.com/unkn0wn-root/flashguard/idgen"
	"github.com/unkn0wn-root/flashguard/internal/httpapi"
	"github.com/unkn0wn-root/flashguard/lock"
	zlog "github.com/unkn0wn-root/flashguard/log/zap"
	"github.com/unkn0wn-root/flashguard/notify/kafka"
	"github.com/unkn0wn-root/flashguard/seckill"
	"github.com/unkn0wn-root/flashguard/storage"
	"github.com/unkn0wn-root/flashguard/storage/memory"
	"github.com/unkn0wn-root/flashguard/storage/postgres"
	"github.com/unkn0wn-root/flashguard/storage/postgres/migrations"
)

func main() {
	cfg, warnings := loadConfig()

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flashguard: LOG_LEVEL: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = zl.Sync() }()
	for _, w := range warnings {
		zl.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("flashguard stopped", zap.Error(err))
		os.Exit(1)
	}
	zl.Info("flashguard stopped")
}

func run(ctx context.Context, cfg config, zl *zap.Logger) error {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(startupCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	store, pool, err := openStore(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	prom, err := promhooks.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	hooks := asynchook.New(prom, 2, 4096)
	defer hooks.Close()

	locker, err := lock.NewRedis(rdb)
	if err != nil {
		return err
	}

	// cache
	provider, err := newProvider(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	codec, err := newCodec(cfg.CacheCodec)
	if err != nil {
		return err
	}
	strategy, err := parseStrategy(cfg.CacheStrategy)
	if err != nil {
		return err
	}
	gens, err := gen.NewRedis(rdb, 2*cfg.CacheTTL+time.Hour)
	if err != nil {
		return err
	}
	resources, err := cache.New[storage.Resource](cache.Options[storage.Resource]{
		Namespace:  "resource",
		Provider:   provider,
		Locker:     locker,
		Strategy:   strategy,
		Codec:      codec,
		GenStore:   gens,
		Logger:     zlog.New(zl, "cache"),
		Hooks:      hooks,
		DefaultTTL: cfg.CacheTTL,
		NullTTL:    cfg.CacheNullTTL,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := resources.Close(closeCtx); err != nil {
			zl.Warn("cache close", zap.Error(err))
		}
	}()

	// admission
	admitter, err := seckill.NewRedisAdmitter(rdb, seckill.DefaultStream)
	if err != nil {
		return err
	}
	ids, err := idgen.NewRedis(rdb)
	if err != nil {
		return err
	}
	svc, err := seckill.NewService(seckill.ServiceOptions{
		Admitter: admitter,
		IDs:      ids,
		Logger:   zlog.New(zl, "seckill"),
		Hooks:    hooks,
	})
	if err != nil {
		return err
	}
	if err := publish(startupCtx, cfg, store, svc, resources, zl); err != nil {
		return err
	}

	// worker
	queue, err := seckill.NewRedisQueue(rdb, seckill.QueueConfig{Consumer: cfg.Consumer})
	if err != nil {
		return err
	}
	if err := queue.EnsureGroup(startupCtx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	wopts := seckill.WorkerOptions{
		Queue:  queue,
		Store:  store,
		Locker: locker,
		Logger: zlog.New(zl, "worker"),
		Hooks:  hooks,
	}
	if len(cfg.KafkaBrokers) > 0 {
		n, err := kafka.New(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return err
		}
		defer func() { _ = n.Close() }()
		wopts.Notifier = n
	}
	worker, err := seckill.NewWorker(wopts)
	if err != nil {
		return err
	}

	// http
	api, err := httpapi.New(httpapi.Config{
		Cache:     resources,
		Resources: store,
		Reserver:  svc,
		Logger:    zlog.New(zl, "http"),
		TTL:       cfg.CacheTTL,
		Health: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			if pool != nil {
				return pool.Ping(ctx)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	api.Router().Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	wg.Add(1)
	go func() {
		defer wg.Done()
		zl.Info("worker started", zap.String("consumer", queue.Consumer()))
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- fmt.Errorf("worker: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		zl.Info("http listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case runErr = <-errc:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zl.Warn("http shutdown", zap.Error(err))
	}
	stopWorker()
	wg.Wait()
	return runErr
}

func openStore(ctx context.Context, dsn string) (durable, *pgxpool.Pool, error) {
	if dsn == memoryDSN {
		return memory.New(), nil, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.New(pool), pool, nil
}

// publish seeds admission stock for the configured resources that have no
// running sale and pre-warms their cache entries.
func publish(ctx context.Context, cfg config, store durable, svc *seckill.Service, cl *cache.Client[storage.Resource], zl *zap.Logger) error {
	load := resourceLoader(store)
	for _, id := range cfg.Publish {
		st, ok, err := store.GetStock(ctx, id)
		if err != nil {
			return fmt.Errorf("load stock %d: %w", id, err)
		}
		if !ok {
			zl.Warn("no durable stock, not published", zap.Int64("resource_id", id))
			continue
		}
		seeded, err := svc.Publish(ctx, st)
		if err != nil {
			return err
		}
		if seeded {
			zl.Info("stock published", zap.Int64("resource_id", id), zap.Int("remaining", st.Remaining))
		} else {
			zl.Info("sale already running, stock not republished", zap.Int64("resource_id", id))
		}

		if cl.Strategy() != cache.StrategyLogicalExpire {
			continue
		}
		err = cl.Rebuild(ctx, strconv.FormatInt(id, 10), load, cfg.CacheTTL)
		if err != nil && !errors.Is(err, flashguard.ErrLockContention) {
			zl.Warn("cache pre-warm failed", zap.Int64("resource_id", id), zap.Error(err))
		}
	}
	return nil
}
