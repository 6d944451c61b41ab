package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"domovik/internal/api"
	"domovik/internal/cache"
	"domovik/internal/config"
	"domovik/internal/connectivity"
	"domovik/internal/events"
	"domovik/internal/logging"
	"domovik/internal/metrics"
	"domovik/internal/orchestrator"
	"domovik/internal/queue"
	"domovik/internal/remote"
	"domovik/internal/report"
	"domovik/internal/scheduler"
	"domovik/internal/service"
	"domovik/internal/store"
	"domovik/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := initStore(cfg, logger)
	defer st.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewBus()
	q := queue.NewManager(st, logging.WithComponent(logger, "queue"))

	remoteClient := remote.NewClient(
		cfg.Remote.BaseURL, cfg.Remote.HouseholdID, cfg.Remote.Token,
		cfg.Remote.Timeout.Std(), logging.WithComponent(logger, "remote"),
	)

	monitor := connectivity.NewMonitor(
		connectivity.ProberFunc(remoteClient.Health),
		cfg.Sync.ProbeInterval.Std(), bus, logging.WithComponent(logger, "connectivity"),
	)
	go monitor.Start(ctx)

	// Без Redis фоновая синхронизация недоступна: мутации копятся в
	// очереди до следующего запуска с Redis
	var sched scheduler.JobScheduler
	var jobs *scheduler.RedisJobScheduler
	if redisClient != nil {
		jobs = scheduler.NewRedisJobScheduler(redisClient, scheduler.DefaultJobQueueKey)
		sched = jobs
	} else {
		logger.Warn().Msg("redis not configured, sync triggers are unsupported")
	}

	orch := orchestrator.New(q, sched, bus, cfg.Sync.SettleDelay.Std(), logging.WithComponent(logger, "orchestrator"))
	orch.Bind(bus)

	replayWorker := worker.NewReplayWorker(st, remoteClient, jobs, redisClient, worker.Settings{
		Retry:        worker.PolicyFromConfig(cfg.Sync.Retry),
		BatchSize:    cfg.Sync.BatchSize,
		PollInterval: cfg.Sync.PollInterval.Std(),
	}, logging.WithComponent(logger, "worker"))
	go replayWorker.Start(ctx)

	svc := service.NewOfflineService(
		q, initCache(cfg, st, redisClient, logger), orch, monitor,
		cfg.Cache.DefaultTTL.Std(), logging.WithComponent(logger, "service"),
	)

	if cfg.API.Enabled {
		exporter := report.NewExporter(q, cfg.Exports.Path, logging.WithComponent(logger, "report"))
		apiServer := api.NewHTTPServer(cfg.API, svc, exporter, logging.WithComponent(logger, "api"))
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(cfg.Monitoring.PrometheusPort, logger)
	}

	if cfg.Backup.Enabled {
		backupService := store.NewBackupService(cfg.Store.Path, store.BackupConfig{
			Enabled:       cfg.Backup.Enabled,
			Schedule:      cfg.Backup.Schedule,
			RetentionDays: cfg.Backup.RetentionDays,
			StoragePath:   cfg.Backup.StoragePath,
		}, logging.WithComponent(logger, "backup"))
		go backupService.Start(ctx)
	}

	logger.Info().Msg("sync daemon started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create store directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create export directory")
		return err
	}
	return nil
}

// initStore opens the durable SQLite store, degrading to process memory when
// the file cannot be opened. Queued mutations then live only until restart,
// which still beats refusing to start at all.
func initStore(cfg *config.Config, logger *zerolog.Logger) store.Store {
	st := store.NewSQLiteStore(cfg.Store.Path, logging.WithComponent(logger, "store"))
	if err := st.Open(); err != nil {
		logger.Error().Err(err).Str("path", cfg.Store.Path).Msg("local store unavailable, using in-memory store")
		return store.NewMemoryStore()
	}
	return st
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := cache.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}
	return client
}

// initCache layers the fast Redis cache over the durable store-backed one.
func initCache(cfg *config.Config, st store.Store, redisClient *redis.Client, logger *zerolog.Logger) cache.Cache {
	local := cache.NewStoreCache(st)
	if redisClient == nil {
		return local
	}

	primary := cache.NewRedisCache(redisClient, cfg.Cache.Retention.Std())
	return cache.NewFailoverCache(primary, local, logging.WithComponent(logger, "cache"))
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
