package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"homedash/internal/api"
	"homedash/internal/bus"
	"homedash/internal/cache"
	"homedash/internal/calendar"
	"homedash/internal/config"
	"homedash/internal/imagefeed"
	"homedash/internal/observability/metrics"
	"homedash/internal/orchestrator"
	"homedash/internal/plugins/embed"
	"homedash/internal/plugins/ical"
	"homedash/internal/plugins/jsonapi"
	"homedash/internal/plugins/localimage"
	"homedash/internal/plugins/mailbox"
	"homedash/internal/store"
	"homedash/internal/store/mysql"
	"homedash/pkg/logger"
	"homedash/pkg/plugin"
)

// main is the entry point of the dashboard daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("homedashd failed: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("HOMEDASH_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "homedash.json")
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pluginStore, err := createStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = pluginStore.Close() }()

	eventCache, err := createCache(ctx, cfg)
	if err != nil {
		return err
	}

	eventBus, err := createBus(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eventBus.Close() }()

	collector := metrics.NewCollector()

	// All known plugin providers. Adding a provider here is the only
	// step needed to make its types discoverable.
	registry := plugin.NewRegistry(logger.Named("discovery"),
		ical.NewProvider(nil),
		localimage.NewProvider(nil),
		mailbox.NewProvider(nil),
		embed.NewProvider(),
		jsonapi.NewProvider(nil),
	)
	runtime := plugin.NewRuntime(logger.Named("runtime"))

	orch := orchestrator.New(registry, runtime, pluginStore,
		orchestrator.WithBus(eventBus),
		orchestrator.WithMetrics(collector),
	)

	if err := orch.Reconcile(ctx); err != nil {
		return err
	}

	if cfg.Seed.Path != "" {
		seed, err := plugin.LoadSeedConfig(cfg.Seed.Path)
		if err != nil {
			return err
		}
		orch.SeedInstances(ctx, seed)
	}

	runtime.InitAll(ctx)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runtime.CleanupAll(cleanupCtx)
	}()

	calendarSvc := calendar.New(runtime, eventCache,
		calendar.WithTTL(time.Duration(cfg.Calendar.CacheTTLSeconds)*time.Second),
		calendar.WithFetchTimeout(time.Duration(cfg.Calendar.FetchTimeoutSeconds)*time.Second),
		calendar.WithMetrics(collector),
	)
	imageSvc := imagefeed.New(runtime,
		imagefeed.WithMetrics(collector),
		imagefeed.WithBus(eventBus),
	)

	server := api.NewServer(cfg.Server.Address, orch, runtime, calendarSvc, imageSvc, collector.Handler())

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "mysql":
		return mysql.New(ctx, mysql.Config{
			DSN:          cfg.Storage.DSN,
			MaxOpenConns: cfg.Storage.MaxOpenConns,
			MaxIdleConns: cfg.Storage.MaxIdleConns,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

func createCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case "", "memory":
		return cache.NewMemory(cfg.Cache.MaxEntries), nil
	case "redis":
		return cache.NewRedis(ctx, cache.RedisConfig{
			Address:  cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPass,
			DB:       cfg.Cache.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Cache.Driver)
	}
}

func createBus(cfg *config.Config) (bus.Bus, error) {
	switch cfg.Bus.Driver {
	case "", "memory":
		return bus.NewMemory(), nil
	case "rabbitmq":
		return bus.NewRabbitMQ(bus.RabbitMQConfig{URL: cfg.Bus.URL})
	default:
		return nil, fmt.Errorf("unknown bus driver: %s", cfg.Bus.Driver)
	}
}
