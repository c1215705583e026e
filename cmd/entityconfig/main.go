// Package main is the entry point for the entity configuration server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/internal/activity"
	"github.com/pitabwire/entityconfig/internal/apidoc"
	"github.com/pitabwire/entityconfig/internal/capability"
	"github.com/pitabwire/entityconfig/internal/chain"
	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/definition"
	"github.com/pitabwire/entityconfig/internal/entityconfig"
	"github.com/pitabwire/entityconfig/internal/getconfig"
	"github.com/pitabwire/entityconfig/internal/importexport"
	"github.com/pitabwire/entityconfig/internal/observability"
	"github.com/pitabwire/entityconfig/internal/provider"
	"github.com/pitabwire/entityconfig/internal/store"
	"github.com/pitabwire/entityconfig/internal/transport"
	"github.com/pitabwire/entityconfig/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

const serviceName = "entityconfig"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, serviceName, version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Entity definitions.
	defs, err := loadDefinitions(cfg.Definitions, logger)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	registry := definition.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(registry.Count())

	manager, err := entityconfig.NewManager(registry, cfg.Definitions.Scopes)
	if err != nil {
		logger.Error("entity config manager initialization failed", zap.Error(err))
		return 1
	}

	// Field config store.
	fieldStore, storeCloser, err := buildFieldStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("field store initialization failed", zap.Error(err))
		return 1
	}
	if storeCloser != nil {
		defer storeCloser()
	}
	if cfg.Store.SeedDefinitions {
		n, err := store.Seed(ctx, fieldStore, defs)
		if err != nil {
			logger.Error("field store seeding failed", zap.Error(err))
			return 1
		}
		logger.Info("field store seeded", zap.Int("fields", n))
	}

	// Config resolution.
	cache, cacheCloser, err := buildConfigCache(ctx, cfg.Cache, logger)
	if err != nil {
		logger.Error("config cache initialization failed", zap.Error(err))
		return 1
	}
	if cacheCloser != nil {
		defer cacheCloser()
	}

	processor, err := getconfig.NewProcessor(registry, chain.WithLogger(logger), chain.WithObserver(metrics))
	if err != nil {
		logger.Error("get-config processor initialization failed", zap.Error(err))
		return 1
	}
	configs := provider.New(processor,
		provider.WithCache(cache),
		provider.WithLogger(logger),
		provider.WithObserver(metrics),
	)

	// Authorization.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy initialization failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL, cfg.Capability.Cache.MaxEntries, metrics)

	// Field import/export.
	normalizer := importexport.NewFieldNormalizer(manager, entityconfig.NewFieldTypeProvider(cfg.FieldTypes), fieldStore)
	exporter := importexport.NewExporter(
		map[string]importexport.Query{model.FieldConfigModelClass: importexport.FieldQuery(fieldStore)},
		normalizer, cfg.ImportExport.BatchSize, logger, metrics,
	)
	importer := importexport.NewImporter(normalizer, fieldStore, logger, metrics)

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		PolicyEngine:      evaluator,
	}
	if hc, ok := cache.(observability.HealthChecker); ok {
		readiness.ConfigCache = hc
	}
	if hc, ok := fieldStore.(observability.HealthChecker); ok {
		readiness.FieldStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authenticate:       transport.Authenticator(cfg.Identity, logger),
		CapabilityResolver: capResolver,
		Metrics:            metrics,
		Readiness:          readiness,
		Configs:            configs,
		Docs:               apidoc.NewBuilder(configs, registry, "Entity API", logger),
		Activities:         activity.NewRegistry(manager, activity.NewNoteProvider()),
		Exporter:           exporter,
		Importer:           importer,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Definitions.HotReload {
		reloader := &reloader{
			cfg:       cfg.Definitions,
			registry:  registry,
			configs:   configs,
			evaluator: evaluator,
			resolver:  capResolver,
			metrics:   metrics,
			logger:    logger,
		}
		go reloader.run(ctx)
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", registry.Count()),
		zap.String("cache", cache.Name()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// loadDefinitions reads and validates every definition file.
func loadDefinitions(cfg config.DefinitionsConfig, logger *zap.Logger) ([]model.EntityDefinition, error) {
	defs, err := definition.NewLoader().LoadAll(cfg.Directories)
	if err != nil {
		return nil, err
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		return nil, fmt.Errorf("%d definition validation errors", len(verrs))
	}
	return defs, nil
}

// buildFieldStore creates the field store selected by cfg. The returned
// closer is nil for the in-memory store.
func buildFieldStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.FieldStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory field store")
		return store.NewMemoryFieldStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("field store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("field store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = cfg.MaxConns
		poolCfg.MinConns = cfg.MinConns
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("field store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("field store: ping: %w", err)
		}

		if cfg.Migrate {
			v, err := store.Migrate(pool)
			if err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("field store: %w", err)
			}
			logger.Info("field store migrated", zap.Uint("version", v))
		}
		return store.NewPgFieldStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported field store driver: %q", cfg.Driver)
	}
}

// buildConfigCache creates the config cache selected by cfg.
func buildConfigCache(ctx context.Context, cfg config.ConfigCacheConfig, logger *zap.Logger) (provider.Cache, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		return provider.NewMemoryCache(), nil, nil
	case "lru":
		c, err := provider.NewLRUCache(cfg.MaxEntries)
		if err != nil {
			return nil, nil, fmt.Errorf("config cache: %w", err)
		}
		return c, nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("config cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		c := provider.NewRedisCache(client, cfg.KeyPrefix, cfg.TTL)
		if err := c.HealthCheck(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("config cache: ping %s: %w", addr, err)
		}
		logger.Info("using redis config cache", zap.String("addr", addr), zap.Int("db", cfg.DB))
		return c, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported config cache driver: %q", cfg.Driver)
	}
}

// reloader reloads definitions and the capability policy on SIGHUP.
type reloader struct {
	cfg       config.DefinitionsConfig
	registry  *definition.Registry
	configs   *provider.Provider
	evaluator *capability.StaticPolicyEvaluator
	resolver  *capability.Resolver
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func (r *reloader) run(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			r.reload(ctx)
		}
	}
}

// reload keeps the current definitions when the new set fails to load.
func (r *reloader) reload(ctx context.Context) {
	defs, err := loadDefinitions(r.cfg, r.logger)
	if err != nil {
		r.metrics.RecordDefinitionReload("failed", 0)
		r.logger.Error("definition reload failed, keeping current definitions", zap.Error(err))
		return
	}

	previous := r.registry.Checksum()
	r.registry.Replace(defs)

	if err := r.configs.Reset(ctx); err != nil {
		r.logger.Error("config cache reset failed", zap.Error(err))
	}
	if err := r.evaluator.Sync(); err != nil {
		r.logger.Error("capability policy reload failed", zap.Error(err))
	} else {
		r.resolver.InvalidateAll()
	}

	r.metrics.RecordDefinitionReload("ok", r.registry.Count())
	r.logger.Info("definitions reloaded",
		zap.Int("definitions", r.registry.Count()),
		zap.String("previous_checksum", previous),
		zap.String("checksum", r.registry.Checksum()),
	)
}
