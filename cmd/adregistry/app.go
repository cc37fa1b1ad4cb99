package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/adregistry/adagents"
	"github.com/BaSui01/adregistry/capability"
	"github.com/BaSui01/adregistry/config"
	"github.com/BaSui01/adregistry/crawler"
	"github.com/BaSui01/adregistry/index"
	"github.com/BaSui01/adregistry/internal/cache"
	"github.com/BaSui01/adregistry/internal/database"
	"github.com/BaSui01/adregistry/internal/metrics"
	"github.com/BaSui01/adregistry/internal/migration"
	"github.com/BaSui01/adregistry/internal/server"
	"github.com/BaSui01/adregistry/internal/telemetry"
	"github.com/BaSui01/adregistry/members"
	"github.com/BaSui01/adregistry/protocol"
	"github.com/BaSui01/adregistry/protocol/a2a"
	"github.com/BaSui01/adregistry/protocol/mcp"
	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/types"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有一次进程生命周期内的全部组件
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	otel     *telemetry.Providers
	pool     *database.PoolManager
	cache    *cache.Manager
	members  *members.FileDirectory
	index    *index.Service
	crawler  *crawler.Service
	closeFns []func() error
}

// newApp 按配置装配存储、能力发现、抓取器与爬虫
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.otel, err = telemetry.Init(cfg.Telemetry, logger, telemetry.WithServiceVersion(Version))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.otel = nil
		err = nil
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewCollectorWith(a.registry, "adregistry", logger)

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	a.members, err = members.NewFileDirectory(cfg.Members.File, logger)
	if err != nil {
		return nil, err
	}

	a.index = index.NewService(st, a.members,
		index.Config{DiscoveredTTL: cfg.Crawler.DiscoveredTTL},
		logger, index.WithMetrics(a.metrics))

	dialer := protocol.NewMultiDialer().
		Register(types.ProtocolMCP, mcp.NewConnector(mcp.Config{
			Timeout:   cfg.Crawler.ProbeTimeout,
			UserAgent: cfg.Crawler.UserAgent,
		}, logger)).
		Register(types.ProtocolA2A, a2a.NewConnector(a2a.Config{
			Timeout:   cfg.Crawler.ProbeTimeout,
			UserAgent: cfg.Crawler.UserAgent,
		}, logger))

	capOpts := []capability.Option{capability.WithMetrics(a.metrics)}
	if cfg.Capability.CacheBackend == "redis" {
		a.cache, err = cache.NewManager(cache.Config{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			KeyPrefix:           cfg.Redis.KeyPrefix,
			DefaultTTL:          cfg.Capability.CacheTTL,
			MaxRetries:          cache.DefaultConfig().MaxRetries,
			PoolSize:            cfg.Redis.PoolSize,
			MinIdleConns:        cfg.Redis.MinIdleConns,
			TLSEnabled:          cfg.Redis.TLSEnabled,
			HealthCheckInterval: cache.DefaultConfig().HealthCheckInterval,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.closeFns = append(a.closeFns, a.cache.Close)
		capOpts = append(capOpts, capability.WithCache(
			capability.NewRedisCache(a.cache, cfg.Capability.CacheTTL, logger)))
	}
	capabilities := capability.NewService(dialer,
		capability.Config{CacheTTL: cfg.Capability.CacheTTL}, logger, capOpts...)

	fetcher := adagents.NewHTTPFetcher(adagents.Config{
		Timeout:           cfg.Crawler.FetchTimeout,
		RequestsPerSecond: cfg.Crawler.FetchRPS,
		Burst:             cfg.Crawler.FetchBurst,
		MaxRetries:        cfg.Crawler.FetchRetries,
		UserAgent:         cfg.Crawler.UserAgent,
	}, logger, adagents.WithMetrics(a.metrics))

	var claims crawler.ClaimFetcher
	if cfg.Crawler.CollectClaims {
		claims = crawler.NewProtocolClaimFetcher(dialer)
	}

	a.crawler = crawler.NewService(a.index, a.members, fetcher, claims, capabilities,
		crawler.Config{
			Concurrency:     cfg.Crawler.Concurrency,
			ProbeTimeout:    cfg.Crawler.ProbeTimeout,
			Interval:        cfg.Crawler.Interval,
			CleanupInterval: cfg.Crawler.CleanupInterval,
		},
		logger, crawler.WithMetrics(a.metrics))

	return a, nil
}

// openStore 选择内存或 GORM 存储，按需执行迁移
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	dbCfg := a.cfg.Database
	if dbCfg.Driver == "memory" {
		a.logger.Warn("using in-memory store, discovered data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	if dbCfg.AutoMigrate {
		version, err := migration.ApplyAll(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		a.logger.Info("database schema up to date", zap.Uint("version", version))
	}

	db, err := database.Open(dbCfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.pool, err = database.NewPoolManager(db, database.PoolConfigFrom(dbCfg), a.logger,
		database.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.closeFns = append(a.closeFns, a.pool.Close)
	return store.NewGormStore(db, a.logger), nil
}

// healthHandler 注册依赖检查与爬取状态
func (a *app) healthHandler() *server.HealthHandler {
	h := server.NewHealthHandler(Version, a.logger)
	if a.pool != nil {
		h.RegisterCheck(server.NewCheck("database", a.pool.Ping))
	}
	if a.cache != nil {
		h.RegisterCheck(server.NewCheck("redis", a.cache.Ping))
	}
	h.RegisterInfo("crawler", func() any {
		return map[string]any{
			"crawling":       a.crawler.IsCrawling(),
			"last_result":    a.crawler.LastResult(),
			"last_completed": a.crawler.LastCompleted(),
		}
	})
	return h
}

// Close 按装配的逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		if err := a.closeFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeFns = nil
	if err := a.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
