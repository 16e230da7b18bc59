package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/cache"
	"github.com/pricelens/pricelens/internal/config"
	"github.com/pricelens/pricelens/internal/events"
	"github.com/pricelens/pricelens/internal/modules/catalog"
	"github.com/pricelens/pricelens/internal/modules/deals"
	"github.com/pricelens/pricelens/internal/modules/embedding"
	"github.com/pricelens/pricelens/internal/modules/executor"
	"github.com/pricelens/pricelens/internal/modules/planner"
	"github.com/pricelens/pricelens/internal/modules/pricing"
	"github.com/pricelens/pricelens/internal/modules/products"
	"github.com/pricelens/pricelens/internal/modules/queries"
	"github.com/pricelens/pricelens/internal/modules/results"
	"github.com/pricelens/pricelens/internal/monitoring"
)

// InitializeRepositories constructs the repository layer.
func InitializeRepositories(c *Container, log zerolog.Logger) error {
	c.PlatformRepo = products.NewPlatformRepository(c.CatalogDB, log)
	c.ProductRepo = products.NewProductRepository(c.CatalogDB, log)
	return nil
}

// InitializeServices constructs monitors, the cache, and every domain
// service, then hooks the monitors into the database and cache layers.
func InitializeServices(c *Container, cfg *config.Config, log zerolog.Logger) error {
	// Monitoring first so the persistence hooks observe everything below
	c.DBMonitor = monitoring.NewDatabaseMonitor(
		cfg.Monitor.QueryBufferSize,
		cfg.Monitor.SlowBufferSize,
		cfg.Monitor.SlowQueryThreshold,
		log,
	)
	c.CatalogDB.SetObserver(c.DBMonitor)

	c.CacheMonitor = monitoring.NewCacheMonitor()
	c.SystemMonitor = monitoring.NewSystemMonitor(cfg.Monitor.HistorySize, cfg.DataDir, log)
	c.APIMonitor = monitoring.NewAPIUsageMonitor()

	c.Broadcaster = events.NewBroadcaster(log)
	c.AlertManager = monitoring.NewAlertManager(c.DBMonitor, c.CacheMonitor, c.Broadcaster, log)
	c.Monitors = &monitoring.Collector{
		DB:     c.DBMonitor,
		Cache:  c.CacheMonitor,
		System: c.SystemMonitor,
		API:    c.APIMonitor,
		Alerts: c.AlertManager,
	}

	var kvStore *cache.KVStore
	if c.KVDB != nil {
		kvStore = cache.NewKVStore(c.KVDB)
	}
	c.Cache = cache.NewManager(kvStore, cache.Options{
		MaxEntries:    cfg.Cache.MaxEntries,
		MaxValueBytes: cfg.Cache.MaxValueBytes,
		DefaultTTL:    cfg.Cache.TTL,
	}, log)
	c.Cache.SetMonitor(c.CacheMonitor)

	// Schema catalogue and the embedding index over it
	c.Catalog = catalog.New(c.CatalogDB, log)
	if err := c.Catalog.Refresh(context.Background()); err != nil {
		return fmt.Errorf("failed to introspect catalog schema: %w", err)
	}

	switch cfg.Embedding.Provider {
	case "http":
		c.Embedder = embedding.NewHTTPEmbedder(cfg.Embedding.Endpoint, cfg.Embedding.APIKey, cfg.Embedding.Dimension)
	default:
		c.Embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	}

	store := embedding.NewStore(cfg.Embedding.CacheDir)
	c.Index = embedding.NewIndex(c.Catalog, c.Embedder, store, c.Cache, cfg.Embedding.Staleness, log)
	if err := c.Index.EnsureBuilt(context.Background()); err != nil {
		return fmt.Errorf("failed to build embedding index: %w", err)
	}

	// Query pipeline
	c.Planner = planner.New(c.Catalog, c.Cache, log)
	c.Executor = executor.New(c.CatalogDB, c.Catalog, c.Planner, log)
	c.Results = results.NewProcessor(c.Cache, log)
	c.Queries = queries.NewService(c.CatalogDB, c.Index, c.Executor, c.Results, log)

	// Domain services
	c.Comparison = products.NewComparisonService(c.CatalogDB, log)
	c.Trends = products.NewTrendService(c.CatalogDB, log)
	c.Deals = deals.NewService(c.CatalogDB, log)

	if cfg.Engine.Enabled {
		c.Engine = pricing.NewEngine(c.CatalogDB, &cfg.Engine, c.Broadcaster, log)
	}

	return nil
}
