// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/pricelens/pricelens/internal/cache"
	"github.com/pricelens/pricelens/internal/database"
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

// Container holds all initialized dependencies, built in stages by Wire:
// databases, then repositories, then services.
type Container struct {
	// Databases
	CatalogDB *database.DB
	KVDB      *database.DB // nil when the external K/V tier is disabled

	// Repositories
	PlatformRepo *products.PlatformRepository
	ProductRepo  *products.ProductRepository

	// Monitoring
	DBMonitor     *monitoring.DatabaseMonitor
	CacheMonitor  *monitoring.CacheMonitor
	SystemMonitor *monitoring.SystemMonitor
	APIMonitor    *monitoring.APIUsageMonitor
	AlertManager  *monitoring.AlertManager
	Monitors      *monitoring.Collector

	// Core services
	Cache       *cache.Manager
	Catalog     *catalog.Catalog
	Embedder    embedding.Embedder
	Index       *embedding.Index
	Planner     *planner.Planner
	Executor    *executor.Executor
	Results     *results.Processor
	Queries     *queries.Service
	Comparison  *products.ComparisonService
	Trends      *products.TrendService
	Deals       *deals.Service
	Engine      *pricing.Engine
	Broadcaster *events.Broadcaster
}

// Close releases the database handles.
func (c *Container) Close() {
	if c.Broadcaster != nil {
		c.Broadcaster.Close()
	}
	if c.KVDB != nil {
		c.KVDB.Close()
	}
	if c.CatalogDB != nil {
		c.CatalogDB.Close()
	}
}
