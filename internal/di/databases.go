package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/config"
	"github.com/pricelens/pricelens/internal/database"
)

// InitializeDatabases opens the catalog and K/V databases, applies the
// schemas, and seeds the catalog when it is empty.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	pool := database.PoolConfig{
		PoolSize:       cfg.Database.PoolSize,
		MaxOverflow:    cfg.Database.MaxOverflow,
		AcquireTimeout: cfg.Database.AcquireTimeout,
		Recycle:        cfg.Database.Recycle,
	}

	catalogDB, err := database.New(database.Config{
		Path:    cfg.Database.CatalogPath,
		Profile: database.ProfileStandard,
		Name:    "catalog",
		Pool:    pool,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if err := catalogDB.Migrate(); err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to migrate catalog database: %w", err)
	}
	if err := database.Seed(catalogDB, log); err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to seed catalog database: %w", err)
	}

	container := &Container{CatalogDB: catalogDB}

	if cfg.Cache.KVEnabled {
		kvDB, err := database.New(database.Config{
			Path:    cfg.Database.KVPath,
			Profile: database.ProfileCache,
			Name:    "kv",
			Pool:    pool,
		})
		if err != nil {
			// The cache tier is optional, degrade rather than fail startup
			log.Warn().Err(err).Msg("K/V database unavailable, using in-process cache only")
		} else if err := kvDB.Migrate(); err != nil {
			log.Warn().Err(err).Msg("K/V migration failed, using in-process cache only")
			kvDB.Close()
		} else {
			container.KVDB = kvDB
		}
	}

	return container, nil
}
