package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/config"
	"github.com/ravitejakamalapuram/copytradepro/internal/database"
)

// InitializeDatabases opens both databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// accounts.db - Linked broker accounts. Losing this means relinking
	// every account, so it gets the standard durability profile.
	accountsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "accounts.db"),
		Profile: database.ProfileStandard,
		Name:    "accounts",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize accounts database: %w", err)
	}
	container.AccountsDB = accountsDB

	// orders_cache.db - Order history cache. The broker holds the
	// authoritative copy, so the cache profile trades safety for speed.
	ordersCacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "orders_cache.db"),
		Profile: database.ProfileCache,
		Name:    "orders_cache",
	})
	if err != nil {
		accountsDB.Close()
		return nil, fmt.Errorf("failed to initialize orders cache database: %w", err)
	}
	container.OrdersCacheDB = ordersCacheDB

	for _, db := range []*database.DB{accountsDB, ordersCacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Msg("Databases initialized")

	return container, nil
}
