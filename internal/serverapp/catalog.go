package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"showcatalog/internal/catalog"
	"showcatalog/internal/config"
	"showcatalog/internal/logging"
	"showcatalog/internal/store"
)

// prepareStore creates the table when auto_migrate is set.
func prepareStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, st *store.Store) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if err := st.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to create catalog table: %w", err)
	}
	logger.Info("catalog table ensured", slog.String("table", cfg.Database.TableName()))
	return nil
}

// OpenCatalog connects to the configured database and returns the catalog
// service without the HTTP surface. The returned close func releases the
// connection pool.
func OpenCatalog(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...catalog.Option) (*catalog.Service, func() error, error) {
	effectiveDatabase, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	db, dbStatsReg, err := connectDB(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeDB := func() error {
		if dbStatsReg != nil {
			_ = dbStatsReg.Unregister()
		}
		return db.Close()
	}

	dsnPresent := cfg.Database.ConnectionString != ""
	if err := configureDatabase(ctx, cfg, logger, db, effectiveDatabase, dsnPresent); err != nil {
		_ = closeDB()
		return nil, nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	st, err := buildStore(cfg, db)
	if err == nil {
		err = prepareStore(ctx, cfg, logger, st)
	}
	if err != nil {
		_ = closeDB()
		return nil, nil, err
	}
	return catalog.NewService(st.Target().Registry, st, opts...), closeDB, nil
}
