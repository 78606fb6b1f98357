package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"receiptvault/logger"
	"receiptvault/pkg/blob"
	"receiptvault/store"
)

// newStore picks the backend exactly once. Handlers only ever see the
// store.Store facade and never learn which one is behind it.
func newStore(cfg Config) (store.Store, error) {
	if cfg.remoteConfigured() {
		dsn, err := store.BuildDSN(cfg.SupabaseDBURL, cfg.SupabaseServiceKey)
		if err != nil {
			return nil, err
		}
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPostgres(gdb)
		if cfg.AutoMigrate {
			// permission errors on managed databases are logged and ignored,
			// the schema is usually provisioned out of band there
			if err := pg.Migrate(); err != nil {
				logger.Get().Warn("migration warning", zap.Error(err))
			}
		}
		logger.Get().Info("using remote database backend")
		return pg, nil
	}

	logger.Get().Warn("no remote database configured, using local fallback store",
		zap.String("data_dir", cfg.DataDir))
	fs, err := blob.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return store.NewLocal(fs), nil
}
