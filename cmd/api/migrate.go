package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"inkwell/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().String("migrations-dir", "", "directory holding *.up.sql files")
	_ = viper.BindPFlag("migrations_dir", migrateCmd.Flags().Lookup("migrations-dir"))
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := runMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		return err
	}
	logger.Info("migrations up to date", zap.String("dir", cfg.MigrationsDir))
	return nil
}
