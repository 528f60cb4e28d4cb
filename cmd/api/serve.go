package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"inkwell/api/internal/app"
	"inkwell/api/internal/config"
	"inkwell/api/internal/content"
	"inkwell/api/internal/memstore"
	"inkwell/api/internal/metrics"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().String("store-backend", "", "metadata and content backend (postgres, memory)")
	serveCmd.Flags().Bool("migrate", true, "apply migrations before serving (postgres only)")
	_ = viper.BindPFlag("api_addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("store_backend", serveCmd.Flags().Lookup("store-backend"))
}

// backends is everything the service needs from storage, plus cleanup.
type backends struct {
	metadata app.MetadataStore
	content  app.ContentStore
	sessions app.SessionStore
	closers  []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	migrate, _ := cmd.Flags().GetBool("migrate")
	stores, err := openBackends(ctx, cfg, migrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	registry := metrics.New()
	service := app.New(cfg, stores.metadata, stores.content, stores.sessions, logger, registry)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("inkwell api listening", zap.String("addr", cfg.Addr), zap.String("backend", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func openBackends(ctx context.Context, cfg config.Config, migrate bool, logger *zap.Logger) (*backends, error) {
	result := &backends{}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		mem := memstore.New()
		result.metadata = mem
		result.content = content.NewStore(mem)
		result.sessions = mem

	default:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		result.closers = append(result.closers, db.Close)
		if migrate {
			if err := runMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
				result.Close()
				return nil, err
			}
		}
		metadata := store.NewPostgresStore(db)
		result.metadata = metadata
		result.sessions = metadata

		bucket, err := content.NewMinioBackend(content.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			result.Close()
			return nil, fmt.Errorf("object storage client failed: %w", err)
		}
		if err := bucket.EnsureBucket(ctx); err != nil {
			result.Close()
			return nil, fmt.Errorf("object storage bucket failed: %w", err)
		}
		result.content = content.NewStore(bucket)
	}

	if cfg.RedisURL != "" {
		logger.Info("using redis for refresh sessions")
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			result.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		result.closers = append(result.closers, redisStore.Close)
		result.sessions = redisStore
	}
	return result, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dir string, logger *zap.Logger) error {
	applied, err := store.ApplyMigrations(ctx, db, dir)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}
	return nil
}
