// Package bootstrap holds the process wiring shared by hoteld and hotelctl.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/MarkoPoloResearchLab/roomhold/internal/database"
	"github.com/MarkoPoloResearchLab/roomhold/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/roomhold/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Store backends.
const (
	BackendGORM = "gorm"
	BackendPGX  = "pgx"
)

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// ReadConfigFile merges the YAML file at path into v; an empty path is a no-op.
func ReadConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// NewLogger builds the production logger, or the development one for level "debug".
func NewLogger(level string) (*zap.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if normalized != "" {
		parsed, err := zapcore.ParseLevel(normalized)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

// StoreConfig selects and prepares the booking store.
type StoreConfig struct {
	DatabaseURL string
	Backend     string
	Migrate     bool
}

// OpenStore opens the configured store. The returned close function releases its pool.
func OpenStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (booking.Store, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendGORM
	}
	switch backend {
	case BackendGORM:
		return openGORMStore(ctx, cfg, logger)
	case BackendPGX:
		return openPGXStore(ctx, cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func openGORMStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (booking.Store, func(), error) {
	connection, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, connection); err != nil {
			_ = connection.Close()
			return nil, nil, err
		}
	}
	logger.Info("booking store ready", zap.String("backend", BackendGORM), zap.String("driver", connection.Driver.String()))
	closeFn := func() {
		if err := connection.Close(); err != nil {
			logger.Warn("database close failed", zap.Error(err))
		}
	}
	return gormstore.New(connection.DB, connection.StoreOptions()...), closeFn, nil
}

func openPGXStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (booking.Store, func(), error) {
	driver, _, err := database.ResolveDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if driver != database.DriverPostgres {
		return nil, nil, fmt.Errorf("store backend %q requires a postgres url, got %s", BackendPGX, driver)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgx ping: %w", err)
	}
	store := pgstore.New(pool)
	if cfg.Migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	logger.Info("booking store ready", zap.String("backend", BackendPGX))
	return store, pool.Close, nil
}
