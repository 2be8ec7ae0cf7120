package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/internal/audit"
	"github.com/MarkoPoloResearchLab/roomhold/internal/availcache"
	"github.com/MarkoPoloResearchLab/roomhold/internal/bootstrap"
	"github.com/MarkoPoloResearchLab/roomhold/internal/config"
	"github.com/MarkoPoloResearchLab/roomhold/internal/events"
	"github.com/MarkoPoloResearchLab/roomhold/internal/httpapi"
	"github.com/MarkoPoloResearchLab/roomhold/pkg/booking"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "HOTELD"

	flagConfig            = "config"
	flagDatabaseURL       = "database-url"
	flagStore             = "store"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookie     = "session-cookie"
	flagStaffRoles        = "staff-roles"
	flagRequestTimeout    = "request-timeout"
	flagCacheTTL          = "cache-ttl"
	flagRedisAddr         = "redis-addr"
	flagRedisPassword     = "redis-password"
	flagRedisDB           = "redis-db"
	flagRedisTLS          = "redis-tls"
	flagAMQPURL           = "amqp-url"
	flagAMQPQueue         = "amqp-queue"
	flagLogLevel          = "log-level"

	defaultDatabaseURL = "sqlite://roomhold.db"
)

type runtimeConfig struct {
	Store     bootstrap.StoreConfig
	HTTP      httpapi.Config
	Hotel     config.Hotel
	Redis     availcache.RedisConfig
	AMQPURL   string
	AMQPQueue string
	LogLevel  string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hoteld: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "hoteld",
		Short:         "Room availability and booking-hold HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(flagConfig, "", "YAML file with the hotel section (rooms, payment account, hold policy)")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "postgres://, mysql://, sqlite:// URL or SQLite path")
	flags.String(flagStore, bootstrap.BackendGORM, "store backend: gorm or pgx")
	flags.String(flagListenAddr, ":8080", "HTTP listen address")
	flags.String(flagAllowedOrigins, "http://localhost:8000", "comma-separated CORS origins")
	flags.String(flagSessionSigningKey, "", "tauth session signing key")
	flags.String(flagSessionIssuer, "tauth", "tauth session issuer")
	flags.String(flagSessionCookie, "app_session", "tauth session cookie name")
	flags.String(flagStaffRoles, strings.Join(httpapi.DefaultStaffRoles(), ","), "comma-separated roles allowed on staff routes")
	flags.Duration(flagRequestTimeout, 5*time.Second, "per-request store timeout")
	flags.Duration(flagCacheTTL, availcache.DefaultTTL, "availability cache TTL")
	flags.String(flagRedisAddr, "", "Redis host:port for the shared availability cache; empty uses an in-process cache")
	flags.String(flagRedisPassword, "", "Redis password")
	flags.Int(flagRedisDB, 0, "Redis database number")
	flags.Bool(flagRedisTLS, false, "connect to Redis over TLS")
	flags.String(flagAMQPURL, "", "RabbitMQ URL for booking events; empty disables publishing")
	flags.String(flagAMQPQueue, events.DefaultQueue, "RabbitMQ queue for booking events")
	flags.String(flagLogLevel, "info", "log level: debug, info, warn, error")

	return cmd
}

func loadConfig(cmd *cobra.Command, v *viper.Viper, cfg *runtimeConfig) error {
	if err := bootstrap.LoadDotEnv(); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := bootstrap.ReadConfigFile(v, v.GetString(flagConfig)); err != nil {
		return err
	}

	hotel, err := config.LoadHotel(v)
	if err != nil {
		return err
	}
	cfg.Hotel = hotel
	cfg.Store = bootstrap.StoreConfig{
		DatabaseURL: v.GetString(flagDatabaseURL),
		Backend:     v.GetString(flagStore),
		Migrate:     true,
	}
	cfg.HTTP = httpapi.Config{
		ListenAddr:           v.GetString(flagListenAddr),
		AllowedOrigins:       httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey:    v.GetString(flagSessionSigningKey),
		SessionIssuer:        v.GetString(flagSessionIssuer),
		SessionCookieName:    v.GetString(flagSessionCookie),
		StaffRoles:           httpapi.ParseStaffRoles(v.GetString(flagStaffRoles)),
		AvailabilityCacheTTL: v.GetDuration(flagCacheTTL),
		RequestTimeout:       v.GetDuration(flagRequestTimeout),
	}
	cfg.Redis = availcache.RedisConfig{
		Addr:     v.GetString(flagRedisAddr),
		Password: v.GetString(flagRedisPassword),
		DB:       v.GetInt(flagRedisDB),
		TLS:      v.GetBool(flagRedisTLS),
	}
	cfg.AMQPURL = v.GetString(flagAMQPURL)
	cfg.AMQPQueue = v.GetString(flagAMQPQueue)
	cfg.LogLevel = v.GetString(flagLogLevel)

	if cfg.Store.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	return cfg.HTTP.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	operationLoggers := []booking.OperationLogger{audit.NewZapLogger(logger)}
	if cfg.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		operationLoggers = append(operationLoggers, publisher)
		logger.Info("booking events enabled", zap.String("queue", cfg.AMQPQueue))
	}

	service, err := cfg.Hotel.NewService(store, time.Now, booking.WithOperationLogger(audit.NewMulti(operationLoggers...)))
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	cache, closeCache, err := newAvailabilityCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	return httpapi.Run(ctx, cfg.HTTP, service, cache, logger)
}

func newAvailabilityCache(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger) (availcache.Cache, func(), error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		logger.Info("availability cache in process", zap.Duration("ttl", cfg.HTTP.AvailabilityCacheTTL))
		return availcache.NewMemory(cfg.HTTP.AvailabilityCacheTTL, time.Now), func() {}, nil
	}
	client, err := availcache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("availability cache on redis", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.HTTP.AvailabilityCacheTTL))
	closeFn := func() { _ = client.Close() }
	return availcache.NewRedis(client, "", cfg.HTTP.AvailabilityCacheTTL, logger), closeFn, nil
}
