package availcache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix = "roomhold:availability"
	generationSuffix = "generation"
	pingTimeout      = 2 * time.Second
)

// RedisConfig describes the Redis connection used by the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// Redis is a Cache shared by every API instance pointing at the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient builds a client for cfg and verifies it answers PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	options := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedis wraps client. A nil logger discards backend errors.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Redis {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (cache *Redis) Get(ctx context.Context, key string) ([]byte, Generation, bool) {
	generation, err := readGeneration(ctx, cache.client, cache.generationKey())
	if err != nil {
		cache.logger.Warn("availability cache generation read failed", zap.Error(err))
		return nil, UnknownGeneration, false
	}
	value, err := cache.client.Get(ctx, cache.entryKey(generation, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cache.logger.Warn("availability cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, generation, false
	}
	return value, generation, true
}

// Set writes value only while the generation still equals seen. The generation key is
// watched so an Invalidate racing the write aborts it.
func (cache *Redis) Set(ctx context.Context, key string, seen Generation, value []byte) {
	if seen == UnknownGeneration {
		return
	}
	generationKey := cache.generationKey()
	err := cache.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, generationKey)
		if err != nil {
			return err
		}
		if current != seen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cache.entryKey(seen, key), value, cache.ttl)
			return nil
		})
		return err
	}, generationKey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		cache.logger.Warn("availability cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate moves every instance to a fresh generation; old entries age out by TTL.
func (cache *Redis) Invalidate(ctx context.Context) {
	if err := cache.client.Incr(ctx, cache.generationKey()).Err(); err != nil {
		cache.logger.Error("availability cache invalidation failed", zap.Error(err))
	}
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// readGeneration returns the current generation; a missing key is generation zero.
func readGeneration(ctx context.Context, reader stringGetter, generationKey string) (Generation, error) {
	generation, err := reader.Get(ctx, generationKey).Int64()
	switch {
	case err == nil:
		return Generation(generation), nil
	case errors.Is(err, redis.Nil):
		return 0, nil
	default:
		return UnknownGeneration, err
	}
}

func (cache *Redis) generationKey() string {
	return cache.prefix + ":" + generationSuffix
}

func (cache *Redis) entryKey(generation Generation, key string) string {
	return fmt.Sprintf("%s:%d:%s", cache.prefix, generation, key)
}
