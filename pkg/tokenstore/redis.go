package tokenstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Redis keeps the token under one fixed key so several dashboard replicas
// observe the same session. No TTL is set: expiry is only learned from a 401.
type Redis struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedis connects lazily to the server described by opts.
func NewRedis(opts RedisOptions, logger *slog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisFromClient(client, opts.Key, logger)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, key string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		key = "erp:authToken"
	}
	return &Redis{client: client, key: key, logger: logger}
}

// Get implements Store.
func (r *Redis) Get() (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	token, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("failed to read token from redis", slog.String("key", r.key), slog.String("error", err.Error()))
		}
		return "", false
	}
	return token, token != ""
}

// Set implements Store.
func (r *Redis) Set(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key, token, 0).Err(); err != nil {
		r.logger.Error("failed to store token in redis", slog.String("key", r.key), slog.String("error", err.Error()))
	}
}

// Clear implements Store.
func (r *Redis) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		r.logger.Error("failed to delete token from redis", slog.String("key", r.key), slog.String("error", err.Error()))
	}
}

// Ping reports whether the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
