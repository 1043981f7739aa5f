package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wrcelo/erpwebui/pkg/config"
)

// Namespace hands out one Store per browser session on a shared backend.
// Session ids are opaque to the namespace; callers validate them before use.
type Namespace interface {
	// Store returns the token slot for id. It may be called repeatedly for
	// the same id and always addresses the same slot.
	Store(id string) Store

	// Remove deletes the slot for id and any token in it.
	Remove(id string)

	// Close releases shared resources.
	Close() error
}

// NewNamespace builds the Namespace selected by cfg.Backend. The file
// backend keeps one file per session in a "sessions" directory next to
// cfg.Path; Redis keys are cfg.RedisKey plus ":" and the session id.
func NewNamespace(cfg config.TokenStoreConfig, logger *slog.Logger) (Namespace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "token-store"), slog.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryNamespace(), nil
	case config.BackendFile, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultTokenPath()
		}
		return NewFileNamespace(filepath.Join(filepath.Dir(path), "sessions"), logger), nil
	case config.BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis token store requires an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisNamespace(client, cfg.RedisKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown token store backend: %s", cfg.Backend)
	}
}

// MemoryNamespace keeps every session token in process memory.
type MemoryNamespace struct {
	mu     sync.Mutex
	stores map[string]*Memory
}

// NewMemoryNamespace creates an empty in-memory namespace.
func NewMemoryNamespace() *MemoryNamespace {
	return &MemoryNamespace{stores: make(map[string]*Memory)}
}

// Store implements Namespace.
func (n *MemoryNamespace) Store(id string) Store {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.stores[id]
	if !ok {
		s = NewMemory()
		n.stores[id] = s
	}
	return s
}

// Remove implements Namespace.
func (n *MemoryNamespace) Remove(id string) {
	n.mu.Lock()
	s, ok := n.stores[id]
	delete(n.stores, id)
	n.mu.Unlock()
	if ok {
		s.Clear()
	}
}

// Len returns the number of slots held.
func (n *MemoryNamespace) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.stores)
}

// Close implements Namespace.
func (n *MemoryNamespace) Close() error { return nil }

// FileNamespace keeps one token file per session under dir.
type FileNamespace struct {
	dir    string
	logger *slog.Logger
}

// NewFileNamespace creates a namespace rooted at dir. The directory is
// created on the first write.
func NewFileNamespace(dir string, logger *slog.Logger) *FileNamespace {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileNamespace{dir: dir, logger: logger}
}

// Dir returns the directory holding the session files.
func (n *FileNamespace) Dir() string {
	return n.dir
}

// Store implements Namespace.
func (n *FileNamespace) Store(id string) Store {
	return NewFile(filepath.Join(n.dir, id), n.logger)
}

// Remove implements Namespace.
func (n *FileNamespace) Remove(id string) {
	path := filepath.Join(n.dir, id)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		n.logger.Error("failed to remove session token file", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Close implements Namespace.
func (n *FileNamespace) Close() error { return nil }

// RedisNamespace keeps one key per session on a shared client, so every
// dashboard replica can resume a session started on another one.
type RedisNamespace struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisNamespace wraps client. Keys are prefix:<id>.
func NewRedisNamespace(client *redis.Client, prefix string, logger *slog.Logger) *RedisNamespace {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "erp:authToken"
	}
	return &RedisNamespace{client: client, prefix: prefix, logger: logger}
}

func (n *RedisNamespace) key(id string) string {
	return n.prefix + ":" + id
}

// Store implements Namespace.
func (n *RedisNamespace) Store(id string) Store {
	return NewRedisFromClient(n.client, n.key(id), n.logger)
}

// Remove implements Namespace.
func (n *RedisNamespace) Remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := n.client.Del(ctx, n.key(id)).Err(); err != nil {
		n.logger.Error("failed to delete session token from redis", slog.String("key", n.key(id)), slog.String("error", err.Error()))
	}
}

// Ping reports whether the Redis server is reachable.
func (n *RedisNamespace) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close releases the shared connection pool.
func (n *RedisNamespace) Close() error {
	return n.client.Close()
}
