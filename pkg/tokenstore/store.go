// Package tokenstore holds the single bearer token of the current session.
//
// A Store is one slot: Set overwrites, Clear empties, Get reports presence.
// Storage failures never surface to callers; they are logged and read back
// as "no token", which keeps the session fail-closed.
package tokenstore

import (
	"fmt"
	"log/slog"

	"github.com/wrcelo/erpwebui/pkg/config"
)

// Store persists at most one bearer token.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored token and whether one is present.
	Get() (string, bool)

	// Set replaces the stored token.
	Set(token string)

	// Clear removes the stored token. Clearing an empty store is a no-op.
	Clear()
}

// New builds the Store selected by cfg.Backend.
func New(cfg config.TokenStoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "token-store"), slog.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendFile, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultTokenPath()
		}
		return NewFile(path, logger), nil
	case config.BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis token store requires an address")
		}
		return NewRedis(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown token store backend: %s", cfg.Backend)
	}
}
