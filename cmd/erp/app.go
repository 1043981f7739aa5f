package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/config"
	"github.com/wrcelo/erpwebui/pkg/notify"
	"github.com/wrcelo/erpwebui/pkg/session"
	"github.com/wrcelo/erpwebui/pkg/tokenstore"
)

const requestTimeout = 30 * time.Second

// app is the session stack shared by every command.
type app struct {
	cfg    *config.Config
	store  tokenstore.Store
	client *apiclient.Client
	guard  *session.Guard
}

func loadConfig() (*config.Config, error) {
	return config.Build(configPath, func(c *config.Config) {
		if apiURL != "" {
			c.API.BaseURL = apiURL
		}
		if identityURL != "" {
			c.API.IdentityURL = identityURL
		}
		if tokenFile != "" {
			c.TokenStore.Backend = config.BackendFile
			c.TokenStore.Path = tokenFile
		}
		if c.API.Timeout == 0 {
			c.API.Timeout = requestTimeout
		}
	})
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// Library logs go to stderr only when asked for; the console prints
	// everything the operator needs.
	level := slog.LevelError
	if os.Getenv("ERP_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := tokenstore.New(cfg.TokenStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	registry := session.NewRegistry()
	client, err := apiclient.New(apiclient.Options{
		BaseURL:        cfg.API.BaseURL,
		IdentityURL:    cfg.API.IdentityURL,
		ProbePath:      cfg.API.ProbePath,
		Store:          store,
		OnUnauthorized: registry.Notify,
		Timeout:        cfg.API.Timeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	guard := session.NewGuard(session.Options{
		Store:    store,
		Backend:  client,
		Notifier: notify.Multi(newConsoleNotifier(), notify.NewLogNotifier(logger)),
		Logger:   logger,
	})
	registry.Register(guard)

	return &app{cfg: cfg, store: store, client: client, guard: guard}, nil
}
