// Package client wires configuration into a ready-to-use formsync stack.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/TheMichaelB/formsync/internal/config"
	"github.com/TheMichaelB/formsync/internal/crypto"
	"github.com/TheMichaelB/formsync/internal/docstore"
	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/metrics"
	"github.com/TheMichaelB/formsync/internal/services/auth"
	"github.com/TheMichaelB/formsync/internal/services/sync"
	"github.com/TheMichaelB/formsync/internal/state"
	"github.com/TheMichaelB/formsync/internal/transport"
)

// Client provides the high-level API for formsync operations.
type Client struct {
	Auth     *auth.Service
	Sync     *sync.Service
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	probe     transport.Transport
	state     state.Store
	docs      docstore.Store
}

// New creates a client. The encryption key is checked before any store
// is opened.
func New(ctx context.Context, cfg *config.Config, logger *events.Logger) (*Client, error) {
	vault, err := crypto.NewVault(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	stateStore, err := openState(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	docStore, err := openDocStore(ctx, cfg, logger)
	if err != nil {
		stateStore.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	transportClient := transport.NewHTTPClient(&cfg.API, logger)

	// Validation answers once; only sync cycles retry.
	probeAPI := cfg.API
	probeAPI.MaxRetries = 0
	probeTransport := transport.NewHTTPClient(&probeAPI, logger)

	authService := auth.NewService(probeTransport, cfg.API.ValidateTimeout, cfg.Sync.ProbeFormID, logger)
	executor := sync.NewExecutor(stateStore, docStore, vault, transportClient, logger)
	registry := sync.NewRegistry(stateStore, executor, sync.RegistryConfig{
		Interval:           cfg.Sync.Interval,
		PausedPollInterval: cfg.Sync.PausedPollInterval,
	}, m, logger)
	syncService := sync.NewService(authService, vault, stateStore, registry, m, cfg.Sync.LogLimit, logger)

	return &Client{
		Auth:      authService,
		Sync:      syncService,
		Registry:  reg,
		Metrics:   m,
		config:    cfg,
		logger:    logger,
		transport: transportClient,
		probe:     probeTransport,
		state:     stateStore,
		docs:      docStore,
	}, nil
}

// Documents exposes the document store.
func (c *Client) Documents() docstore.Store {
	return c.docs
}

// Close stops every sync task, leaving persisted status as is, and
// releases the stores.
func (c *Client) Close(ctx context.Context) error {
	var errs []error

	if err := c.Sync.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop sync tasks: %w", err))
	}
	if err := c.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if err := c.probe.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close validation transport: %w", err))
	}
	if err := c.docs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close document store: %w", err))
	}
	if err := c.state.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close state store: %w", err))
	}

	return errors.Join(errs...)
}

func openState(ctx context.Context, cfg *config.Config, logger *events.Logger) (state.Store, error) {
	opts := state.Options{Interval: cfg.Sync.Interval}

	switch cfg.Database.Driver {
	case "sqlite":
		return state.NewSQLStore(ctx, state.DialectSQLite, cfg.Database.DSN, opts, logger)
	case "postgres":
		return state.NewSQLStore(ctx, state.DialectPostgres, cfg.Database.DSN, opts, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func openDocStore(ctx context.Context, cfg *config.Config, logger *events.Logger) (docstore.Store, error) {
	switch cfg.DocStore.Driver {
	case "bolt":
		return docstore.NewBoltStore(cfg.DocStore.Path, logger)
	case "mongo":
		return docstore.NewMongoStore(ctx, cfg.DocStore.URI, cfg.DocStore.Database, logger)
	default:
		return nil, fmt.Errorf("unsupported docstore driver: %s", cfg.DocStore.Driver)
	}
}
