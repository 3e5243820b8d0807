// Copyright 2025 OpenCertify Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package certledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/opencertify/certledger/api"
	"github.com/opencertify/certledger/database"
	"github.com/opencertify/certledger/event"
	"github.com/opencertify/certledger/registry"
)

// Node assembles the certificate registry: event bus, storage, the registry
// state machine, and the REST API.
type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	registry      *registry.Registry
	api           *api.Api
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.owner == "" {
		return nil, errors.New("invalid configuration: no registry owner")
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	return n, nil
}

func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:      n.config.dataDir,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Load registry
	reg, err := registry.NewRegistry(registry.RegistryConfig{
		Store:        n.db,
		Logger:       n.config.logger,
		EventBus:     n.eventBus,
		PromRegistry: n.config.promRegistry,
		Owner:        registry.Identity(n.config.owner),
	})
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	n.registry = reg
	// Log stored certificates for external observers scraping our output
	n.eventBus.SubscribeFunc(
		registry.CertificateStoredEventType,
		n.handleCertificateStoredEvent,
	)
	// Start API listener
	n.api = api.New(
		api.ApiConfig{
			ListenAddress: n.config.apiListenAddress,
			AccessTokens:  n.config.accessTokens,
		},
		n.registry,
		n.db,
		n.config.logger,
	)
	//nolint:contextcheck
	if err := n.api.Start(context.Background()); err != nil {
		return err
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
		return n.Stop()
	case <-n.done:
		return nil
	}
}

func (n *Node) handleCertificateStoredEvent(evt event.Event) {
	e, ok := evt.Data.(registry.CertificateStoredEvent)
	if !ok {
		return
	}
	n.config.logger.Info(
		"certificate stored",
		"component", "node",
		"certificate_hash", e.Hash,
		"matric_number", e.MatricNumber,
		"timestamp", e.Timestamp,
	)
}

// Registry returns the registry instance
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// Database returns the database instance
func (n *Node) Database() *database.Database {
	return n.db
}

// EventBus returns the event bus instance
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		n.config.shutdownTimeout,
	)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: drain event subscribers
	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Phase 3: close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}

	// Phase 4: cleanup resources
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
