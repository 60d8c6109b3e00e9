// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package container holds the shared capabilities a data source needs:
// configuration, the Epidata fetch client, and the database handle.
// Capabilities are constructed lazily and memoized, so a CLI invocation that
// only lists sources never opens the database, and tests can inject doubles
// before first use.
package container

import (
	"sync"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/epidata"
)

// Container wires configuration to lazily-built capabilities. Safe for
// concurrent use.
type Container struct {
	cfg *config.Config

	mu      sync.Mutex
	fetcher epidata.Fetcher
	db      *database.DB
}

// New creates a container around loaded configuration. Nothing is opened
// until a capability is first requested.
func New(cfg *config.Config) *Container {
	return &Container{cfg: cfg}
}

// Config returns the loaded configuration.
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Fetcher returns the shared Epidata client, constructing it on first use.
func (c *Container) Fetcher() epidata.Fetcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetcher == nil {
		c.fetcher = epidata.NewClient(c.cfg.Global.HTTP)
	}
	return c.fetcher
}

// SetFetcher replaces the fetch capability, bypassing the lazy factory.
// Intended for tests.
func (c *Container) SetFetcher(f epidata.Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetcher = f
}

// DB returns the shared database handle, opening it (and initializing the
// schema) on first use.
func (c *Container) DB() (*database.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		db, err := database.New(&c.cfg.Global.Database)
		if err != nil {
			return nil, err
		}
		c.db = db
	}
	return c.db, nil
}

// SetDB replaces the database capability, bypassing the lazy factory.
// Intended for tests.
func (c *Container) SetDB(db *database.DB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
}

// Close releases the database handle if it was opened.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
