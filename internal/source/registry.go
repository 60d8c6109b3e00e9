// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/container"
	"github.com/gudetimes1234/healthintel/internal/logging"
)

// ErrSourceNotRegistered is returned by Create for an unknown source name.
var ErrSourceNotRegistered = errors.New("source not registered")

// Factory constructs a data source from the shared capability container.
type Factory func(c *container.Container) (DataSource, error)

// Registry maps source names to factories. It is an explicit object built
// at startup, not a package-level map mutated by init functions, so a test
// can build a registry holding only fakes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named source.
func (r *Registry) Create(name string, c *container.Container) (DataSource, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrSourceNotRegistered, name, r.Names())
	}
	return factory(c)
}

// CreateEnabled instantiates every source that is both enabled in
// configuration and registered. Enabled names with no registration are
// skipped with a warning so a config rollout ahead of a code rollout does
// not break ingestion of the remaining sources.
func (r *Registry) CreateEnabled(c *container.Container) ([]DataSource, error) {
	var sources []DataSource
	for _, name := range c.Config().EnabledSources() {
		src, err := r.Create(name, c)
		if errors.Is(err, ErrSourceNotRegistered) {
			logging.Warn().Str("source", name).Msg("Source enabled in config but not registered, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create source %q: %w", name, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceInfo describes one registered source for listings.
type SourceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"` // enabled, disabled, unconfigured
}

// Describe returns listing entries for every registered source, with the
// status derived from configuration. Description comes from configuration
// when present so operators can annotate deployments.
func (r *Registry) Describe(cfg *config.Config) []SourceInfo {
	infos := make([]SourceInfo, 0, len(r.factories))
	for _, name := range r.Names() {
		info := SourceInfo{Name: name, Status: "unconfigured"}
		if sc, err := cfg.Source(name); err == nil {
			info.Description = sc.Description
			if sc.Enabled {
				info.Status = "enabled"
			} else {
				info.Status = "disabled"
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// RunAll runs sources sequentially and aggregates results. With a non-empty
// filter only the named sources run; otherwise every enabled source runs.
// A failed source never aborts the others.
func RunAll(ctx context.Context, reg *Registry, c *container.Container, filter []string) ([]RunResult, error) {
	var sources []DataSource

	if len(filter) > 0 {
		for _, name := range filter {
			src, err := reg.Create(name, c)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		}
	} else {
		var err error
		sources, err = reg.CreateEnabled(c)
		if err != nil {
			return nil, err
		}
	}

	results := make([]RunResult, 0, len(sources))
	for _, src := range sources {
		results = append(results, Run(ctx, src))
	}
	return results, nil
}
