// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package config defines the typed configuration surface for HealthIntel.
//
// Configuration is loaded once at startup with a clear precedence
// (ENV > YAML file > built-in defaults) and validated eagerly: a missing
// explicit config file, an unknown log level, or a malformed source entry
// aborts the process before any network or database activity.
package config

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/gudetimes1234/healthintel/internal/validation"
)

// ErrSourceNotConfigured is returned by Source for names absent from the
// sources map.
var ErrSourceNotConfigured = errors.New("source not configured")

// Config is the root configuration structure. Immutable after Load.
type Config struct {
	Global  GlobalConfig            `koanf:"global" validate:"required"`
	Sources map[string]SourceConfig `koanf:"sources" validate:"dive"`

	// tree is the raw koanf tree the struct was unmarshaled from, kept for
	// Get lookups of ad-hoc global keys.
	tree *koanf.Koanf
}

// GlobalConfig holds settings shared by every source and the serving layer.
type GlobalConfig struct {
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Server   ServerConfig   `koanf:"server"`
}

// LoggingConfig configures the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path                   string `koanf:"path" validate:"required"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads" validate:"min=0"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// HTTPConfig configures the upstream fetch capability: retry policy and
// politeness limits applied to every Delphi API call.
type HTTPConfig struct {
	Retries        int           `koanf:"retries" validate:"min=1,max=10"`
	RetryDelay     time.Duration `koanf:"retry_delay"`
	RatePerSecond  float64       `koanf:"rate_per_second" validate:"min=0"`
	CircuitBreaker bool          `koanf:"circuit_breaker"`
}

// ServerConfig configures the dashboard read API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// SourceConfig holds the per-source settings. Loaded once at startup and
// treated as immutable for the duration of a run.
type SourceConfig struct {
	Enabled       bool             `koanf:"enabled"`
	Description   string           `koanf:"description"`
	API           APIConfig        `koanf:"api"`
	Regions       []string         `koanf:"regions"`    // fluview: upstream region codes
	GeoLevels     []string         `koanf:"geo_levels"` // covidcast: geography granularities
	DataSource    string           `koanf:"data_source"`
	Signal        string           `koanf:"signal"`
	TimeType      string           `koanf:"time_type"`
	LookbackWeeks int              `koanf:"lookback_weeks" validate:"min=0"`
	Validation    ValidationConfig `koanf:"validation"`
}

// APIConfig identifies the upstream endpoint for one source.
type APIConfig struct {
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout"`
}

// ValidationConfig holds the data-quality thresholds applied during the
// validate phase. MaxErrorRate is the batch circuit breaker: when the share
// of invalid records exceeds it, the whole run for that source aborts.
type ValidationConfig struct {
	MaxErrorRate float64   `koanf:"max_error_rate" validate:"min=0,max=1"`
	MaxValue     float64   `koanf:"max_value"`
	PercentRange []float64 `koanf:"percent_range" validate:"omitempty,len=2"`
	MinSpecimens int       `koanf:"min_specimens"`
}

// Source returns the configuration for a named source.
// Returns ErrSourceNotConfigured when the name is absent.
func (c *Config) Source(name string) (SourceConfig, error) {
	sc, ok := c.Sources[name]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%w: %q", ErrSourceNotConfigured, name)
	}
	return sc, nil
}

// EnabledSources returns the names of all enabled sources in sorted order,
// so a multi-source run is deterministic within one configuration.
func (c *Config) EnabledSources() []string {
	names := make([]string, 0, len(c.Sources))
	for name, sc := range c.Sources {
		if sc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Get returns an arbitrary key from the raw configuration tree, or def when
// the key is absent. Intended for optional global extras that have no typed
// field; typed accessors are preferred everywhere else.
func (c *Config) Get(key string, def any) any {
	if c.tree == nil || !c.tree.Exists(key) {
		return def
	}
	return c.tree.Get(key)
}

// Validate checks the loaded configuration for structural problems.
// Called by Load; a failure here aborts startup.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	for name, sc := range c.Sources {
		if sc.Enabled && sc.API.BaseURL == "" {
			return fmt.Errorf("source %q: enabled but api.base_url is empty", name)
		}
		if pr := sc.Validation.PercentRange; len(pr) == 2 && pr[0] > pr[1] {
			return fmt.Errorf("source %q: percent_range lower bound %v exceeds upper bound %v", name, pr[0], pr[1])
		}
	}
	return nil
}
