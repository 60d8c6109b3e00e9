// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order of
// priority. The first file found wins.
var DefaultConfigPaths = []string{
	"sources.yaml",
	"sources.yml",
	"/etc/healthintel/sources.yaml",
	"/etc/healthintel/sources.yml",
}

// ConfigPathEnvVar overrides the config file search when set.
const ConfigPathEnvVar = "HEALTHINTEL_CONFIG"

// defaultConfig returns a Config with all built-in defaults. These are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Caller: false,
			},
			Database: DatabaseConfig{
				Path:                   "/data/healthintel.duckdb",
				MaxMemory:              "1GB",
				Threads:                0, // 0 = runtime.NumCPU()
				PreserveInsertionOrder: true,
			},
			HTTP: HTTPConfig{
				Retries:        3,
				RetryDelay:     60 * time.Second,
				RatePerSecond:  2, // polite ceiling for the shared Delphi API
				CircuitBreaker: true,
			},
			Server: ServerConfig{
				Host:    "0.0.0.0",
				Port:    8460,
				Timeout: 30 * time.Second,
			},
		},
		Sources: map[string]SourceConfig{
			"fluview": {
				Enabled:     false,
				Description: "CDC Influenza Surveillance (ILI data)",
				API: APIConfig{
					BaseURL: "https://api.delphi.cmu.edu/epidata/fluview/",
					Timeout: 30 * time.Second,
				},
				Regions: []string{
					"nat", "hhs1", "hhs2", "hhs3", "hhs4", "hhs5",
					"hhs6", "hhs7", "hhs8", "hhs9", "hhs10",
				},
				Validation: ValidationConfig{
					MaxErrorRate: 0.5,
					PercentRange: []float64{0, 100},
					MinSpecimens: 0,
				},
			},
			"covidcast": {
				Enabled:     false,
				Description: "COVID-19 Hospital Admissions (NHSN data)",
				API: APIConfig{
					BaseURL: "https://api.delphi.cmu.edu/epidata/covidcast/",
					Timeout: 30 * time.Second,
				},
				GeoLevels:     []string{"state", "nation"},
				DataSource:    "nhsn",
				Signal:        "confirmed_admissions_covid_ew",
				TimeType:      "week",
				LookbackWeeks: 12,
				Validation: ValidationConfig{
					MaxErrorRate: 0.5,
					MaxValue:     1_000_000,
				},
			},
		},
	}
}

// Load reads configuration with layered precedence:
//  1. Built-in defaults
//  2. YAML config file (path argument, HEALTHINTEL_CONFIG, or search paths)
//  3. Environment variables
//
// An explicitly given path that does not exist is a hard error; the search
// paths are all optional. The final structure is validated before return.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.tree = k

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// resolveConfigPath picks the config file to load. An explicit path must
// exist; otherwise the env var and default search paths are all optional.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file not found: %s: %w", path, err)
		}
		return path, nil
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("config file not found: %s: %w", envPath, err)
		}
		return envPath, nil
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise cannot leak
// into the configuration tree.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"log_level":  "global.logging.level",
		"log_format": "global.logging.format",
		"log_caller": "global.logging.caller",

		"duckdb_path":       "global.database.path",
		"duckdb_max_memory": "global.database.max_memory",
		"duckdb_threads":    "global.database.threads",

		"http_retries":         "global.http.retries",
		"http_retry_delay":     "global.http.retry_delay",
		"http_rate_per_second": "global.http.rate_per_second",

		"server_host":    "global.server.host",
		"server_port":    "global.server.port",
		"server_timeout": "global.server.timeout",

		"flu_enabled":   "sources.fluview.enabled",
		"covid_enabled": "sources.covidcast.enabled",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
