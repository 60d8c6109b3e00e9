// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package container

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/models"
)

func TestFetcherIsMemoized(t *testing.T) {
	c := New(&config.Config{})

	first := c.Fetcher()
	second := c.Fetcher()
	if first != second {
		t.Error("Fetcher must return the same client on every call")
	}
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, baseURL string, params url.Values, timeout time.Duration) (*models.EpidataResponse, error) {
	return &models.EpidataResponse{Result: 1}, nil
}

func TestSetFetcherOverridesLazyFactory(t *testing.T) {
	c := New(&config.Config{})
	stub := stubFetcher{}
	c.SetFetcher(stub)

	if c.Fetcher() != stub {
		t.Error("SetFetcher override not returned")
	}
}

func TestDBIsMemoizedAndOverridable(t *testing.T) {
	c := New(&config.Config{
		Global: config.GlobalConfig{Database: config.DatabaseConfig{Path: ":memory:"}},
	})

	db, err := c.DB()
	if err != nil {
		t.Fatalf("DB failed: %v", err)
	}
	again, err := c.DB()
	if err != nil {
		t.Fatalf("second DB failed: %v", err)
	}
	if db != again {
		t.Error("DB must return the same handle on every call")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	override, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open override database: %v", err)
	}
	defer override.Close()

	c2 := New(&config.Config{})
	c2.SetDB(override)
	got, err := c2.DB()
	if err != nil {
		t.Fatalf("DB failed after override: %v", err)
	}
	if got != override {
		t.Error("SetDB override not returned")
	}
}
