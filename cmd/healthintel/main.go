// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package main is the entry point for the HealthIntel CLI and server.
//
// HealthIntel ingests public-health surveillance time series (CDC FluView
// influenza-like illness, Delphi COVIDcast hospitalizations) into an
// embedded DuckDB store and serves them to dashboards over a REST API.
//
// # Usage
//
// Run every enabled source once and exit:
//
//	healthintel
//
// Run specific sources regardless of the enabled flag:
//
//	healthintel -source fluview
//	healthintel -source fluview,covidcast
//
// List registered sources and their configuration status:
//
//	healthintel -list
//
// Serve the dashboard API (ingestion is then triggered over HTTP):
//
//	healthintel -serve
//
// # Configuration
//
// Configuration is loaded via Koanf with layered sources (highest priority
// wins): environment variables (HEALTHINTEL_*), a YAML config file
// (-config, $HEALTHINTEL_CONFIG, or sources.yaml), and built-in defaults.
//
// # Exit Codes
//
// The CLI exits 0 when every requested source run succeeds and 1 when any
// run fails or startup errors occur.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gudetimes1234/healthintel/internal/api"
	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/container"
	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/source"
	"github.com/gudetimes1234/healthintel/internal/source/covidcast"
	"github.com/gudetimes1234/healthintel/internal/source/fluview"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("healthintel", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file (default: sources.yaml, /etc/healthintel/sources.yaml)")
	sourceNames := fs.String("source", "", "comma-separated source names to run (default: all enabled)")
	list := fs.Bool("list", false, "list registered sources and exit")
	serve := fs.Bool("serve", false, "serve the dashboard API instead of running an ingest")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logging.Init(logging.Config{
		Level:  cfg.Global.Logging.Level,
		Format: cfg.Global.Logging.Format,
		Caller: cfg.Global.Logging.Caller,
	})

	c := container.New(cfg)
	defer func() {
		if err := c.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close container")
		}
	}()

	reg := source.NewRegistry()
	reg.Register(fluview.SourceName, fluview.New)
	reg.Register(covidcast.SourceName, covidcast.New)

	if *list {
		printSources(reg, cfg)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		addr := fmt.Sprintf("%s:%d", cfg.Global.Server.Host, cfg.Global.Server.Port)
		srv := api.NewServer(c, reg)
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Server exited with error")
			return 1
		}
		return 0
	}

	var filter []string
	if *sourceNames != "" {
		for _, name := range strings.Split(*sourceNames, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter = append(filter, name)
			}
		}
	}

	results, err := source.RunAll(ctx, reg, c, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run sources: %v\n", err)
		return 1
	}
	if len(results) == 0 {
		fmt.Println("no sources to run (enable sources in config or pass -source)")
		return 0
	}

	failed := 0
	for _, r := range results {
		if r.Success {
			fmt.Printf("%-12s ok    inserted=%d updated=%d extracted=%d skipped=%d duration=%s\n",
				r.Source, r.Inserted, r.Updated, r.Extracted, r.Skipped, r.Duration.Round(time.Millisecond))
		} else {
			failed++
			fmt.Printf("%-12s FAIL  %s\n", r.Source, r.Error)
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d source runs failed\n", failed, len(results))
		return 1
	}
	return 0
}

func printSources(reg *source.Registry, cfg *config.Config) {
	fmt.Printf("%-12s %-13s %s\n", "NAME", "STATUS", "DESCRIPTION")
	for _, info := range reg.Describe(cfg) {
		fmt.Printf("%-12s %-13s %s\n", info.Name, info.Status, info.Description)
	}
}
