// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

/*
schema.go - Database Schema Management

This file manages the DuckDB schema for the surveillance store.

Tables:
  - public_observations: Unified observation table for public signals.
    Natural key (date, geo_type, geo_value, source, signal).
  - tenant_observations: Tenant-scoped observations (uploads, EHR feeds).
    Natural key adds tenant_id; reads go through the tenant session.
  - dim_geo_locations: Geography reference data (display names, hierarchy).
  - dim_signals: Signal reference data (display metadata, visibility).
  - cdc_flu_data: Legacy flat flu table, keyed (season, region, week_ending).
  - covid_data: Legacy flat COVID table, keyed (date, geo_type, geo_value).

Schema creation is idempotent: every statement uses IF NOT EXISTS so that
InitSchema can run at every startup.
*/
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 60*time.Second)
}

// InitSchema creates all tables, indexes and reference rows. Safe to call
// repeatedly.
func (db *DB) InitSchema(ctx context.Context) error {
	ctx, cancel := schemaContext(ctx)
	defer cancel()

	for _, query := range schemaStatements() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %s: %w", query, err)
		}
	}

	if err := db.seedDimensions(ctx); err != nil {
		return fmt.Errorf("failed to seed dimension tables: %w", err)
	}

	return nil
}

func schemaStatements() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_public_observations START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_tenant_observations START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_dim_geo_locations START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_dim_signals START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_cdc_flu_data START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_covid_data START 1`,

		`CREATE TABLE IF NOT EXISTS public_observations (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_public_observations'),
			date DATE NOT NULL,
			geo_type TEXT NOT NULL,
			geo_value TEXT NOT NULL,
			source TEXT NOT NULL,
			signal TEXT NOT NULL,
			value DOUBLE,
			stderr DOUBLE,
			sample_size INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (date, geo_type, geo_value, source, signal)
		)`,

		`CREATE TABLE IF NOT EXISTS tenant_observations (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_tenant_observations'),
			tenant_id TEXT NOT NULL,
			date DATE NOT NULL,
			geo_type TEXT NOT NULL,
			geo_value TEXT NOT NULL,
			source TEXT NOT NULL,
			signal TEXT NOT NULL,
			value DOUBLE,
			stderr DOUBLE,
			sample_size INTEGER,
			metadata TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, date, geo_type, geo_value, source, signal)
		)`,

		`CREATE TABLE IF NOT EXISTS dim_geo_locations (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_dim_geo_locations'),
			geo_type TEXT NOT NULL,
			geo_value TEXT NOT NULL,
			name TEXT NOT NULL,
			abbreviation TEXT,
			parent_geo_type TEXT,
			parent_geo_value TEXT,
			population BIGINT,
			latitude DOUBLE,
			longitude DOUBLE,
			fips_code TEXT,
			UNIQUE (geo_type, geo_value)
		)`,

		`CREATE TABLE IF NOT EXISTS dim_signals (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_dim_signals'),
			source TEXT NOT NULL,
			signal TEXT NOT NULL,
			display_name TEXT NOT NULL,
			description TEXT,
			category TEXT,
			subcategory TEXT,
			unit TEXT,
			value_type TEXT,
			typical_lag_days INTEGER,
			update_frequency TEXT,
			format_string TEXT,
			is_active BOOLEAN DEFAULT TRUE,
			is_public BOOLEAN DEFAULT TRUE,
			UNIQUE (source, signal)
		)`,

		`CREATE TABLE IF NOT EXISTS cdc_flu_data (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_cdc_flu_data'),
			week_ending DATE NOT NULL,
			season TEXT NOT NULL,
			region TEXT NOT NULL,
			percent_positive DOUBLE NOT NULL,
			total_specimens INTEGER NOT NULL,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (season, region, week_ending)
		)`,

		`CREATE TABLE IF NOT EXISTS covid_data (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_covid_data'),
			date DATE NOT NULL,
			geo_type TEXT NOT NULL,
			geo_value TEXT NOT NULL,
			confirmed_cases DOUBLE,
			deaths DOUBLE,
			confirmed_7day_avg DOUBLE,
			deaths_7day_avg DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (date, geo_type, geo_value)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pub_obs_source_signal
			ON public_observations (source, signal, date)`,
		`CREATE INDEX IF NOT EXISTS idx_pub_obs_geo
			ON public_observations (geo_type, geo_value)`,
		`CREATE INDEX IF NOT EXISTS idx_tenant_obs_tenant
			ON tenant_observations (tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_flu_season
			ON cdc_flu_data (season, week_ending)`,
		`CREATE INDEX IF NOT EXISTS idx_covid_geo
			ON covid_data (geo_type, geo_value, date)`,
	}
}

// seedDimensions inserts the reference rows the bundled sources depend on.
// ON CONFLICT DO NOTHING keeps operator edits to display metadata intact
// across restarts.
func (db *DB) seedDimensions(ctx context.Context) error {
	geoInsert := `INSERT INTO dim_geo_locations (geo_type, geo_value, name, abbreviation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (geo_type, geo_value) DO NOTHING`

	type geoSeed struct {
		geoType, geoValue, name string
		abbr                    *string
	}

	us := "US"
	geos := []geoSeed{
		{"nation", "us", "United States", &us},
	}
	for i := 1; i <= 10; i++ {
		geos = append(geos, geoSeed{
			geoType:  "hhs_region",
			geoValue: fmt.Sprintf("hhs%d", i),
			name:     fmt.Sprintf("HHS Region %d", i),
		})
	}

	for _, g := range geos {
		if _, err := db.conn.ExecContext(ctx, geoInsert, g.geoType, g.geoValue, g.name, g.abbr); err != nil {
			return fmt.Errorf("failed to seed geo location %s/%s: %w", g.geoType, g.geoValue, err)
		}
	}

	signalInsert := `INSERT INTO dim_signals
		(source, signal, display_name, category, subcategory, unit, update_frequency, is_active, is_public)
		VALUES (?, ?, ?, ?, ?, ?, ?, TRUE, TRUE)
		ON CONFLICT (source, signal) DO NOTHING`

	signals := [][]any{
		{"fluview", "ili_pct", "Influenza-Like Illness %", "respiratory", "flu", "percent", "weekly"},
		{"fluview", "total_patients", "Total Patients Seen", "respiratory", "flu", "count", "weekly"},
		{"covidcast", "confirmed_admissions_covid_ew", "Confirmed COVID-19 Hospital Admissions", "hospitalization", "covid", "count", "weekly"},
	}

	for _, s := range signals {
		if _, err := db.conn.ExecContext(ctx, signalInsert, s...); err != nil {
			return fmt.Errorf("failed to seed signal %v/%v: %w", s[0], s[1], err)
		}
	}

	return nil
}
