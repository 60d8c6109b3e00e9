// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gudetimes1234/healthintel/internal/metrics"
	"github.com/gudetimes1234/healthintel/internal/models"
)

// FluRecords returns the legacy flu table ordered by week, newest first.
// A zero limit returns all rows.
func (db *DB) FluRecords(ctx context.Context, limit int) (records []models.FluRecord, err error) {
	defer metrics.ObserveQuery("select", "cdc_flu_data", time.Now(), &err)

	query := `SELECT id, week_ending, season, region, percent_positive, total_specimens, timestamp
	  FROM cdc_flu_data
	 ORDER BY week_ending DESC, region`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flu records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.FluRecord
		if err := rows.Scan(&r.ID, &r.WeekEnding, &r.Season, &r.Region,
			&r.PercentPositive, &r.TotalSpecimens, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan flu record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CovidRecords returns the legacy COVID table ordered by date, newest first.
// A zero limit returns all rows.
func (db *DB) CovidRecords(ctx context.Context, limit int) (records []models.CovidRecord, err error) {
	defer metrics.ObserveQuery("select", "covid_data", time.Now(), &err)

	query := `SELECT id, date, geo_type, geo_value, confirmed_cases, deaths,
	       confirmed_7day_avg, deaths_7day_avg, timestamp
	  FROM covid_data
	 ORDER BY date DESC, geo_type, geo_value`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query covid records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.CovidRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.GeoType, &r.GeoValue,
			&r.ConfirmedCases, &r.Deaths, &r.Confirmed7DayAvg, &r.Deaths7DayAvg,
			&r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan covid record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ObservationFilter narrows an observation query. Zero-valued fields are
// not applied.
type ObservationFilter struct {
	Source   string
	Signal   string
	GeoType  string
	GeoValue string
	Since    time.Time
	Limit    int
}

// Observations returns unified observations matching the filter, ordered by
// date descending.
func (db *DB) Observations(ctx context.Context, filter ObservationFilter) (obs []models.Observation, err error) {
	defer metrics.ObserveQuery("select", "public_observations", time.Now(), &err)

	query := `SELECT id, date, geo_type, geo_value, source, signal, value, stderr, sample_size, created_at, updated_at
	  FROM public_observations WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Signal != "" {
		query += " AND signal = ?"
		args = append(args, filter.Signal)
	}
	if filter.GeoType != "" {
		query += " AND geo_type = ?"
		args = append(args, filter.GeoType)
	}
	if filter.GeoValue != "" {
		query += " AND geo_value = ?"
		args = append(args, filter.GeoValue)
	}
	if !filter.Since.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.Since)
	}
	query += " ORDER BY date DESC, geo_type, geo_value, signal"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.ID, &o.Date, &o.GeoType, &o.GeoValue, &o.Source,
			&o.Signal, &o.Value, &o.Stderr, &o.SampleSize,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// DistinctFluRegions returns the region display names present in the legacy
// flu table, sorted.
func (db *DB) DistinctFluRegions(ctx context.Context) ([]string, error) {
	return db.distinctStrings(ctx, "cdc_flu_data",
		`SELECT DISTINCT region FROM cdc_flu_data ORDER BY region`)
}

// DistinctCovidGeoValues returns geo values present in the legacy COVID
// table for one geo type, sorted.
func (db *DB) DistinctCovidGeoValues(ctx context.Context, geoType string) ([]string, error) {
	return db.distinctStrings(ctx, "covid_data",
		`SELECT DISTINCT geo_value FROM covid_data WHERE geo_type = ? ORDER BY geo_value`, geoType)
}

// DistinctGeoValues returns geo values present in the unified table for one
// source and geo type, sorted.
func (db *DB) DistinctGeoValues(ctx context.Context, source, geoType string) ([]string, error) {
	return db.distinctStrings(ctx, "public_observations",
		`SELECT DISTINCT geo_value FROM public_observations WHERE source = ? AND geo_type = ? ORDER BY geo_value`,
		source, geoType)
}

func (db *DB) distinctStrings(ctx context.Context, table, query string, args ...any) (values []string, err error) {
	defer metrics.ObserveQuery("select", table, time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s value: %w", table, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// SignalDefinitions returns the signal dimension rows, active first.
func (db *DB) SignalDefinitions(ctx context.Context) (signals []models.SignalDefinition, err error) {
	defer metrics.ObserveQuery("select", "dim_signals", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, source, signal, display_name, description, category, subcategory,
		        unit, value_type, typical_lag_days, update_frequency, format_string,
		        is_active, is_public
		   FROM dim_signals
		  ORDER BY is_active DESC, source, signal`)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.SignalDefinition
		if err := rows.Scan(&s.ID, &s.Source, &s.Signal, &s.DisplayName,
			&s.Description, &s.Category, &s.Subcategory, &s.Unit, &s.ValueType,
			&s.TypicalLagDays, &s.UpdateFrequency, &s.FormatString,
			&s.IsActive, &s.IsPublic); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// GeoLocations returns the geography dimension rows, optionally filtered by
// geo type.
func (db *DB) GeoLocations(ctx context.Context, geoType string) (geos []models.GeoLocation, err error) {
	defer metrics.ObserveQuery("select", "dim_geo_locations", time.Now(), &err)

	query := `SELECT id, geo_type, geo_value, name, abbreviation, parent_geo_type,
	       parent_geo_value, population, latitude, longitude, fips_code
	  FROM dim_geo_locations`
	var args []any
	if geoType != "" {
		query += " WHERE geo_type = ?"
		args = append(args, geoType)
	}
	query += " ORDER BY geo_type, geo_value"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query geo locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g models.GeoLocation
		if err := rows.Scan(&g.ID, &g.GeoType, &g.GeoValue, &g.Name,
			&g.Abbreviation, &g.ParentGeoType, &g.ParentGeoValue,
			&g.Population, &g.Latitude, &g.Longitude, &g.FIPSCode); err != nil {
			return nil, fmt.Errorf("failed to scan geo location: %w", err)
		}
		geos = append(geos, g)
	}
	return geos, rows.Err()
}
