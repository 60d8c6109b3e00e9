// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gudetimes1234/healthintel/internal/metrics"
	"github.com/gudetimes1234/healthintel/internal/models"
)

// UpsertResult summarizes one load-phase write.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Total returns the number of rows written.
func (r UpsertResult) Total() int {
	return r.Inserted + r.Updated
}

// upsertFunc performs one row's lookup-then-write inside tx and reports
// whether the row was inserted (true) or updated (false).
type upsertFunc func(ctx context.Context, tx *sql.Tx) (bool, error)

// runUpsertTx executes row upserts in a single transaction. Any failure
// rolls back the whole batch so a partial load never persists.
func (db *DB) runUpsertTx(ctx context.Context, rows []upsertFunc) (UpsertResult, error) {
	var result UpsertResult

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	for _, row := range rows {
		inserted, err := row(ctx, tx)
		if err != nil {
			return UpsertResult{}, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return result, nil
}

// UpsertFluRecords writes flu surveillance rows into the legacy table,
// updating rows whose (season, region, week_ending) key already exists.
func (db *DB) UpsertFluRecords(ctx context.Context, records []models.FluRecord) (result UpsertResult, err error) {
	defer metrics.ObserveQuery("upsert", "cdc_flu_data", time.Now(), &err)
	return db.runUpsertTx(ctx, fluRowFuncs(records))
}

// LoadFluBatch writes legacy flu rows and their unified observations in a
// single transaction, so a crash mid-load never leaves the two tables
// disagreeing.
func (db *DB) LoadFluBatch(ctx context.Context, records []models.FluRecord, observations []models.Observation) (result UpsertResult, err error) {
	defer metrics.ObserveQuery("upsert", "cdc_flu_data", time.Now(), &err)
	return db.runUpsertTx(ctx, append(fluRowFuncs(records), observationRowFuncs(observations)...))
}

// LoadCovidBatch writes legacy COVID rows and their unified observations in
// a single transaction.
func (db *DB) LoadCovidBatch(ctx context.Context, records []models.CovidRecord, observations []models.Observation) (result UpsertResult, err error) {
	defer metrics.ObserveQuery("upsert", "covid_data", time.Now(), &err)
	return db.runUpsertTx(ctx, append(covidRowFuncs(records), observationRowFuncs(observations)...))
}

func fluRowFuncs(records []models.FluRecord) []upsertFunc {
	rows := make([]upsertFunc, 0, len(records))
	for i := range records {
		rec := records[i]
		rows = append(rows, func(ctx context.Context, tx *sql.Tx) (bool, error) {
			var id int64
			lookupErr := tx.QueryRowContext(ctx,
				`SELECT id FROM cdc_flu_data WHERE season = ? AND region = ? AND week_ending = ?`,
				rec.Season, rec.Region, rec.WeekEnding,
			).Scan(&id)

			switch {
			case lookupErr == nil:
				_, err := tx.ExecContext(ctx,
					`UPDATE cdc_flu_data
					 SET percent_positive = ?, total_specimens = ?, timestamp = CURRENT_TIMESTAMP
					 WHERE id = ?`,
					rec.PercentPositive, rec.TotalSpecimens, id)
				if err != nil {
					return false, fmt.Errorf("failed to update flu record: %w", err)
				}
				return false, nil
			case errors.Is(lookupErr, sql.ErrNoRows):
				_, err := tx.ExecContext(ctx,
					`INSERT INTO cdc_flu_data (week_ending, season, region, percent_positive, total_specimens)
					 VALUES (?, ?, ?, ?, ?)`,
					rec.WeekEnding, rec.Season, rec.Region, rec.PercentPositive, rec.TotalSpecimens)
				if err != nil {
					return false, fmt.Errorf("failed to insert flu record: %w", err)
				}
				return true, nil
			default:
				return false, fmt.Errorf("failed to look up flu record: %w", lookupErr)
			}
		})
	}
	return rows
}

// UpsertCovidRecords writes COVID rows into the legacy table, updating rows
// whose (date, geo_type, geo_value) key already exists. Only non-nil metric
// columns overwrite existing values, so signals that arrive independently
// merge instead of clobbering each other.
func (db *DB) UpsertCovidRecords(ctx context.Context, records []models.CovidRecord) (result UpsertResult, err error) {
	defer metrics.ObserveQuery("upsert", "covid_data", time.Now(), &err)
	return db.runUpsertTx(ctx, covidRowFuncs(records))
}

func covidRowFuncs(records []models.CovidRecord) []upsertFunc {
	rows := make([]upsertFunc, 0, len(records))
	for i := range records {
		rec := records[i]
		rows = append(rows, func(ctx context.Context, tx *sql.Tx) (bool, error) {
			var id int64
			lookupErr := tx.QueryRowContext(ctx,
				`SELECT id FROM covid_data WHERE date = ? AND geo_type = ? AND geo_value = ?`,
				rec.Date, rec.GeoType, rec.GeoValue,
			).Scan(&id)

			switch {
			case lookupErr == nil:
				_, err := tx.ExecContext(ctx,
					`UPDATE covid_data
					 SET confirmed_cases = COALESCE(?, confirmed_cases),
					     deaths = COALESCE(?, deaths),
					     confirmed_7day_avg = COALESCE(?, confirmed_7day_avg),
					     deaths_7day_avg = COALESCE(?, deaths_7day_avg),
					     timestamp = CURRENT_TIMESTAMP
					 WHERE id = ?`,
					rec.ConfirmedCases, rec.Deaths, rec.Confirmed7DayAvg, rec.Deaths7DayAvg, id)
				if err != nil {
					return false, fmt.Errorf("failed to update covid record: %w", err)
				}
				return false, nil
			case errors.Is(lookupErr, sql.ErrNoRows):
				_, err := tx.ExecContext(ctx,
					`INSERT INTO covid_data (date, geo_type, geo_value, confirmed_cases, deaths, confirmed_7day_avg, deaths_7day_avg)
					 VALUES (?, ?, ?, ?, ?, ?, ?)`,
					rec.Date, rec.GeoType, rec.GeoValue,
					rec.ConfirmedCases, rec.Deaths, rec.Confirmed7DayAvg, rec.Deaths7DayAvg)
				if err != nil {
					return false, fmt.Errorf("failed to insert covid record: %w", err)
				}
				return true, nil
			default:
				return false, fmt.Errorf("failed to look up covid record: %w", lookupErr)
			}
		})
	}
	return rows
}

// UpsertObservations writes unified observations, updating rows whose
// (date, geo_type, geo_value, source, signal) key already exists.
func (db *DB) UpsertObservations(ctx context.Context, observations []models.Observation) (result UpsertResult, err error) {
	defer metrics.ObserveQuery("upsert", "public_observations", time.Now(), &err)
	return db.runUpsertTx(ctx, observationRowFuncs(observations))
}

func observationRowFuncs(observations []models.Observation) []upsertFunc {
	rows := make([]upsertFunc, 0, len(observations))
	for i := range observations {
		o := observations[i]
		rows = append(rows, func(ctx context.Context, tx *sql.Tx) (bool, error) {
			var id int64
			lookupErr := tx.QueryRowContext(ctx,
				`SELECT id FROM public_observations
				 WHERE date = ? AND geo_type = ? AND geo_value = ? AND source = ? AND signal = ?`,
				o.Date, o.GeoType, o.GeoValue, o.Source, o.Signal,
			).Scan(&id)

			switch {
			case lookupErr == nil:
				_, err := tx.ExecContext(ctx,
					`UPDATE public_observations
					 SET value = ?, stderr = ?, sample_size = ?, updated_at = CURRENT_TIMESTAMP
					 WHERE id = ?`,
					o.Value, o.Stderr, o.SampleSize, id)
				if err != nil {
					return false, fmt.Errorf("failed to update observation: %w", err)
				}
				return false, nil
			case errors.Is(lookupErr, sql.ErrNoRows):
				_, err := tx.ExecContext(ctx,
					`INSERT INTO public_observations (date, geo_type, geo_value, source, signal, value, stderr, sample_size)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					o.Date, o.GeoType, o.GeoValue, o.Source, o.Signal,
					o.Value, o.Stderr, o.SampleSize)
				if err != nil {
					return false, fmt.Errorf("failed to insert observation: %w", err)
				}
				return true, nil
			default:
				return false, fmt.Errorf("failed to look up observation: %w", lookupErr)
			}
		})
	}
	return rows
}
