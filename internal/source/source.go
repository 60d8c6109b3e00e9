// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package source defines the pluggable data source contract and the
// orchestration that runs every source through the same four-phase
// pipeline: extract, transform, validate, load.
//
// Orchestration lives OUTSIDE the interface. A source implements the four
// phases and nothing else; Run owns phase ordering, timing, logging,
// metrics, and the single point where errors become a failed RunResult.
// Run never propagates an error: one misbehaving source must not take down
// a multi-source invocation.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/metrics"
)

// ErrBatchQuality is returned by the validate phase when the fraction of
// invalid records exceeds the configured threshold. It fails the whole
// batch: a feed that is mostly garbage should not be partially loaded.
var ErrBatchQuality = errors.New("batch failed quality threshold")

// DataSource is the contract every pluggable source implements.
//
// Transform, Validate and Load pass the batch as an opaque value: each
// source owns its record type, and the orchestrator never inspects the
// batch, only threads it from one phase to the next.
type DataSource interface {
	// Name is the stable registry key, e.g. "fluview".
	Name() string
	// Description is a one-line human-readable summary.
	Description() string

	// Extract fetches raw rows from the upstream API.
	Extract(ctx context.Context) ([]json.RawMessage, error)
	// Transform decodes and normalizes raw rows into the source's record
	// type, returning the batch and the number of malformed rows skipped.
	Transform(raw []json.RawMessage) (batch any, skipped int, err error)
	// Validate filters the batch down to records that pass the source's
	// quality rules, or fails entirely with ErrBatchQuality.
	Validate(batch any) (valid any, err error)
	// Load writes the validated batch idempotently.
	Load(ctx context.Context, valid any) (database.UpsertResult, error)
}

// RunResult is the outcome of one pipeline run for one source.
type RunResult struct {
	RunID     uuid.UUID     `json:"run_id"`
	Source    string        `json:"source"`
	Success   bool          `json:"success"`
	Extracted int           `json:"extracted"`
	Skipped   int           `json:"skipped"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Run executes the four phases in strict sequence and converts any phase
// error into a failed RunResult.
func Run(ctx context.Context, src DataSource) (result RunResult) {
	result = RunResult{
		RunID:  uuid.New(),
		Source: src.Name(),
	}
	start := time.Now()
	log := logging.With().
		Str("source", result.Source).
		Str("run_id", result.RunID.String()).
		Logger()

	defer func() {
		result.Duration = time.Since(start)
		metrics.PipelineRunDuration.WithLabelValues(result.Source).Observe(result.Duration.Seconds())
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		metrics.PipelineRuns.WithLabelValues(result.Source, outcome).Inc()
	}()

	fail := func(phase string, err error) RunResult {
		log.Error().Err(err).Str("phase", phase).Msg("Pipeline run failed")
		result.Success = false
		result.Error = fmt.Sprintf("%s: %v", phase, err)
		return result
	}

	log.Info().Msg("Pipeline run starting")

	raw, err := timedPhase(result.Source, "extract", func() ([]json.RawMessage, error) {
		return src.Extract(ctx)
	})
	if err != nil {
		return fail("extract", err)
	}
	result.Extracted = len(raw)
	metrics.RecordsExtracted.WithLabelValues(result.Source).Add(float64(len(raw)))

	type transformed struct {
		batch   any
		skipped int
	}
	tr, err := timedPhase(result.Source, "transform", func() (transformed, error) {
		batch, skipped, err := src.Transform(raw)
		return transformed{batch, skipped}, err
	})
	if err != nil {
		return fail("transform", err)
	}
	result.Skipped += tr.skipped
	metrics.RecordsSkipped.WithLabelValues(result.Source, "transform").Add(float64(tr.skipped))

	valid, err := timedPhase(result.Source, "validate", func() (any, error) {
		return src.Validate(tr.batch)
	})
	if err != nil {
		return fail("validate", err)
	}

	loaded, err := timedPhase(result.Source, "load", func() (database.UpsertResult, error) {
		return src.Load(ctx, valid)
	})
	if err != nil {
		return fail("load", err)
	}

	result.Success = true
	result.Inserted = loaded.Inserted
	result.Updated = loaded.Updated
	result.Total = loaded.Total()
	metrics.RecordsLoaded.WithLabelValues(result.Source, "insert").Add(float64(loaded.Inserted))
	metrics.RecordsLoaded.WithLabelValues(result.Source, "update").Add(float64(loaded.Updated))

	log.Info().
		Int("extracted", result.Extracted).
		Int("skipped", result.Skipped).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Dur("duration", time.Since(start)).
		Msg("Pipeline run completed")

	return result
}

// timedPhase runs one phase and records its duration.
func timedPhase[T any](source, phase string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	metrics.PipelinePhaseDuration.WithLabelValues(source, phase).Observe(time.Since(start).Seconds())
	return out, err
}

// CheckBatchQuality enforces the validate-phase circuit breaker: if the
// invalid fraction strictly exceeds maxErrorRate the whole batch fails.
// Empty batches pass trivially.
func CheckBatchQuality(sourceName string, total, invalid int, maxErrorRate float64) error {
	if total == 0 || invalid == 0 {
		return nil
	}
	errorRate := float64(invalid) / float64(total)
	if errorRate > maxErrorRate {
		return fmt.Errorf("%w: %d of %d records invalid (rate %.2f, threshold %.2f)",
			ErrBatchQuality, invalid, total, errorRate, maxErrorRate)
	}
	logging.Warn().
		Str("source", sourceName).
		Int("invalid", invalid).
		Int("total", total).
		Float64("error_rate", errorRate).
		Msg("Batch contains invalid records below quality threshold")
	return nil
}
