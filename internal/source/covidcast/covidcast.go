// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package covidcast ingests COVID-19 hospitalization signals from the
// Delphi COVIDcast endpoint. Each record lands in the legacy covid_data
// table (merged per date and geography) and as a unified observation,
// loaded together in a single transaction.
package covidcast

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/container"
	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/epidata"
	"github.com/gudetimes1234/healthintel/internal/epiweek"
	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/models"
	"github.com/gudetimes1234/healthintel/internal/source"
)

// SourceName is the registry key for this source.
const SourceName = "covidcast"

// Record is one transformed COVIDcast row.
type Record struct {
	Date       time.Time
	GeoType    string
	GeoValue   string
	Signal     string
	Value      *float64
	Stderr     *float64
	SampleSize *int
}

// Source implements the covidcast data source.
type Source struct {
	cfg config.SourceConfig
	c   *container.Container
	now func() time.Time
}

// New builds the source from the capability container.
func New(c *container.Container) (source.DataSource, error) {
	cfg, err := c.Config().Source(SourceName)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, c: c, now: time.Now}, nil
}

func (s *Source) Name() string { return SourceName }

func (s *Source) Description() string {
	if s.cfg.Description != "" {
		return s.cfg.Description
	}
	return "Delphi COVIDcast hospitalization signals"
}

// weekRange computes the requested epiweek span from the configured
// lookback window.
func (s *Source) weekRange() (start, end epiweek.Epiweek) {
	lookback := s.cfg.LookbackWeeks
	if lookback <= 0 {
		lookback = 12
	}
	nowUTC := s.now().UTC()
	end = epiweek.FromTime(nowUTC)
	start = epiweek.FromTime(nowUTC.AddDate(0, 0, -7*lookback))
	return start, end
}

// Extract fetches one geo level at a time. The national series is keyed by
// the single geo value "us"; every other level requests the wildcard.
func (s *Source) Extract(ctx context.Context) ([]json.RawMessage, error) {
	start, end := s.weekRange()
	fetcher := s.c.Fetcher()

	var raw []json.RawMessage
	for _, geoLevel := range s.cfg.GeoLevels {
		params := url.Values{}
		params.Set("data_source", s.cfg.DataSource)
		params.Set("signals", s.cfg.Signal)
		params.Set("time_type", s.cfg.TimeType)
		params.Set("time_values", epiweek.Range(start, end))
		params.Set("geo_type", geoLevel)
		if geoLevel == "nation" {
			params.Set("geo_value", "us")
		} else {
			params.Set("geo_value", "*")
		}

		resp, err := fetcher.Fetch(ctx, s.cfg.API.BaseURL, params, s.cfg.API.Timeout)
		if err != nil {
			return nil, fmt.Errorf("covidcast fetch for geo level %q failed: %w", geoLevel, err)
		}
		if !resp.OK() {
			logging.Warn().
				Str("geo_level", geoLevel).
				Int("result", resp.Result).
				Str("message", resp.Message).
				Msg("COVIDcast returned no data for geo level")
			continue
		}
		raw = append(raw, resp.Epidata...)
	}
	return raw, nil
}

// Transform decodes rows, resolves the mixed-format date field, and merges
// duplicates on (date, geo_type, geo_value, signal), last row winning.
func (s *Source) Transform(raw []json.RawMessage) (any, int, error) {
	rows, skipped := epidata.DecodeRows[models.CovidcastRow](raw)

	type key struct {
		date     string
		geoType  string
		geoValue string
		signal   string
	}
	seen := make(map[key]int, len(rows))

	merged := 0
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		date, err := epiweek.DecodeAPIDate(row.TimeValue)
		if err != nil {
			logging.Warn().Err(err).Int("time_value", row.TimeValue).Msg("Skipping COVIDcast row with invalid date")
			skipped++
			continue
		}

		signal := row.Signal
		if signal == "" {
			signal = s.cfg.Signal
		}

		var sample *int
		if row.SampleSize != nil {
			n := int(*row.SampleSize)
			sample = &n
		}

		rec := Record{
			Date:       date,
			GeoType:    row.GeoType,
			GeoValue:   row.GeoValue,
			Signal:     signal,
			Value:      row.Value,
			Stderr:     row.Stderr,
			SampleSize: sample,
		}

		k := key{date.Format("2006-01-02"), rec.GeoType, rec.GeoValue, rec.Signal}
		if idx, dup := seen[k]; dup {
			records[idx] = rec
			merged++
			continue
		}
		seen[k] = len(records)
		records = append(records, rec)
	}
	if merged > 0 {
		// Merged rows are kept, not dropped, so they are not part of the
		// skipped count.
		logging.Debug().Int("merged", merged).Msg("Merged duplicate COVIDcast rows")
	}
	return records, skipped, nil
}

// Validate applies required-field and plausibility checks with the batch
// quality breaker.
func (s *Source) Validate(batch any) (any, error) {
	records, ok := batch.([]Record)
	if !ok {
		return nil, fmt.Errorf("unexpected batch type %T", batch)
	}

	v := s.cfg.Validation
	maxErrorRate := v.MaxErrorRate
	if maxErrorRate == 0 {
		maxErrorRate = 0.5
	}

	valid := make([]Record, 0, len(records))
	invalid := 0
	for _, rec := range records {
		switch {
		case rec.GeoType == "" || rec.GeoValue == "":
			logging.Warn().Time("date", rec.Date).Msg("COVIDcast record missing geography")
			invalid++
		case rec.Value == nil:
			logging.Warn().
				Str("geo_value", rec.GeoValue).
				Time("date", rec.Date).
				Msg("COVIDcast record carries no metric value")
			invalid++
		case v.MaxValue > 0 && *rec.Value > v.MaxValue:
			logging.Warn().
				Float64("value", *rec.Value).
				Float64("max_value", v.MaxValue).
				Str("geo_value", rec.GeoValue).
				Msg("COVIDcast record exceeds plausible maximum")
			invalid++
		case *rec.Value < 0:
			logging.Warn().
				Float64("value", *rec.Value).
				Str("geo_value", rec.GeoValue).
				Msg("COVIDcast record carries negative value")
			invalid++
		default:
			valid = append(valid, rec)
		}
	}

	if err := source.CheckBatchQuality(SourceName, len(records), invalid, maxErrorRate); err != nil {
		return nil, err
	}
	return valid, nil
}

// Load merges records into legacy covid_data rows (one per date and
// geography, signals mapped onto metric columns) and writes them together
// with the unified observations in one transaction.
func (s *Source) Load(ctx context.Context, valid any) (database.UpsertResult, error) {
	records, ok := valid.([]Record)
	if !ok {
		return database.UpsertResult{}, fmt.Errorf("unexpected batch type %T", valid)
	}

	db, err := s.c.DB()
	if err != nil {
		return database.UpsertResult{}, err
	}

	type legacyKey struct {
		date     string
		geoType  string
		geoValue string
	}
	legacyIdx := make(map[legacyKey]int)
	var legacy []models.CovidRecord
	observations := make([]models.Observation, 0, len(records))

	for _, rec := range records {
		k := legacyKey{rec.Date.Format("2006-01-02"), rec.GeoType, rec.GeoValue}
		idx, ok := legacyIdx[k]
		if !ok {
			idx = len(legacy)
			legacyIdx[k] = idx
			legacy = append(legacy, models.CovidRecord{
				Date: rec.Date, GeoType: rec.GeoType, GeoValue: rec.GeoValue,
			})
		}
		applySignal(&legacy[idx], rec.Signal, rec.Value)

		observations = append(observations, models.Observation{
			Date:       rec.Date,
			GeoType:    rec.GeoType,
			GeoValue:   rec.GeoValue,
			Source:     SourceName,
			Signal:     rec.Signal,
			Value:      rec.Value,
			Stderr:     rec.Stderr,
			SampleSize: rec.SampleSize,
		})
	}

	return db.LoadCovidBatch(ctx, legacy, observations)
}

// applySignal maps a COVIDcast signal name onto the legacy metric column it
// historically populated. Smoothed (7-day average) variants carry "7dav" in
// the signal name upstream; hospital admissions signals have always been
// written to the confirmed_7day_avg column, which the legacy dashboard reads
// as weekly admissions.
func applySignal(rec *models.CovidRecord, signal string, value *float64) {
	smoothed := strings.Contains(signal, "7dav")
	deaths := strings.Contains(signal, "deaths")
	admissions := strings.Contains(signal, "admissions")

	switch {
	case deaths && smoothed:
		rec.Deaths7DayAvg = value
	case deaths:
		rec.Deaths = value
	case smoothed || admissions:
		rec.Confirmed7DayAvg = value
	default:
		rec.ConfirmedCases = value
	}
}
