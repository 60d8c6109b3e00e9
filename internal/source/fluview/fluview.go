// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package fluview ingests CDC influenza-like-illness surveillance from the
// Delphi FluView endpoint. One upstream record becomes one legacy flu table
// row plus two unified observations (the ILI percentage and the patient
// count), loaded together in a single transaction.
package fluview

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
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
const SourceName = "fluview"

// Record is one transformed FluView row, carrying both its legacy-table
// shape and its unified-observation geography.
type Record struct {
	Epiweek       int
	WeekEnding    time.Time
	Season        string
	RegionCode    string // upstream code: nat, hhs1..hhs10
	RegionName    string // display name for the legacy table
	GeoType       string
	GeoValue      string
	ILIPct        float64
	TotalPatients int
}

// Source implements the fluview data source.
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
	return "CDC FluView influenza-like illness surveillance"
}

// weekRange computes the epiweek span to request: week 40 of the previous
// calendar year through the current week. The window always reaches back
// into the prior season, so an autumn run against a fresh database still
// backfills it.
func (s *Source) weekRange() (start, end epiweek.Epiweek) {
	end = epiweek.FromTime(s.now().UTC())
	return (end/100-1)*100 + 40, end
}

// Extract fetches the configured regions one at a time over the season's
// epiweek range. Empty and error envelopes are logged and skipped; only
// transport failures abort the phase.
func (s *Source) Extract(ctx context.Context) ([]json.RawMessage, error) {
	start, end := s.weekRange()
	fetcher := s.c.Fetcher()

	var raw []json.RawMessage
	for _, region := range s.cfg.Regions {
		params := url.Values{}
		params.Set("regions", region)
		params.Set("epiweeks", epiweek.Range(start, end))

		resp, err := fetcher.Fetch(ctx, s.cfg.API.BaseURL, params, s.cfg.API.Timeout)
		if err != nil {
			return nil, fmt.Errorf("fluview fetch for region %q failed: %w", region, err)
		}
		if !resp.OK() {
			logging.Warn().
				Str("region", region).
				Int("result", resp.Result).
				Str("message", resp.Message).
				Msg("FluView returned no data for region")
			continue
		}
		raw = append(raw, resp.Epidata...)
	}
	return raw, nil
}

// Transform decodes raw rows and derives the calendar fields and geography.
// Rows missing the fields the pipeline needs are skipped with a warning.
func (s *Source) Transform(raw []json.RawMessage) (any, int, error) {
	rows, skipped := epidata.DecodeRows[models.FluviewRow](raw)

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		if row.Region == "" || row.ILI == nil || row.NumPatients == nil {
			logging.Warn().
				Str("region", row.Region).
				Int("epiweek", row.Epiweek).
				Msg("Skipping incomplete FluView row")
			skipped++
			continue
		}

		weekEnding, err := epiweek.ToDate(row.Epiweek)
		if err != nil {
			logging.Warn().Err(err).Int("epiweek", row.Epiweek).Msg("Skipping FluView row with invalid epiweek")
			skipped++
			continue
		}

		geoType, geoValue, display := regionInfo(row.Region)
		records = append(records, Record{
			Epiweek:       row.Epiweek,
			WeekEnding:    weekEnding,
			Season:        epiweek.Season(row.Epiweek),
			RegionCode:    row.Region,
			RegionName:    display,
			GeoType:       geoType,
			GeoValue:      geoValue,
			ILIPct:        *row.ILI,
			TotalPatients: *row.NumPatients,
		})
	}
	return records, skipped, nil
}

// regionInfo maps an upstream region code onto the normalized geography and
// a display name. Unknown codes pass through under geo_type "unknown" so a
// new upstream region shows up in the data instead of vanishing.
func regionInfo(code string) (geoType, geoValue, display string) {
	if code == "nat" {
		return "nation", "us", "National"
	}
	if n, ok := strings.CutPrefix(code, "hhs"); ok {
		if num, err := strconv.Atoi(n); err == nil && num >= 1 && num <= 10 {
			return "hhs_region", code, fmt.Sprintf("HHS Region %d", num)
		}
	}
	return "unknown", code, code
}

// Validate applies per-record range checks and the batch quality breaker.
func (s *Source) Validate(batch any) (any, error) {
	records, ok := batch.([]Record)
	if !ok {
		return nil, fmt.Errorf("unexpected batch type %T", batch)
	}

	v := s.cfg.Validation
	minPct, maxPct := 0.0, 100.0
	if len(v.PercentRange) == 2 {
		minPct, maxPct = v.PercentRange[0], v.PercentRange[1]
	}
	maxErrorRate := v.MaxErrorRate
	if maxErrorRate == 0 {
		maxErrorRate = 0.5
	}

	valid := make([]Record, 0, len(records))
	invalid := 0
	for _, rec := range records {
		switch {
		case rec.ILIPct < minPct || rec.ILIPct > maxPct:
			logging.Warn().
				Float64("ili_pct", rec.ILIPct).
				Str("region", rec.RegionCode).
				Int("epiweek", rec.Epiweek).
				Msg("FluView record failed percent range check")
			invalid++
		case rec.TotalPatients < v.MinSpecimens:
			logging.Warn().
				Int("total_patients", rec.TotalPatients).
				Str("region", rec.RegionCode).
				Int("epiweek", rec.Epiweek).
				Msg("FluView record below minimum patient count")
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

// Load writes the legacy flu rows and the expanded unified observations in
// one transaction.
func (s *Source) Load(ctx context.Context, valid any) (database.UpsertResult, error) {
	records, ok := valid.([]Record)
	if !ok {
		return database.UpsertResult{}, fmt.Errorf("unexpected batch type %T", valid)
	}

	db, err := s.c.DB()
	if err != nil {
		return database.UpsertResult{}, err
	}

	legacy := make([]models.FluRecord, 0, len(records))
	observations := make([]models.Observation, 0, 2*len(records))
	for _, rec := range records {
		legacy = append(legacy, models.FluRecord{
			WeekEnding:      rec.WeekEnding,
			Season:          rec.Season,
			Region:          rec.RegionName,
			PercentPositive: rec.ILIPct,
			TotalSpecimens:  rec.TotalPatients,
		})

		ili := rec.ILIPct
		patients := float64(rec.TotalPatients)
		sample := rec.TotalPatients
		observations = append(observations,
			models.Observation{
				Date: rec.WeekEnding, GeoType: rec.GeoType, GeoValue: rec.GeoValue,
				Source: SourceName, Signal: "ili_pct", Value: &ili,
			},
			models.Observation{
				Date: rec.WeekEnding, GeoType: rec.GeoType, GeoValue: rec.GeoValue,
				Source: SourceName, Signal: "total_patients", Value: &patients, SampleSize: &sample,
			},
		)
	}

	return db.LoadFluBatch(ctx, legacy, observations)
}
