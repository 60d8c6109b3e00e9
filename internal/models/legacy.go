// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package models

import "time"

// FluRecord is one row of the legacy cdc_flu_data table, keyed by
// (season, region, week_ending). The table predates the unified observation
// model and is preserved bit-compatible because existing dashboards read it
// directly. New ingestion writes both here and to the unified table.
type FluRecord struct {
	ID              int64     `json:"id"`
	WeekEnding      time.Time `json:"week_ending"`
	Season          string    `json:"season"` // "2024-25"
	Region          string    `json:"region"` // display name, e.g. "HHS Region 1"
	PercentPositive float64   `json:"percent_positive"`
	TotalSpecimens  int       `json:"total_specimens"`
	Timestamp       time.Time `json:"timestamp"`
}

// CovidRecord is one row of the legacy covid_data table, keyed by
// (date, geo_type, geo_value). All metric columns are nullable because the
// upstream signals arrive independently.
type CovidRecord struct {
	ID               int64     `json:"id"`
	Date             time.Time `json:"date"`
	GeoType          string    `json:"geo_type"`
	GeoValue         string    `json:"geo_value"`
	ConfirmedCases   *float64  `json:"confirmed_cases,omitempty"`
	Deaths           *float64  `json:"deaths,omitempty"`
	Confirmed7DayAvg *float64  `json:"confirmed_7day_avg,omitempty"`
	Deaths7DayAvg    *float64  `json:"deaths_7day_avg,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
