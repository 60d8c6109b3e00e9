// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package models defines the persisted data model shared by the ETL sources
// and the dashboard read API: the unified observation tables, the geography
// and signal dimension tables, and the legacy per-source flat tables kept
// bit-compatible for backward reads.
package models

import "time"

// Observation is one row of the unified public observation table. The tuple
// (Date, GeoType, GeoValue, Source, Signal) is the natural key: re-ingesting
// the same tuple updates Value/Stderr/SampleSize in place and refreshes
// UpdatedAt, never inserting a duplicate.
type Observation struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date"`
	GeoType    string    `json:"geo_type"`  // nation, state, hhs_region, county
	GeoValue   string    `json:"geo_value"` // us, ca, hhs1, 06037
	Source     string    `json:"source"`    // fluview, covidcast
	Signal     string    `json:"signal"`    // ili_pct, confirmed_admissions_covid_ew
	Value      *float64  `json:"value"`
	Stderr     *float64  `json:"stderr,omitempty"`
	SampleSize *int      `json:"sample_size,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NaturalKey returns the identifying tuple of the observation, used for
// upsert lookups and deduplication during extraction.
func (o *Observation) NaturalKey() ObservationKey {
	return ObservationKey{
		Date:     o.Date.Format("2006-01-02"),
		GeoType:  o.GeoType,
		GeoValue: o.GeoValue,
		Source:   o.Source,
		Signal:   o.Signal,
	}
}

// ObservationKey is the comparable form of an observation's natural key.
type ObservationKey struct {
	Date     string
	GeoType  string
	GeoValue string
	Source   string
	Signal   string
}

// TenantObservation is one row of the tenant-scoped observation table.
// Identical to Observation plus the tenant dimension: the natural key is
// (TenantID, Date, GeoType, GeoValue, Source, Signal). Row-level isolation
// on this table is enforced by the tenant-aware database session.
type TenantObservation struct {
	ID         int64     `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Date       time.Time `json:"date"`
	GeoType    string    `json:"geo_type"`
	GeoValue   string    `json:"geo_value"`
	Source     string    `json:"source"` // upload, ehr_integration, custom_api
	Signal     string    `json:"signal"`
	Value      *float64  `json:"value"`
	Stderr     *float64  `json:"stderr,omitempty"`
	SampleSize *int      `json:"sample_size,omitempty"`
	Metadata   *string   `json:"metadata,omitempty"` // additional context as JSON
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
