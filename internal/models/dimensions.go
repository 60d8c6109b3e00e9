// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package models

// GeoLocation maps a (geo_type, geo_value) pair to display metadata.
// Reference data: the ETL core only reads it, the dashboard uses it for
// labels, per-capita normalization and map placement.
type GeoLocation struct {
	ID             int64    `json:"id"`
	GeoType        string   `json:"geo_type"`
	GeoValue       string   `json:"geo_value"`
	Name           string   `json:"name"`
	Abbreviation   *string  `json:"abbreviation,omitempty"`
	ParentGeoType  *string  `json:"parent_geo_type,omitempty"`
	ParentGeoValue *string  `json:"parent_geo_value,omitempty"`
	Population     *int64   `json:"population,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	FIPSCode       *string  `json:"fips_code,omitempty"`
}

// SignalDefinition maps a (source, signal) pair to display metadata for the
// dashboard. IsPublic distinguishes signals every tenant may see from
// tenant-only signals.
type SignalDefinition struct {
	ID              int64   `json:"id"`
	Source          string  `json:"source"`
	Signal          string  `json:"signal"`
	DisplayName     string  `json:"display_name"`
	Description     *string `json:"description,omitempty"`
	Category        *string `json:"category,omitempty"`    // respiratory, hospitalization
	Subcategory     *string `json:"subcategory,omitempty"` // covid, flu, rsv
	Unit            *string `json:"unit,omitempty"`        // count, percent, rate_per_100k
	ValueType       *string `json:"value_type,omitempty"`  // integer, float, percentage
	TypicalLagDays  *int    `json:"typical_lag_days,omitempty"`
	UpdateFrequency *string `json:"update_frequency,omitempty"` // daily, weekly
	FormatString    *string `json:"format_string,omitempty"`
	IsActive        bool    `json:"is_active"`
	IsPublic        bool    `json:"is_public"`
}
