// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package models

import "github.com/goccy/go-json"

// EpidataResponse is the common envelope of the Delphi Epidata APIs
// (FluView and COVIDcast share it): result == 1 carries rows in epidata;
// any other result is an empty or error response described by message.
// An empty or error envelope is logged and treated as zero records, never
// surfaced as a failure.
type EpidataResponse struct {
	Result  int               `json:"result"`
	Message string            `json:"message"`
	Epidata []json.RawMessage `json:"epidata"`
}

// OK reports whether the envelope carries data rows.
func (r *EpidataResponse) OK() bool {
	return r.Result == 1
}

// FluviewRow is one raw record of the FluView ILI endpoint. Fields the
// upstream omits or nulls decode as nil; the transform phase skips records
// it cannot make sense of rather than failing the batch.
type FluviewRow struct {
	Region      string   `json:"region"`
	Epiweek     int      `json:"epiweek"`
	ILI         *float64 `json:"ili"`          // weighted percent ILI
	NumPatients *int     `json:"num_patients"` // total patients seen
	NumILI      *int     `json:"num_ili"`
	Lag         int      `json:"lag"`
}

// CovidcastRow is one raw record of the COVIDcast endpoint.
type CovidcastRow struct {
	Source     string   `json:"source"`
	Signal     string   `json:"signal"`
	GeoType    string   `json:"geo_type"`
	GeoValue   string   `json:"geo_value"`
	TimeType   string   `json:"time_type"`
	TimeValue  int      `json:"time_value"` // epiweek (6 digits) or YYYYMMDD (8 digits)
	Value      *float64 `json:"value"`
	Stderr     *float64 `json:"stderr"`
	SampleSize *float64 `json:"sample_size"`
}
