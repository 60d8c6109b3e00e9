// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package fluview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/container"
	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/models"
	"github.com/gudetimes1234/healthintel/internal/source"
)

// fakeFetcher serves canned envelopes keyed by the regions parameter.
type fakeFetcher struct {
	responses map[string]*models.EpidataResponse
	err       error
	calls     []url.Values
}

func (f *fakeFetcher) Fetch(ctx context.Context, baseURL string, params url.Values, timeout time.Duration) (*models.EpidataResponse, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[params.Get("regions")]; ok {
		return resp, nil
	}
	return &models.EpidataResponse{Result: -2, Message: "no results"}, nil
}

func envelope(rows ...string) *models.EpidataResponse {
	resp := &models.EpidataResponse{Result: 1, Message: "success"}
	for _, r := range rows {
		resp.Epidata = append(resp.Epidata, json.RawMessage(r))
	}
	return resp
}

func testSource(t *testing.T, fetcher *fakeFetcher, regions []string) (*Source, *database.DB) {
	t.Helper()

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	c := container.New(&config.Config{
		Sources: map[string]config.SourceConfig{
			SourceName: {
				Enabled: true,
				API:     config.APIConfig{BaseURL: "http://example.test/fluview/"},
				Regions: regions,
				Validation: config.ValidationConfig{
					MaxErrorRate: 0.5,
					PercentRange: []float64{0, 100},
				},
			},
		},
	})
	c.SetFetcher(fetcher)
	c.SetDB(db)

	src, err := New(c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	fv := src.(*Source)
	// Pin the clock to a week-2 date so the requested range is stable.
	fv.now = func() time.Time { return time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC) }
	return fv, db
}

func TestWeekRange(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		start, end int
	}{
		{"mid-season week 2", time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), 202440, 202502},
		{"autumn week 45 reaches prior season", time.Date(2024, 11, 6, 0, 0, 0, 0, time.UTC), 202340, 202445},
		{"week 40 exactly", time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC), 202340, 202440},
		{"week 39", time.Date(2024, 9, 25, 0, 0, 0, 0, time.UTC), 202340, 202439},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Source{now: func() time.Time { return tt.now }}
			start, end := s.weekRange()
			if start != tt.start || end != tt.end {
				t.Errorf("weekRange() = %d-%d, want %d-%d", start, end, tt.start, tt.end)
			}
		})
	}
}

func TestRegionInfo(t *testing.T) {
	tests := []struct {
		code     string
		geoType  string
		geoValue string
		display  string
	}{
		{"nat", "nation", "us", "National"},
		{"hhs1", "hhs_region", "hhs1", "HHS Region 1"},
		{"hhs10", "hhs_region", "hhs10", "HHS Region 10"},
		{"hhs11", "unknown", "hhs11", "hhs11"},
		{"cen3", "unknown", "cen3", "cen3"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			geoType, geoValue, display := regionInfo(tt.code)
			if geoType != tt.geoType || geoValue != tt.geoValue || display != tt.display {
				t.Errorf("regionInfo(%q) = (%q, %q, %q), want (%q, %q, %q)",
					tt.code, geoType, geoValue, display, tt.geoType, tt.geoValue, tt.display)
			}
		})
	}
}

func TestExtractSkipsEmptyRegions(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]*models.EpidataResponse{
		"nat": envelope(`{"region":"nat","epiweek":202501,"ili":3.2,"num_patients":48000}`),
	}}
	s, _ := testSource(t, fetcher, []string{"nat", "hhs1"})

	raw, err := s.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(raw) != 1 {
		t.Errorf("expected 1 row (hhs1 envelope empty), got %d", len(raw))
	}
	if len(fetcher.calls) != 2 {
		t.Errorf("expected one fetch per region, got %d", len(fetcher.calls))
	}
	if got := fetcher.calls[0].Get("epiweeks"); got != "202440-202502" {
		t.Errorf("epiweeks param = %q", got)
	}
}

func TestExtractPropagatesFetchErrors(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	s, _ := testSource(t, fetcher, []string{"nat"})

	if _, err := s.Extract(context.Background()); err == nil {
		t.Fatal("expected fetch error to abort extract")
	}
}

func TestTransformSkipsMalformedRows(t *testing.T) {
	s, _ := testSource(t, &fakeFetcher{}, nil)

	raw := []json.RawMessage{
		json.RawMessage(`{"region":"nat","epiweek":202501,"ili":3.2,"num_patients":48000}`),
		json.RawMessage(`{"region":"","epiweek":202501,"ili":3.2,"num_patients":48000}`), // missing region
		json.RawMessage(`{"region":"hhs1","epiweek":202501,"num_patients":900}`),         // missing ili
		json.RawMessage(`{"region":"hhs2","epiweek":202500,"ili":1.0,"num_patients":1}`), // week 0
		json.RawMessage(`not json`),
	}

	batch, skipped, err := s.Transform(raw)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if skipped != 4 {
		t.Errorf("expected 4 skipped rows, got %d", skipped)
	}

	records := batch.([]Record)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Season != "2024-25" {
		t.Errorf("season = %q", rec.Season)
	}
	if got := rec.WeekEnding.Format("2006-01-02"); got != "2025-01-05" {
		t.Errorf("week ending = %s", got)
	}
	if rec.GeoType != "nation" || rec.GeoValue != "us" || rec.RegionName != "National" {
		t.Errorf("geography = %+v", rec)
	}
}

func TestValidateRangeChecks(t *testing.T) {
	s, _ := testSource(t, &fakeFetcher{}, nil)

	records := []Record{
		{RegionCode: "nat", ILIPct: 3.2, TotalPatients: 48000},
		{RegionCode: "hhs1", ILIPct: -1, TotalPatients: 900},  // below range
		{RegionCode: "hhs2", ILIPct: 120, TotalPatients: 900}, // above range
		{RegionCode: "hhs3", ILIPct: 2.0, TotalPatients: 100},
	}

	valid, err := s.Validate(records)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := valid.([]Record); len(got) != 2 {
		t.Errorf("expected 2 valid records, got %d", len(got))
	}
}

func TestValidateBatchQualityBreaker(t *testing.T) {
	s, _ := testSource(t, &fakeFetcher{}, nil)

	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{RegionCode: "nat", ILIPct: 999, TotalPatients: 1})
	}

	if _, err := s.Validate(records); !errors.Is(err, source.ErrBatchQuality) {
		t.Fatalf("expected ErrBatchQuality, got %v", err)
	}
}

func TestFullPipelineIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]*models.EpidataResponse{
		"nat":  envelope(`{"region":"nat","epiweek":202501,"ili":3.2,"num_patients":48000}`),
		"hhs1": envelope(`{"region":"hhs1","epiweek":202501,"ili":2.8,"num_patients":900}`),
	}}
	s, db := testSource(t, fetcher, []string{"nat", "hhs1"})

	first := source.Run(context.Background(), s)
	if !first.Success {
		t.Fatalf("first run failed: %s", first.Error)
	}
	// 2 legacy rows + 4 observations.
	if first.Inserted != 6 || first.Updated != 0 {
		t.Errorf("first run wrote %d/%d, want 6 inserted", first.Inserted, first.Updated)
	}

	second := source.Run(context.Background(), s)
	if !second.Success {
		t.Fatalf("second run failed: %s", second.Error)
	}
	if second.Inserted != 0 || second.Updated != 6 {
		t.Errorf("re-run wrote %d/%d, want 6 updated", second.Inserted, second.Updated)
	}

	ctx := context.Background()
	flu, err := db.FluRecords(ctx, 0)
	if err != nil {
		t.Fatalf("FluRecords failed: %v", err)
	}
	if len(flu) != 2 {
		t.Errorf("expected 2 legacy rows, got %d", len(flu))
	}

	obs, err := db.Observations(ctx, database.ObservationFilter{Source: SourceName})
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if len(obs) != 4 {
		t.Errorf("expected 4 unified observations, got %d", len(obs))
	}

	regions, err := db.DistinctFluRegions(ctx)
	if err != nil {
		t.Fatalf("DistinctFluRegions failed: %v", err)
	}
	want := []string{"HHS Region 1", "National"}
	if fmt.Sprint(regions) != fmt.Sprint(want) {
		t.Errorf("regions = %v, want %v", regions, want)
	}
}
