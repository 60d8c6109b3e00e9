// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/container"
	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/models"
	"github.com/gudetimes1234/healthintel/internal/source"
	"github.com/gudetimes1234/healthintel/internal/tenant"
)

type fakeSource struct {
	name string
	fail bool
}

func (f *fakeSource) Name() string        { return f.name }
func (f *fakeSource) Description() string { return "fake" }
func (f *fakeSource) Extract(ctx context.Context) ([]json.RawMessage, error) {
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	return []json.RawMessage{json.RawMessage(`{}`)}, nil
}
func (f *fakeSource) Transform(raw []json.RawMessage) (any, int, error) { return raw, 0, nil }
func (f *fakeSource) Validate(batch any) (any, error)                   { return batch, nil }
func (f *fakeSource) Load(ctx context.Context, valid any) (database.UpsertResult, error) {
	return database.UpsertResult{Inserted: 1}, nil
}

func testServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	c := container.New(&config.Config{
		Sources: map[string]config.SourceConfig{
			"fake":   {Enabled: true, Description: "Fake feed"},
			"broken": {Enabled: false},
		},
	})
	c.SetDB(db)

	reg := source.NewRegistry()
	reg.Register("fake", func(c *container.Container) (source.DataSource, error) {
		return &fakeSource{name: "fake"}, nil
	})
	reg.Register("broken", func(c *container.Container) (source.DataSource, error) {
		return &fakeSource{name: "broken", fail: true}, nil
	})

	return NewServer(c, reg), db
}

func doRequest(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if header != nil {
		req.Header = header
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestListSources(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody[map[string][]source.SourceInfo](t, rec)
	sources := body["sources"]
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Name != "broken" || sources[0].Status != "disabled" {
		t.Errorf("first source = %+v", sources[0])
	}
	if sources[1].Name != "fake" || sources[1].Status != "enabled" {
		t.Errorf("second source = %+v", sources[1])
	}
}

func TestRunSource(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources/fake/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[source.RunResult](t, rec)
	if !result.Success || result.Inserted != 1 {
		t.Errorf("result = %+v", result)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/sources/missing/run", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown source status = %d", rec.Code)
	}

	// A failing source is a completed request carrying a failed result.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/sources/broken/run", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("failed run status = %d", rec.Code)
	}
}

func TestRunAllOnlyEnabled(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string][]source.RunResult](t, rec)
	results := body["results"]
	if len(results) != 1 || results[0].Source != "fake" {
		t.Errorf("expected only the enabled source to run, got %+v", results)
	}
}

func TestFluRecordsEndpoint(t *testing.T) {
	s, db := testServer(t)

	week := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	if _, err := db.UpsertFluRecords(context.Background(), []models.FluRecord{
		{WeekEnding: week, Season: "2024-25", Region: "National", PercentPositive: 3.2, TotalSpecimens: 48000},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/flu", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]json.RawMessage](t, rec)
	var records []models.FluRecord
	if err := json.Unmarshal(body["records"], &records); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(records) != 1 || records[0].Region != "National" {
		t.Errorf("records = %+v", records)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/flu?limit=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestObservationsEndpointFilters(t *testing.T) {
	s, db := testServer(t)

	date := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	v := 3.2
	if _, err := db.UpsertObservations(context.Background(), []models.Observation{
		{Date: date, GeoType: "nation", GeoValue: "us", Source: "fluview", Signal: "ili_pct", Value: &v},
		{Date: date, GeoType: "state", GeoValue: "ca", Source: "covidcast", Signal: "confirmed_admissions_covid_ew", Value: &v},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/observations?source=fluview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]json.RawMessage](t, rec)
	var count int
	if err := json.Unmarshal(body["count"], &count); err != nil || count != 1 {
		t.Errorf("count = %d (err %v)", count, err)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/geographies?source=covidcast&geo_type=state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("geographies status = %d", rec.Code)
	}
	geoBody := decodeBody[map[string][]string](t, rec)
	if values := geoBody["geo_values"]; len(values) != 1 || values[0] != "ca" {
		t.Errorf("geo_values = %v", values)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/observations?since=notadate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", rec.Code)
	}
}

func TestSignalsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/signals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string][]models.SignalDefinition](t, rec)
	if len(body["signals"]) < 3 {
		t.Errorf("expected seeded signals, got %d", len(body["signals"]))
	}
}

func TestTenantObservationsEndpointIsScoped(t *testing.T) {
	s, db := testServer(t)

	seed := func(tenantID, geoValue string) {
		ctx := tenant.WithTenant(context.Background(), tenantID)
		session, err := db.NewSession(ctx)
		if err != nil {
			t.Fatalf("NewSession failed: %v", err)
		}
		defer session.Close()
		v := 1.0
		if _, _, err := session.UpsertTenantObservations(ctx, []models.TenantObservation{
			{Date: time.Now(), GeoType: "county", GeoValue: geoValue, Source: "upload", Signal: "x", Value: &v},
		}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		if err := session.Commit(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
	}
	seed("tenant-a", "06037")
	seed("tenant-b", "06073")

	header := http.Header{}
	header.Set(TenantHeader, "tenant-a")
	rec := doRequest(t, s, http.MethodGet, "/api/v1/tenant/observations", header)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]json.RawMessage](t, rec)
	var obs []models.TenantObservation
	if err := json.Unmarshal(body["observations"], &obs); err != nil {
		t.Fatalf("failed to decode observations: %v", err)
	}
	if len(obs) != 1 || obs[0].TenantID != "tenant-a" {
		t.Errorf("tenant scoping violated: %+v", obs)
	}

	// No header: unscoped administrative read sees both tenants.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/tenant/observations", nil)
	body = decodeBody[map[string]json.RawMessage](t, rec)
	if err := json.Unmarshal(body["observations"], &obs); err != nil {
		t.Fatalf("failed to decode observations: %v", err)
	}
	if len(obs) != 2 {
		t.Errorf("expected 2 rows unscoped, got %d", len(obs))
	}
}
