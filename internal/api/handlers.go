// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/gudetimes1234/healthintel/internal/database"
	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/source"
)

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	db, err := s.c.DB()
	if err == nil {
		err = db.Ping(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": s.reg.Describe(s.c.Config()),
	})
}

func (s *Server) handleRunSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	results, err := source.RunAll(r.Context(), s.reg, s.c, []string{name})
	if err != nil {
		if errors.Is(err, source.ErrSourceNotRegistered) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := results[0]
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	results, err := source.RunAll(r.Context(), s.reg, s.c, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// queryLimit parses the limit parameter, defaulting to 0 (no limit).
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func (s *Server) handleFluRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	db, err := s.c.DB()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records, err := db.FluRecords(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) handleCovidRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	db, err := s.c.DB()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records, err := db.CovidRecords(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := database.ObservationFilter{
		Source:   q.Get("source"),
		Signal:   q.Get("signal"),
		GeoType:  q.Get("geo_type"),
		GeoValue: q.Get("geo_value"),
		Limit:    limit,
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		filter.Since = t
	}

	db, err := s.c.DB()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	obs, err := db.Observations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs, "count": len(obs)})
}

func (s *Server) handleGeographies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	srcName, geoType := q.Get("source"), q.Get("geo_type")

	db, err := s.c.DB()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// With both parameters the response lists geo values observed in the
	// data; otherwise it lists the geography dimension.
	if srcName != "" && geoType != "" {
		values, err := db.DistinctGeoValues(r.Context(), srcName, geoType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"geo_values": values})
		return
	}

	geos, err := db.GeoLocations(r.Context(), geoType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"geographies": geos})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	db, err := s.c.DB()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	signals, err := db.SignalDefinitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

func (s *Server) handleTenantObservations(w http.ResponseWriter, r *http.Request) {
	db, err := s.c.DB()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	session, err := db.NewSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer session.Close()

	obs, err := session.TenantObservations(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs, "count": len(obs)})
}
