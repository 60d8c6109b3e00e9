// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package api is the HTTP surface: dashboard reads over the surveillance
// store, source listing and triggering, health, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gudetimes1234/healthintel/internal/container"
	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/source"
	"github.com/gudetimes1234/healthintel/internal/tenant"
)

// TenantHeader carries the tenant scope for tenant-data endpoints. Requests
// without it are unscoped and see only public data paths.
const TenantHeader = "X-Tenant-ID"

// Server holds the HTTP handler dependencies.
type Server struct {
	c   *container.Container
	reg *source.Registry
}

// NewServer builds the server around the capability container and source
// registry.
func NewServer(c *container.Container, reg *source.Registry) *Server {
	return &Server{c: c, reg: reg}
}

// Router assembles the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.Post("/sources/{name}/run", s.handleRunSource)
		r.Post("/run", s.handleRunAll)

		r.Get("/flu", s.handleFluRecords)
		r.Get("/covid", s.handleCovidRecords)
		r.Get("/observations", s.handleObservations)
		r.Get("/geographies", s.handleGeographies)
		r.Get("/signals", s.handleSignals)

		r.With(tenantFromHeader).Get("/tenant/observations", s.handleTenantObservations)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

// requestLogger logs one line per request with latency and status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// tenantFromHeader scopes the request context to the tenant named in the
// X-Tenant-ID header.
func tenantFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(TenantHeader); id != "" {
			r = r.WithContext(tenant.WithTenant(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
