// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/metrics"
	"github.com/gudetimes1234/healthintel/internal/models"
	"github.com/gudetimes1234/healthintel/internal/tenant"
)

// ErrTenantMismatch is returned when a write through a tenant-scoped session
// carries a row belonging to a different tenant.
var ErrTenantMismatch = errors.New("row tenant does not match session tenant")

// ErrNoTenant is returned when an unscoped session receives a row with no
// tenant identifier.
var ErrNoTenant = errors.New("tenant observation has no tenant id")

// Session is a tenant-aware unit of work over the tenant_observations table.
// It pins a single connection, opens a transaction, and publishes the tenant
// identifier as a DuckDB session variable so ad-hoc SQL run through the same
// connection can reference getvariable('app_tenant_id').
//
// A session created from a context without a tenant is unscoped and reads
// every tenant's rows; this is the administrative path used by the ETL core.
type Session struct {
	conn     *sql.Conn
	tx       *sql.Tx
	tenantID string
	scoped   bool
	done     bool
}

// NewSession pins a connection and begins a transaction. The tenant scope
// comes from ctx; see the tenant package.
func (db *DB) NewSession(ctx context.Context) (*Session, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	s := &Session{conn: conn}
	if id, ok := tenant.FromContext(ctx); ok {
		s.tenantID = id
		s.scoped = true
		if _, err := conn.ExecContext(ctx, "SET VARIABLE app_tenant_id = ?", id); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set tenant session variable: %w", err)
		}
	} else {
		if _, err := conn.ExecContext(ctx, "RESET VARIABLE app_tenant_id"); err != nil {
			// Variable was never set on this pooled connection; nothing to clear.
			logging.Debug().Err(err).Msg("Tenant session variable not set")
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return s, nil
}

// TenantID returns the session's tenant scope. The second return is false
// for unscoped (administrative) sessions.
func (s *Session) TenantID() (string, bool) {
	return s.tenantID, s.scoped
}

// Commit commits the transaction and releases the pinned connection.
func (s *Session) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Commit()
	if cerr := s.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close rolls back the transaction if Commit was not called and releases the
// connection. Safe to defer unconditionally.
func (s *Session) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Session rollback failed")
	}
	return s.conn.Close()
}

// UpsertTenantObservations writes a batch of tenant observations inside the
// session transaction, updating rows whose natural key already exists.
// Scoped sessions reject rows for any other tenant; unscoped sessions
// require every row to carry its own tenant id.
func (s *Session) UpsertTenantObservations(ctx context.Context, observations []models.TenantObservation) (inserted, updated int, err error) {
	defer metrics.ObserveQuery("upsert", "tenant_observations", time.Now(), &err)

	for i := range observations {
		o := &observations[i]
		if s.scoped {
			if o.TenantID == "" {
				o.TenantID = s.tenantID
			} else if o.TenantID != s.tenantID {
				return inserted, updated, fmt.Errorf("%w: row tenant %q, session tenant %q", ErrTenantMismatch, o.TenantID, s.tenantID)
			}
		} else if o.TenantID == "" {
			return inserted, updated, ErrNoTenant
		}

		var id int64
		lookupErr := s.tx.QueryRowContext(ctx,
			`SELECT id FROM tenant_observations
			 WHERE tenant_id = ? AND date = ? AND geo_type = ? AND geo_value = ? AND source = ? AND signal = ?`,
			o.TenantID, o.Date, o.GeoType, o.GeoValue, o.Source, o.Signal,
		).Scan(&id)

		switch {
		case lookupErr == nil:
			if _, err = s.tx.ExecContext(ctx,
				`UPDATE tenant_observations
				 SET value = ?, stderr = ?, sample_size = ?, metadata = ?, updated_at = CURRENT_TIMESTAMP
				 WHERE id = ?`,
				o.Value, o.Stderr, o.SampleSize, o.Metadata, id,
			); err != nil {
				return inserted, updated, fmt.Errorf("failed to update tenant observation: %w", err)
			}
			updated++
		case errors.Is(lookupErr, sql.ErrNoRows):
			if _, err = s.tx.ExecContext(ctx,
				`INSERT INTO tenant_observations
				 (tenant_id, date, geo_type, geo_value, source, signal, value, stderr, sample_size, metadata)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.TenantID, o.Date, o.GeoType, o.GeoValue, o.Source, o.Signal,
				o.Value, o.Stderr, o.SampleSize, o.Metadata,
			); err != nil {
				return inserted, updated, fmt.Errorf("failed to insert tenant observation: %w", err)
			}
			inserted++
		default:
			return inserted, updated, fmt.Errorf("failed to look up tenant observation: %w", lookupErr)
		}
	}

	return inserted, updated, nil
}

// TenantObservations reads tenant observations, optionally filtered by
// source. Scoped sessions only ever see their own tenant's rows.
func (s *Session) TenantObservations(ctx context.Context, source string) (obs []models.TenantObservation, err error) {
	defer metrics.ObserveQuery("select", "tenant_observations", time.Now(), &err)

	query := `SELECT id, tenant_id, date, geo_type, geo_value, source, signal,
	       value, stderr, sample_size, metadata, created_at, updated_at
	  FROM tenant_observations`
	var args []any
	var where []string

	if s.scoped {
		where = append(where, "tenant_id = ?")
		args = append(args, s.tenantID)
	}
	if source != "" {
		where = append(where, "source = ?")
		args = append(args, source)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY date DESC, geo_type, geo_value, signal"

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.TenantObservation
		if err := rows.Scan(&o.ID, &o.TenantID, &o.Date, &o.GeoType, &o.GeoValue,
			&o.Source, &o.Signal, &o.Value, &o.Stderr, &o.SampleSize,
			&o.Metadata, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant observation: %w", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}
