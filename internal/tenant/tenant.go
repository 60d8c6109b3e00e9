// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package tenant carries the current tenant identifier through call chains.
//
// The identifier rides on context.Context, never on package-level state, so
// concurrent runs for different tenants cannot observe each other's scope.
// Nested scopes restore naturally: deriving a child context shadows the
// tenant for that subtree only, and the parent context is untouched on any
// exit path, including error exits.
//
// The database layer consults this package when a session opens: a set
// tenant restricts tenant-scoped tables to that tenant's rows; an unset
// tenant applies no restriction (service/admin context).
package tenant

import "context"

// ctxKey is the private context key type, preventing collisions with keys
// from other packages.
type ctxKey struct{}

// WithTenant returns a child context scoped to the given tenant ID.
// An empty id clears the tenant for the subtree, yielding an unrestricted
// (service/admin) scope even under a tenant-scoped parent.
func WithTenant(ctx context.Context, id string) context.Context {
	if id == "" {
		return context.WithValue(ctx, ctxKey{}, nil)
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant ID carried by ctx, and whether one is set.
func FromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxKey{})
	id, ok := v.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
