// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

package tenant

import (
	"context"
	"sync"
	"testing"
)

func TestFromContextUnset(t *testing.T) {
	if id, ok := FromContext(context.Background()); ok || id != "" {
		t.Errorf("FromContext(background) = (%q, %v), want empty and unset", id, ok)
	}
}

func TestWithTenant(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")

	id, ok := FromContext(ctx)
	if !ok || id != "acme" {
		t.Errorf("FromContext = (%q, %v), want (acme, true)", id, ok)
	}
}

func TestNestedScopesRestore(t *testing.T) {
	root := context.Background()
	outer := WithTenant(root, "acme")
	inner := WithTenant(outer, "globex")

	if id, _ := FromContext(inner); id != "globex" {
		t.Errorf("inner scope tenant = %q, want globex", id)
	}

	// Leaving the inner scope is just using the outer context again; the
	// outer tenant must be intact.
	if id, _ := FromContext(outer); id != "acme" {
		t.Errorf("outer scope tenant = %q, want acme", id)
	}
	if id, ok := FromContext(root); ok {
		t.Errorf("root context gained tenant %q", id)
	}
}

func TestEmptyIDClearsScope(t *testing.T) {
	outer := WithTenant(context.Background(), "acme")
	cleared := WithTenant(outer, "")

	if id, ok := FromContext(cleared); ok {
		t.Errorf("cleared scope still reports tenant %q", id)
	}
	if id, _ := FromContext(outer); id != "acme" {
		t.Errorf("outer scope tenant = %q, want acme", id)
	}
}

// TestNoCrossGoroutineLeak checks that tenant scoping is per context chain,
// not per process: concurrent chains with different tenants never observe
// each other.
func TestNoCrossGoroutineLeak(t *testing.T) {
	tenants := []string{"acme", "globex", "initech", "umbrella"}

	var wg sync.WaitGroup
	for _, want := range tenants {
		wg.Add(1)
		go func(want string) {
			defer wg.Done()
			ctx := WithTenant(context.Background(), want)
			for i := 0; i < 1000; i++ {
				if got, _ := FromContext(ctx); got != want {
					t.Errorf("tenant leaked across goroutines: got %q, want %q", got, want)
					return
				}
			}
		}(want)
	}
	wg.Wait()
}
