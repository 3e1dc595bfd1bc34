// Package testutil provides shared helpers for tests that need a sandbox bank.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/banktalk/internal/storage"
)

// SandboxNow is the clock every sandbox created here runs on.
var SandboxNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// SandboxOptions configures SetupSandboxWithOptions.
type SandboxOptions struct {
	CustomSetup func(context.Context, *storage.SQLiteStorage) error
	Fixtures    *storage.Fixtures
	Now         func() time.Time
	SkipSeed    bool
}

// SetupSandbox creates a migrated in-memory sandbox seeded with the default
// fixtures. It is closed when the test ends.
//
// Example:
//
//	bank := testutil.SetupSandbox(t)
//	customer, err := bank.GetCustomer(ctx, "1")
func SetupSandbox(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	return SetupSandboxWithOptions(t, SandboxOptions{})
}

// SetupSandboxWithOptions creates a sandbox with custom fixtures, clock or
// extra setup.
func SetupSandboxWithOptions(t *testing.T, opts SandboxOptions) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create sandbox database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	now := opts.Now
	if now == nil {
		now = func() time.Time { return SandboxNow }
	}
	store.SetClock(now)

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if !opts.SkipSeed {
		fixtures := opts.Fixtures
		if fixtures == nil {
			fixtures, err = storage.DefaultFixtures()
			if err != nil {
				t.Fatalf("failed to parse default fixtures: %v", err)
			}
		}
		if err := store.Seed(ctx, fixtures); err != nil {
			t.Fatalf("failed to seed sandbox: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return store
}
