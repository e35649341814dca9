package storage

import (
	"testing"

	"github.com/corralhq/corral/pkg/config"
)

// NewTestStore opens an in-memory sqlite store with the schema migrated.
// The store is closed when the test finishes.
func NewTestStore(t *testing.T) *GormStore {
	t.Helper()

	store, err := NewGormStore(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
