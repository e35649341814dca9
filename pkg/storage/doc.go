/*
Package storage provides persistent state storage for the Corral control
plane.

The storage package defines the Store interface consumed by the task queue,
executor, ledger and coordinator, and implements it with a GORM-backed
relational store supporting sqlite (single-binary deployments, tests) and
postgres (shared deployments).

# Architecture

	┌─────────────────── STORAGE LAYER ───────────────────┐
	│                                                      │
	│  Store interface                                     │
	│    ├── Servers / Catalog / Groups (reference data)   │
	│    ├── Instances (inventory, soft-deleted)           │
	│    ├── Tasks (durable queue rows)                    │
	│    └── VersionHistory (append-only ledger)           │
	│                                                      │
	│  GormStore                                           │
	│    ├── models.go: table models + domain converters   │
	│    ├── sqlite or postgres dialector                  │
	│    └── short transactions, no long-held locks        │
	└──────────────────────────────────────────────────────┘

# Task Queue Support

The durable task queue is built on three store primitives:

  - CreateTasks persists a planned batch atomically
  - ClaimNextPendingTask is the linearization point of dispatch: it picks the
    oldest pending non-cancelled task (FIFO by created_at, ties by ID),
    conditionally flips it to processing and stamps started_at. A lost race
    returns nil and the caller retries.
  - FailProcessingTasks implements the crash-recovery policy: anything still
    marked processing at boot is failed loudly.

# Usage

	store, err := storage.NewGormStore(&cfg.Database)
	if err != nil {
		log.Fatal("store unreachable")
	}
	defer store.Close()

	if err := store.AutoMigrate(); err != nil { ... }

Tests use an in-memory store:

	store := storage.NewTestStore(t)

# Integration Points

  - pkg/queue: task rows and the claim primitive
  - pkg/ledger: version history appends
  - pkg/executor: instance version updates after successful runs
  - pkg/coordinator: reference data loads for planning
  - cmd/corral-migrate: schema migration and inventory seeding
*/
package storage
