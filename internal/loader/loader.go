// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package loader defines the Loader Contract: the pluggable
// protocol that maps staged row batches into any warehouse through its
// native bulk-ingest path with atomic publication, versioning, idempotency
// and delta tracking.
//
// A loader is any type implementing Loader. Implementers write to this
// contract, not to any host framework — the shape mirrors a pluggable
// storage Backend interface (Query/Execute/Close), generalized here to the
// full staging → merge → ledger lifecycle a relational warehouse ETL
// needs. A name→constructor Registry maps a configuration name
// (db.adapter) to a concrete implementation, the same way a plugin
// registry would.
package loader

import (
	"context"
	"time"
)

// Mode selects the publication strategy for a run.
type Mode string

// Run modes.
const (
	ModeFull  Mode = "FULL"
	ModeDelta Mode = "DELTA"
)

// RunStatus is the lifecycle state of a row in etl_load_history.
type RunStatus string

// Run statuses.
const (
	StatusRunning RunStatus = "RUNNING"
	StatusSuccess RunStatus = "SUCCESS"
	StatusFailed  RunStatus = "FAILED"
)

// RunSummary reports the outcome of a completed or recovered run, returned
// by EndRun's callers for CLI/JSON reporting.
type RunSummary struct {
	RunID            string
	Mode             Mode
	Status           RunStatus
	StartTime        time.Time
	EndTime          time.Time
	ArchivesProcessed int
	RecordsLoaded     int64
	ErrorLog          string
}

// ProcessedArchive is one row of the etl_processed_archives ledger.
type ProcessedArchive struct {
	ArchiveName        string
	ArchiveChecksum    string
	ProcessedTimestamp time.Time
}

// Loader is the full Loader Contract. Every operation is synchronous and
// may be called only in this order:
//
//	InitializeSchema
//	StartRun -> GetProcessedArchives
//	  PreLoadOptimization (once, before the first staging load)
//	  (per batch of archives) BulkLoadToStaging -> MergeFromStaging -> RecordProcessedArchive
//	PostLoadCleanup -> EndRun
type Loader interface {
	// InitializeSchema creates all production, staging and tracking tables
	// idempotently. Fails only on an unrecoverable DDL error.
	InitializeSchema(ctx context.Context) error

	// StartRun inserts a RUNNING row into etl_load_history and returns its
	// run_id. Before inserting, implementations recover any stale RUNNING
	// row under the crash-recovery rule and truncate staging.
	StartRun(ctx context.Context, mode Mode) (runID string, err error)

	// GetProcessedArchives returns the set of archive names already marked
	// processed, keyed by archive name, valued by their recorded checksum.
	GetProcessedArchives(ctx context.Context) (map[string]string, error)

	// PreLoadOptimization prepares production tables for the upcoming
	// merge. FULL mode may drop non-PK indexes and disable FKs to
	// accelerate the swap; DELTA mode may no-op. Must be reversible by
	// PostLoadCleanup.
	PreLoadOptimization(ctx context.Context, mode Mode) error

	// BulkLoadToStaging truncates staging tables, then invokes the native
	// bulk-ingest path (e.g. COPY) against every chunk file under dir.
	// Returns the total number of rows staged.
	BulkLoadToStaging(ctx context.Context, dir string) (rowsStaged int64, err error)

	// MergeFromStaging atomically publishes staged rows into production:
	// swap or rename for FULL, delete+insert (UPSERT-equivalent) for
	// DELTA, followed in the same transaction by a single set-based
	// is_latest_version recomputation over affected set_ids.
	MergeFromStaging(ctx context.Context, mode Mode) (recordsLoaded int64, err error)

	// PostLoadCleanup rebuilds anything PreLoadOptimization dropped and
	// runs vacuum/analyze where applicable. Failures here are non-fatal.
	PostLoadCleanup(ctx context.Context, mode Mode) error

	// RecordProcessedArchive inserts or updates a ledger row. On conflict
	// by archive name, the checksum and timestamp are updated.
	RecordProcessedArchive(ctx context.Context, archiveName, checksum string) error

	// EndRun closes the etl_load_history row for runID with the given
	// status, record count, this run's own archive count and optional
	// error detail. Best-effort: must survive a crash via the recovery
	// rule in StartRun.
	EndRun(ctx context.Context, runID string, status RunStatus, records int64, archivesProcessed int, errDetail string) error

	// Close releases any resources (connection pool, file handles) held by
	// the loader.
	Close(ctx context.Context) error
}

// Constructor builds a Loader from a DSN/connection string and options.
type Constructor func(ctx context.Context, dsn string) (Loader, error)

// Registry maps a db.adapter configuration name to a Loader constructor.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns an empty loader registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a named constructor to the registry. Re-registering a name
// overwrites the previous constructor, matching how a plugin registry is
// expected to behave during tests.
func (r *Registry) Register(name string, ctor Constructor) {
	r.constructors[name] = ctor
}

// Open builds a Loader for the named adapter, or an error if no constructor
// was registered under that name.
func (r *Registry) Open(ctx context.Context, name, dsn string) (Loader, error) {
	ctor, ok := r.constructors[name]
	if !ok {
		return nil, &UnknownAdapterError{Name: name}
	}
	return ctor(ctx, dsn)
}

// UnknownAdapterError is returned by Registry.Open for an unregistered
// db.adapter name.
type UnknownAdapterError struct {
	Name string
}

func (e *UnknownAdapterError) Error() string {
	return "loader: unknown adapter " + e.Name
}
