// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gowthamrao/py-load-spl/internal/loader"
)

// staleRunThreshold is the default crash-recovery window.
const staleRunThreshold = 6 * time.Hour

// StartRun recovers any stale RUNNING row (per the single-RUNNING-row
// guard), truncates staging, then inserts a fresh RUNNING
// row and returns its run_id.
func (l *Loader) StartRun(ctx context.Context, mode loader.Mode) (string, error) {
	cutoff := time.Now().Add(-staleRunThreshold)
	if _, err := l.pool.Exec(ctx, `
		UPDATE etl_load_history
		SET status = 'FAILED', end_time = now(), error_log = 'crashed'
		WHERE status = 'RUNNING' AND end_time IS NULL AND start_time < $1
	`, cutoff); err != nil {
		return "", fmt.Errorf("postgres: recover stale run: %w", err)
	}

	var stillRunning int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM etl_load_history WHERE status = 'RUNNING' AND end_time IS NULL`).Scan(&stillRunning); err != nil {
		return "", fmt.Errorf("postgres: check running guard: %w", err)
	}
	if stillRunning > 0 {
		return "", fmt.Errorf("postgres: a run is already in progress against this target")
	}

	for _, table := range stagingTables {
		if _, err := l.pool.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			return "", fmt.Errorf("postgres: truncate %s: %w", table, err)
		}
	}

	runID := uuid.NewString()
	if _, err := l.pool.Exec(ctx, `
		INSERT INTO etl_load_history (run_id, start_time, status, mode)
		VALUES ($1, now(), 'RUNNING', $2)
	`, runID, string(mode)); err != nil {
		return "", fmt.Errorf("postgres: insert run row: %w", err)
	}

	return runID, nil
}

// GetProcessedArchives returns every archive name already recorded in the
// ledger, mapped to its recorded checksum.
func (l *Loader) GetProcessedArchives(ctx context.Context) (map[string]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT archive_name, archive_checksum FROM etl_processed_archives`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger row: %w", err)
		}
		out[name] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate ledger: %w", err)
	}
	return out, nil
}

// RecordProcessedArchive upserts archiveName's ledger row.
func (l *Loader) RecordProcessedArchive(ctx context.Context, archiveName, checksum string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO etl_processed_archives (archive_name, archive_checksum, processed_timestamp)
		VALUES ($1, $2, now())
		ON CONFLICT (archive_name) DO UPDATE SET archive_checksum = $2, processed_timestamp = now()
	`, archiveName, checksum)
	if err != nil {
		return fmt.Errorf("postgres: record processed archive %s: %w", archiveName, err)
	}
	return nil
}

// EndRun closes runID's etl_load_history row. Best-effort by design: if
// the process crashes before this call, StartRun's recovery rule cleans up
// on the next run. archivesProcessed is this run's own count, supplied by
// the orchestrator — not the cumulative ledger size, which would report a
// no-op delta re-run as having "processed" every archive ever seen.
func (l *Loader) EndRun(ctx context.Context, runID string, status loader.RunStatus, records int64, archivesProcessed int, errDetail string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE etl_load_history
		SET status = $2, end_time = now(), records_loaded = $3, error_log = NULLIF($4, ''), archives_processed = $5
		WHERE run_id = $1
	`, runID, string(status), records, errDetail, archivesProcessed)
	if err != nil {
		return fmt.Errorf("postgres: end run %s: %w", runID, err)
	}
	return nil
}
