// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gowthamrao/py-load-spl/internal/loader"
)

// productionTables lists every production table, children before parents,
// in the order FULL mode must TRUNCATE and DELTA mode must delete-from.
var productionTables = []string{
	"marketing_status",
	"packaging",
	"ingredients",
	"product_ndcs",
	"products",
	"spl_raw_documents",
}

// preOptimizeIndexes are dropped by PreLoadOptimization in FULL mode and
// rebuilt by PostLoadCleanup, mirroring the corpus's bulk-load pattern of
// paying index maintenance once instead of per row.
var preOptimizeIndexes = []string{
	"products_set_id_idx",
	"product_ndcs_document_id_idx",
	"ingredients_document_id_idx",
	"packaging_document_id_idx",
	"marketing_status_document_id_idx",
}

// PreLoadOptimization drops non-PK indexes ahead of a FULL swap; DELTA
// leaves indexes in place since it only touches the affected document set.
func (l *Loader) PreLoadOptimization(ctx context.Context, mode loader.Mode) error {
	if mode != loader.ModeFull {
		return nil
	}
	for _, idx := range preOptimizeIndexes {
		if _, err := l.pool.Exec(ctx, "DROP INDEX IF EXISTS "+idx); err != nil {
			return fmt.Errorf("postgres: drop index %s: %w", idx, err)
		}
	}
	return nil
}

// PostLoadCleanup rebuilds anything PreLoadOptimization dropped and
// refreshes planner statistics. Failures here are logged by the caller but
// never fail the run.
func (l *Loader) PostLoadCleanup(ctx context.Context, mode loader.Mode) error {
	if mode == loader.ModeFull {
		if _, err := l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS products_set_id_idx ON products (set_id)`); err != nil {
			return fmt.Errorf("postgres: rebuild products_set_id_idx: %w", err)
		}
		if _, err := l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS product_ndcs_document_id_idx ON product_ndcs (document_id)`); err != nil {
			return fmt.Errorf("postgres: rebuild product_ndcs_document_id_idx: %w", err)
		}
		if _, err := l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS ingredients_document_id_idx ON ingredients (document_id)`); err != nil {
			return fmt.Errorf("postgres: rebuild ingredients_document_id_idx: %w", err)
		}
		if _, err := l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS packaging_document_id_idx ON packaging (document_id)`); err != nil {
			return fmt.Errorf("postgres: rebuild packaging_document_id_idx: %w", err)
		}
		if _, err := l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS marketing_status_document_id_idx ON marketing_status (document_id)`); err != nil {
			return fmt.Errorf("postgres: rebuild marketing_status_document_id_idx: %w", err)
		}
	}
	if _, err := l.pool.Exec(ctx, `ANALYZE spl_raw_documents, products, product_ndcs, ingredients, packaging, marketing_status`); err != nil {
		return fmt.Errorf("postgres: analyze: %w", err)
	}
	return nil
}

// MergeFromStaging publishes staged rows into production inside a single
// transaction, then recomputes is_latest_version with one set-based
// statement covering every affected set_id, never row-by-row. FULL mode
// swaps every table; DELTA mode deletes the documents staging replaces and
// re-inserts them.
func (l *Loader) MergeFromStaging(ctx context.Context, mode loader.Mode) (int64, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	if mode == loader.ModeFull {
		// All six tables must be named in a single TRUNCATE: Postgres
		// rejects truncating a table still referenced by an FK from another
		// table unless every referencing table is truncated in the same
		// statement, and PreLoadOptimization never drops those FKs (only
		// the non-PK indexes).
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+strings.Join(productionTables, ", ")); err != nil {
			return 0, fmt.Errorf("postgres: truncate production tables: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			DELETE FROM marketing_status WHERE document_id IN (SELECT document_id FROM products_staging)
		`); err != nil {
			return 0, fmt.Errorf("postgres: delta delete marketing_status: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM packaging WHERE document_id IN (SELECT document_id FROM products_staging)
		`); err != nil {
			return 0, fmt.Errorf("postgres: delta delete packaging: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM ingredients WHERE document_id IN (SELECT document_id FROM products_staging)
		`); err != nil {
			return 0, fmt.Errorf("postgres: delta delete ingredients: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM product_ndcs WHERE document_id IN (SELECT document_id FROM products_staging)
		`); err != nil {
			return 0, fmt.Errorf("postgres: delta delete product_ndcs: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM products WHERE document_id IN (SELECT document_id FROM products_staging)
		`); err != nil {
			return 0, fmt.Errorf("postgres: delta delete products: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM spl_raw_documents WHERE document_id IN (SELECT document_id FROM spl_raw_documents_staging)
		`); err != nil {
			return 0, fmt.Errorf("postgres: delta delete spl_raw_documents: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO spl_raw_documents (document_id, set_id, version_number, effective_time, raw_data, source_filename)
		SELECT document_id, set_id, version_number, effective_time, raw_data, source_filename FROM spl_raw_documents_staging
	`); err != nil {
		return 0, fmt.Errorf("postgres: insert spl_raw_documents: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO products (document_id, set_id, version_number, effective_time, product_name, manufacturer_name, dosage_form, route_of_administration)
		SELECT document_id, set_id, version_number, effective_time, product_name, manufacturer_name, dosage_form, route_of_administration FROM products_staging
	`); err != nil {
		return 0, fmt.Errorf("postgres: insert products: %w", err)
	}

	var recordsLoaded int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM products_staging`).Scan(&recordsLoaded); err != nil {
		return 0, fmt.Errorf("postgres: count staged products: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO product_ndcs (document_id, ndc_code)
		SELECT document_id, ndc_code FROM product_ndcs_staging
	`); err != nil {
		return 0, fmt.Errorf("postgres: insert product_ndcs: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ingredients (document_id, ingredient_name, substance_code, strength_numerator, strength_denominator, unit_of_measure, is_active_ingredient)
		SELECT document_id, ingredient_name, substance_code, strength_numerator, strength_denominator, unit_of_measure, is_active_ingredient FROM ingredients_staging
	`); err != nil {
		return 0, fmt.Errorf("postgres: insert ingredients: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO packaging (document_id, package_ndc, package_description, package_type)
		SELECT document_id, package_ndc, package_description, package_type FROM packaging_staging
	`); err != nil {
		return 0, fmt.Errorf("postgres: insert packaging: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO marketing_status (document_id, marketing_category, start_date, end_date)
		SELECT document_id, marketing_category, start_date, end_date FROM marketing_status_staging
	`); err != nil {
		return 0, fmt.Errorf("postgres: insert marketing_status: %w", err)
	}

	if err := recomputeLatestVersion(ctx, tx, mode); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit merge: %w", err)
	}
	return recordsLoaded, nil
}

// recomputeLatestVersion recomputes is_latest_version with one set-based
// UPDATE restricted to the set_ids touched by this merge: FULL
// mode touches every set_id since the whole table was swapped; DELTA mode
// restricts to the set_ids present in this batch's staging rows.
func recomputeLatestVersion(ctx context.Context, tx pgx.Tx, mode loader.Mode) error {
	scope := "TRUE"
	if mode == loader.ModeDelta {
		scope = "set_id IN (SELECT DISTINCT set_id FROM products_staging)"
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		WITH ranked AS (
			SELECT document_id,
			       row_number() OVER (PARTITION BY set_id ORDER BY version_number DESC, effective_time DESC, document_id DESC) AS rnk
			FROM products
			WHERE %s
		)
		UPDATE products p
		SET is_latest_version = (ranked.rnk = 1)
		FROM ranked
		WHERE p.document_id = ranked.document_id
	`, scope)); err != nil {
		return fmt.Errorf("postgres: recompute is_latest_version: %w", err)
	}
	return nil
}
