// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"fmt"
)

// ddlStatements creates every production, staging and tracking table named
// for the warehouse. Each statement is idempotent (IF NOT EXISTS) and is
// executed on its own; InitializeSchema stops at the first statement that
// fails.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS spl_raw_documents (
		document_id TEXT PRIMARY KEY,
		set_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		effective_time DATE NOT NULL,
		raw_data JSONB NOT NULL,
		source_filename TEXT,
		loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		document_id TEXT PRIMARY KEY REFERENCES spl_raw_documents(document_id),
		set_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		effective_time DATE NOT NULL,
		product_name TEXT,
		manufacturer_name TEXT,
		dosage_form TEXT,
		route_of_administration TEXT,
		is_latest_version BOOLEAN NOT NULL DEFAULT false,
		loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS products_set_id_idx ON products (set_id)`,
	`CREATE TABLE IF NOT EXISTS product_ndcs (
		surrogate_id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES products(document_id),
		ndc_code TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS product_ndcs_document_id_idx ON product_ndcs (document_id)`,
	`CREATE TABLE IF NOT EXISTS ingredients (
		surrogate_id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES products(document_id),
		ingredient_name TEXT,
		substance_code TEXT,
		strength_numerator TEXT,
		strength_denominator TEXT,
		unit_of_measure TEXT,
		is_active_ingredient BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS ingredients_document_id_idx ON ingredients (document_id)`,
	`CREATE TABLE IF NOT EXISTS packaging (
		surrogate_id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES products(document_id),
		package_ndc TEXT,
		package_description TEXT,
		package_type TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS packaging_document_id_idx ON packaging (document_id)`,
	`CREATE TABLE IF NOT EXISTS marketing_status (
		surrogate_id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES products(document_id),
		marketing_category TEXT,
		start_date DATE,
		end_date DATE
	)`,
	`CREATE INDEX IF NOT EXISTS marketing_status_document_id_idx ON marketing_status (document_id)`,
	`CREATE TABLE IF NOT EXISTS etl_load_history (
		run_id TEXT PRIMARY KEY,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		archives_processed INTEGER NOT NULL DEFAULT 0,
		records_loaded BIGINT NOT NULL DEFAULT 0,
		error_log TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS etl_processed_archives (
		archive_name TEXT PRIMARY KEY,
		archive_checksum TEXT NOT NULL,
		processed_timestamp TIMESTAMPTZ NOT NULL
	)`,

	// Staging tables mirror production column sets, minus surrogate ids,
	// loaded_at and is_latest_version, which the merge step assigns.
	`CREATE TABLE IF NOT EXISTS spl_raw_documents_staging (
		document_id TEXT, set_id TEXT, version_number INTEGER, effective_time DATE,
		raw_data JSONB, source_filename TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS products_staging (
		document_id TEXT, set_id TEXT, version_number INTEGER, effective_time DATE,
		product_name TEXT, manufacturer_name TEXT, dosage_form TEXT, route_of_administration TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS product_ndcs_staging (document_id TEXT, ndc_code TEXT)`,
	`CREATE TABLE IF NOT EXISTS ingredients_staging (
		document_id TEXT, ingredient_name TEXT, substance_code TEXT, strength_numerator TEXT,
		strength_denominator TEXT, unit_of_measure TEXT, is_active_ingredient BOOLEAN
	)`,
	`CREATE TABLE IF NOT EXISTS packaging_staging (
		document_id TEXT, package_ndc TEXT, package_description TEXT, package_type TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS marketing_status_staging (
		document_id TEXT, marketing_category TEXT, start_date DATE, end_date DATE
	)`,
}

// InitializeSchema creates all tables idempotently. It
// fails only on an unrecoverable DDL error; individual "already exists"
// conditions are not possible here since every statement is IF NOT EXISTS,
// but statements still run one at a time so a partial prior run can be
// resumed.
func (l *Loader) InitializeSchema(ctx context.Context) error {
	for _, stmt := range ddlStatements {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema ddl failed: %w", err)
		}
	}
	return nil
}
