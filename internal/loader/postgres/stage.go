// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gowthamrao/py-load-spl/internal/stage"
)

// stagingTables lists every staging table name, parent-before-child.
var stagingTables = []string{
	"spl_raw_documents_staging",
	"products_staging",
	"product_ndcs_staging",
	"ingredients_staging",
	"packaging_staging",
	"marketing_status_staging",
}

// stagingColumns lists the column order each staging table expects,
// matching the field order stage.EncodeBatches writes into its CSV rows.
var stagingColumns = map[string][]string{
	"spl_raw_documents_staging": {"document_id", "set_id", "version_number", "effective_time", "raw_data", "source_filename"},
	"products_staging":          {"document_id", "set_id", "version_number", "effective_time", "product_name", "manufacturer_name", "dosage_form", "route_of_administration"},
	"product_ndcs_staging":      {"document_id", "ndc_code"},
	"ingredients_staging":       {"document_id", "ingredient_name", "substance_code", "strength_numerator", "strength_denominator", "unit_of_measure", "is_active_ingredient"},
	"packaging_staging":         {"document_id", "package_ndc", "package_description", "package_type"},
	"marketing_status_staging":  {"document_id", "marketing_category", "start_date", "end_date"},
}

// tableForStaging maps a stage.Table<Name> (e.g. "products") to its
// staging table name and source file glob prefix.
var tableForStaging = map[string]string{
	stage.TableSplRawDocuments: "spl_raw_documents_staging",
	stage.TableProducts:        "products_staging",
	stage.TableProductNDCs:     "product_ndcs_staging",
	stage.TableIngredients:     "ingredients_staging",
	stage.TablePackaging:       "packaging_staging",
	stage.TableMarketingStatus: "marketing_status_staging",
}

// BulkLoadToStaging truncates every staging table, then COPYs each chunk
// file under dir into its corresponding staging table. Returns the total
// number of rows staged across all tables.
func (l *Loader) BulkLoadToStaging(ctx context.Context, dir string) (int64, error) {
	for _, table := range stagingTables {
		if _, err := l.pool.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			return 0, fmt.Errorf("postgres: truncate %s before stage: %w", table, err)
		}
	}

	var total int64
	for _, sourceTable := range stage.Tables {
		stagingTable := tableForStaging[sourceTable]
		files, err := chunkFiles(dir, sourceTable)
		if err != nil {
			return total, err
		}
		for _, path := range files {
			n, err := l.copyFile(ctx, stagingTable, path)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

// chunkFiles returns, in chunk-index order, every chunk file the
// Intermediate Writer created for table under dir.
func chunkFiles(dir, table string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, table+".*."+stage.Ext))
	if err != nil {
		return nil, fmt.Errorf("postgres: glob chunks for %s: %w", table, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (l *Loader) copyFile(ctx context.Context, stagingTable, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("postgres: open chunk %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	src := &csvCopySource{reader: reader, columns: stagingColumns[stagingTable]}
	n, err := l.pool.CopyFrom(ctx, pgx.Identifier{stagingTable}, stagingColumns[stagingTable], src)
	if err != nil {
		return 0, fmt.Errorf("postgres: copy %s into %s: %w", path, stagingTable, err)
	}
	return n, nil
}

// csvCopySource adapts an RFC 4180 chunk file to
// pgx.CopyFromSource, converting the \N null sentinel, t/f booleans, and
// ISO 8601 dates column-by-column using the destination's column list.
type csvCopySource struct {
	reader  *csv.Reader
	columns []string
	record  []string
	err     error
}

func (s *csvCopySource) Next() bool {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.record = rec
	return true
}

func (s *csvCopySource) Values() ([]any, error) {
	values := make([]any, len(s.record))
	for i, raw := range s.record {
		col := ""
		if i < len(s.columns) {
			col = s.columns[i]
		}
		v, err := convertField(col, raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: convert column %q: %w", col, err)
		}
		values[i] = v
	}
	return values, nil
}

func (s *csvCopySource) Err() error { return s.err }

func convertField(column, raw string) (any, error) {
	if raw == `\N` {
		return nil, nil
	}
	switch column {
	case "version_number":
		return strconv.Atoi(raw)
	case "is_active_ingredient":
		return raw == "t", nil
	case "effective_time", "start_date", "end_date":
		return time.Parse("2006-01-02", raw)
	default:
		return raw, nil
	}
}
