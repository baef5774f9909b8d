// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package stage

import (
	"strconv"

	"github.com/gowthamrao/py-load-spl/internal/etl"
)

// Table names, stable across releases.
const (
	TableSplRawDocuments = "spl_raw_documents"
	TableProducts        = "products"
	TableProductNDCs     = "product_ndcs"
	TableIngredients     = "ingredients"
	TablePackaging       = "packaging"
	TableMarketingStatus = "marketing_status"
)

// Tables lists every production table a document's row batches fan out
// into, in parent-before-child dependency order.
var Tables = []string{
	TableSplRawDocuments,
	TableProducts,
	TableProductNDCs,
	TableIngredients,
	TablePackaging,
	TableMarketingStatus,
}

// EncodeBatches renders one document's RowBatches into the CSV dialect's
// string rows, keyed by table name. surrogate ids, is_latest_version and
// loaded_at are never emitted here: they are assigned by the Loader.
func EncodeBatches(b etl.RowBatches) map[string][][]string {
	out := make(map[string][][]string, len(Tables))

	for _, r := range b.SplRawDocuments {
		out[TableSplRawDocuments] = append(out[TableSplRawDocuments], []string{
			r.DocumentID,
			r.SetID,
			strconv.Itoa(r.VersionNumber),
			Date(r.EffectiveTime),
			JSON(r.RawData),
			Null(r.SourceFilename),
		})
	}

	for _, r := range b.Products {
		out[TableProducts] = append(out[TableProducts], []string{
			r.DocumentID,
			r.SetID,
			strconv.Itoa(r.VersionNumber),
			Date(r.EffectiveTime),
			Null(r.ProductName),
			Null(r.ManufacturerName),
			Null(r.DosageForm),
			Null(r.RouteOfAdministration),
		})
	}

	for _, r := range b.ProductNDCs {
		out[TableProductNDCs] = append(out[TableProductNDCs], []string{
			r.DocumentID,
			r.NDCCode,
		})
	}

	for _, r := range b.Ingredients {
		out[TableIngredients] = append(out[TableIngredients], []string{
			r.DocumentID,
			Null(r.IngredientName),
			Null(r.SubstanceCode),
			Null(r.StrengthNumerator),
			Null(r.StrengthDenominator),
			Null(r.UnitOfMeasure),
			Bool(r.IsActiveIngredient),
		})
	}

	for _, r := range b.Packaging {
		out[TablePackaging] = append(out[TablePackaging], []string{
			r.DocumentID,
			Null(r.PackageNDC),
			Null(r.PackageDescription),
			Null(r.PackageType),
		})
	}

	for _, r := range b.MarketingStatus {
		out[TableMarketingStatus] = append(out[TableMarketingStatus], []string{
			r.DocumentID,
			Null(r.MarketingCategory),
			OptionalDate(r.StartDate),
			OptionalDate(r.EndDate),
		})
	}

	return out
}

// AppendDocument writes one document's RowBatches to w, table by table, in
// dependency order. Under the per-document-atomicity rule, callers
// must ensure all rows reach staging before the next document begins.
func AppendDocument(w *Writer, b etl.RowBatches) error {
	encoded := EncodeBatches(b)
	for _, table := range Tables {
		rows, ok := encoded[table]
		if !ok || len(rows) == 0 {
			continue
		}
		if err := w.AppendRows(table, rows); err != nil {
			_ = w.Abort(table)
			return err
		}
	}
	return nil
}
