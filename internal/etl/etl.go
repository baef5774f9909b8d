// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package etl implements the Transformer: a pure function
// that normalizes one spldoc.ParsedDocument into typed row batches, one per
// production table, plus the full-fidelity raw_payload row.
//
// Transform does no I/O and retains no state across calls — the same shape
// a pure parse-tree-to-symbol conversion takes, generalized here to a
// relational fan-out instead of a single symbol table.
package etl

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gowthamrao/py-load-spl/internal/spldoc"
)

// SplRawDocumentRow is one row of spl_raw_documents. loaded_at is left
// unset; the Loader assigns it per batch using a single run timestamp.
type SplRawDocumentRow struct {
	DocumentID     string
	SetID          string
	VersionNumber  int
	EffectiveTime  time.Time
	RawData        json.RawMessage
	SourceFilename string
}

// ProductRow is one row of products. IsLatestVersion is never set by the
// Transformer: it is recomputed by the Loader during merge.
type ProductRow struct {
	DocumentID            string
	SetID                 string
	VersionNumber         int
	EffectiveTime         time.Time
	ProductName           string
	ManufacturerName      string
	DosageForm            string
	RouteOfAdministration string
}

// ProductNDCRow is one row of product_ndcs.
type ProductNDCRow struct {
	DocumentID string
	NDCCode    string
}

// IngredientRow is one row of ingredients.
type IngredientRow struct {
	DocumentID          string
	IngredientName      string
	SubstanceCode       string
	StrengthNumerator   string
	StrengthDenominator string
	UnitOfMeasure       string
	IsActiveIngredient  bool
}

// PackagingRow is one row of packaging.
type PackagingRow struct {
	DocumentID         string
	PackageNDC         string
	PackageDescription string
	PackageType        string
}

// MarketingStatusRow is one row of marketing_status.
type MarketingStatusRow struct {
	DocumentID        string
	MarketingCategory string
	StartDate         *time.Time
	EndDate           *time.Time
}

// RowBatches is the tagged collection of typed rows produced by Transform,
// one slice per production table.
type RowBatches struct {
	SplRawDocuments []SplRawDocumentRow
	Products        []ProductRow
	ProductNDCs     []ProductNDCRow
	Ingredients     []IngredientRow
	Packaging       []PackagingRow
	MarketingStatus []MarketingStatusRow
}

// Transform converts doc into RowBatches. It is a pure function: the same
// ParsedDocument always yields byte-identical rows, and doc is not mutated
// or retained.
func Transform(doc *spldoc.ParsedDocument) (RowBatches, error) {
	rawData, err := json.Marshal(doc.RawPayload)
	if err != nil {
		return RowBatches{}, err
	}

	batches := RowBatches{
		SplRawDocuments: []SplRawDocumentRow{{
			DocumentID:     doc.DocumentID,
			SetID:          doc.SetID,
			VersionNumber:  doc.VersionNumber,
			EffectiveTime:  doc.EffectiveTime,
			RawData:        rawData,
			SourceFilename: doc.SourceFilename,
		}},
		Products: []ProductRow{{
			DocumentID:            doc.DocumentID,
			SetID:                 doc.SetID,
			VersionNumber:         doc.VersionNumber,
			EffectiveTime:         doc.EffectiveTime,
			ProductName:           nullIfEmpty(doc.ProductName),
			ManufacturerName:      nullIfEmpty(doc.ManufacturerName),
			DosageForm:            nullIfEmpty(doc.DosageForm),
			RouteOfAdministration: nullIfEmpty(doc.RouteOfAdministration),
		}},
	}

	seen := make(map[string]bool, len(doc.NDCs))
	for _, ndc := range doc.NDCs {
		ndc = strings.TrimSpace(ndc)
		if ndc == "" || seen[ndc] {
			continue
		}
		seen[ndc] = true
		batches.ProductNDCs = append(batches.ProductNDCs, ProductNDCRow{
			DocumentID: doc.DocumentID,
			NDCCode:    ndc,
		})
	}

	for _, ing := range doc.Ingredients {
		batches.Ingredients = append(batches.Ingredients, IngredientRow{
			DocumentID:          doc.DocumentID,
			IngredientName:      nullIfEmpty(ing.Name),
			SubstanceCode:       nullIfEmpty(ing.SubstanceCode),
			StrengthNumerator:   nullIfEmpty(ing.StrengthNumerator),
			StrengthDenominator: nullIfEmpty(ing.StrengthDenominator),
			UnitOfMeasure:       nullIfEmpty(ing.UnitOfMeasure),
			IsActiveIngredient:  ing.IsActive,
		})
	}

	for _, pkg := range doc.Packaging {
		batches.Packaging = append(batches.Packaging, PackagingRow{
			DocumentID:         doc.DocumentID,
			PackageNDC:         nullIfEmpty(pkg.PackageNDC),
			PackageDescription: nullIfEmpty(pkg.PackageDescription),
			PackageType:        nullIfEmpty(pkg.PackageType),
		})
	}

	for _, ms := range doc.MarketingStatus {
		batches.MarketingStatus = append(batches.MarketingStatus, MarketingStatusRow{
			DocumentID:        doc.DocumentID,
			MarketingCategory: nullIfEmpty(ms.MarketingCategory),
			StartDate:         ms.StartDate,
			EndDate:           ms.EndDate,
		})
	}

	return batches, nil
}

// nullIfEmpty applies the data-cleaning rule at the row level:
// whitespace-trimmed strings that end up empty are treated as null by the
// Intermediate Writer, represented here as the zero string.
func nullIfEmpty(s string) string {
	return strings.TrimSpace(s)
}
