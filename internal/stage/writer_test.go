// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package stage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gowthamrao/py-load-spl/internal/etl"
)

func TestWriter_RotatesOnRowCount(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 2, 1<<30)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.AppendRows("widgets", [][]string{{"a", "b"}}))
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// 5 rows at chunk_size=2 -> chunks 0,1 full (2 rows each) opened before
	// rotation, chunk 2 holds the remainder; 3 files total.
	assert.Len(t, entries, 3)
}

func TestWriter_RotatesOnByteSize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1_000_000, 10)
	require.NoError(t, err)

	require.NoError(t, w.AppendRows("widgets", [][]string{{"0123456789"}}))
	require.NoError(t, w.AppendRows("widgets", [][]string{{"x"}}))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)
}

func TestWriter_ChunkFileNaming(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 100, 1<<30)
	require.NoError(t, err)
	require.NoError(t, w.AppendRows("products", [][]string{{"doc-1"}}))
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(dir, "products.0000.csv"))
	assert.NoError(t, err)
}

func TestWriter_AbortRemovesOnlyActiveChunk(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1, 1<<30)
	require.NoError(t, err)

	require.NoError(t, w.AppendRows("products", [][]string{{"doc-1"}})) // fills chunk .0000
	require.NoError(t, w.AppendRows("products", [][]string{{"doc-2"}})) // rotates: .0000 finalized, .0001 opened
	require.NoError(t, w.Abort("products"))

	_, err = os.Stat(filepath.Join(dir, "products.0000.csv"))
	assert.NoError(t, err, "finalized chunk must survive an abort")
	_, err = os.Stat(filepath.Join(dir, "products.0001.csv"))
	assert.True(t, os.IsNotExist(err), "active chunk must be removed on abort")
}

func TestEncodeBatches_ProducesExpectedTables(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batches := etl.RowBatches{
		SplRawDocuments: []etl.SplRawDocumentRow{{DocumentID: "d1", SetID: "s1", VersionNumber: 1, EffectiveTime: start, RawData: []byte(`{"@name":"document"}`), SourceFilename: "a.xml"}},
		Products:        []etl.ProductRow{{DocumentID: "d1", SetID: "s1", VersionNumber: 1, EffectiveTime: start, ProductName: "X"}},
		ProductNDCs:     []etl.ProductNDCRow{{DocumentID: "d1", NDCCode: "1234-5"}},
		Ingredients:     []etl.IngredientRow{{DocumentID: "d1", IngredientName: "ASPIRIN", IsActiveIngredient: true}},
		Packaging:       []etl.PackagingRow{{DocumentID: "d1", PackageNDC: "1234-5-1"}},
		MarketingStatus: []etl.MarketingStatusRow{{DocumentID: "d1", MarketingCategory: "active", StartDate: &start}},
	}

	out := EncodeBatches(batches)
	assert.Equal(t, [][]string{{"d1", "s1", "1", "2024-01-01", `{"@name":"document"}`, "a.xml"}}, out[TableSplRawDocuments])
	assert.Equal(t, "t", out[TableIngredients][0][6])
	assert.Equal(t, `\N`, out[TableProducts][0][5]) // manufacturer_name unset -> null
}

func TestAppendDocument_WritesValidCSV(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 100, 1<<30)
	require.NoError(t, err)

	batches := etl.RowBatches{
		Products: []etl.ProductRow{{DocumentID: "d1", SetID: "s1", VersionNumber: 1, EffectiveTime: time.Now(), ProductName: "X"}},
	}
	require.NoError(t, AppendDocument(w, batches))
	require.NoError(t, w.Close())

	f, err := os.Open(filepath.Join(dir, "products.0000.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "d1", rows[0][0])
}
