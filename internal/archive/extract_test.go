// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package archive_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gowthamrao/py-load-spl/internal/archive"
)

func writeFixtureZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestExtract_WritesOnlyXMLEntriesFlattened(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "a.zip")
	writeFixtureZip(t, zipPath, map[string]string{
		"a/doc1.xml": "<document/>",
		"a/doc2.xml": "<document/>",
		"a/readme.txt": "not xml",
	})

	destDir := filepath.Join(dir, "extracted")
	paths, err := archive.Extract(zipPath, destDir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	sort.Strings(paths)
	assert.Equal(t, filepath.Join(destDir, "doc1.xml"), paths[0])
	assert.Equal(t, filepath.Join(destDir, "doc2.xml"), paths[1])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "<document/>", string(data))
}

func TestChecksum_IsStableForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	writeFixtureZip(t, path, map[string]string{"doc.xml": "<document/>"})

	sum1, err := archive.Checksum(path)
	require.NoError(t, err)
	sum2, err := archive.Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)
	assert.Len(t, sum1, 64)
}

func TestChecksum_DiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.zip")
	pathB := filepath.Join(dir, "b.zip")
	writeFixtureZip(t, pathA, map[string]string{"doc.xml": "<document/>"})
	writeFixtureZip(t, pathB, map[string]string{"doc.xml": "<document id=\"2\"/>"})

	sumA, err := archive.Checksum(pathA)
	require.NoError(t, err)
	sumB, err := archive.Checksum(pathB)
	require.NoError(t, err)
	assert.NotEqual(t, sumA, sumB)
}
