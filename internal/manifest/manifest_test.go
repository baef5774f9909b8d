// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadMissingReturnsEmpty(t *testing.T) {
	m := NewManager(t.TempDir())
	man, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "", man.RunID)
	assert.Empty(t, man.Archives)
}

func TestManager_SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	in := &Manifest{RunID: "run-1", Mode: "FULL", StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	in.Archives = append(in.Archives, ArchiveEntry{ArchiveName: "a.zip", ArchiveChecksum: "abc", RowsStaged: 10, DocumentsOK: 2})
	require.NoError(t, m.Save(in))

	out, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, in.RunID, out.RunID)
	require.Len(t, out.Archives, 1)
	assert.Equal(t, "a.zip", out.Archives[0].ArchiveName)
}

func TestManager_SaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Save(&Manifest{RunID: "run-1"}))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no .tmp file should remain after a successful save")
}

func TestManager_AppendArchive_AccumulatesEntries(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	start := time.Now()

	require.NoError(t, m.AppendArchive("run-1", "DELTA", start, ArchiveEntry{ArchiveName: "a.zip"}))
	require.NoError(t, m.AppendArchive("run-1", "DELTA", start, ArchiveEntry{ArchiveName: "b.zip"}))

	man, err := m.Load()
	require.NoError(t, err)
	require.Len(t, man.Archives, 2)
	assert.Equal(t, "a.zip", man.Archives[0].ArchiveName)
	assert.Equal(t, "b.zip", man.Archives[1].ArchiveName)
}
