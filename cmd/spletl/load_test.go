// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gowthamrao/py-load-spl/internal/loader"
)

func TestRunMode_LoaderModeAndName(t *testing.T) {
	assert.Equal(t, loader.ModeFull, modeFull.loaderMode())
	assert.Equal(t, "full-load", modeFull.name())

	assert.Equal(t, loader.ModeDelta, modeDelta.loaderMode())
	assert.Equal(t, "delta-load", modeDelta.name())
}

func TestCountArchives(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.zip", "b.ZIP", "c.txt"} {
		f, err := os.Create(filepath.Join(dir, name))
		assert.NoError(t, err)
		assert.NoError(t, f.Close())
	}
	assert.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.zip"), 0o750))

	assert.EqualValues(t, 2, countArchives(dir))
}

func TestCountArchives_MissingDir(t *testing.T) {
	assert.EqualValues(t, 0, countArchives(filepath.Join(t.TempDir(), "does-not-exist")))
}
