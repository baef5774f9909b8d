// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package archive extracts SPL ZIP archives to a scratch directory and
// computes the archive ledger's checksum, grounded on the corpus's
// archive/zip + nested-zip traversal idiom (zip.NewReader / f.Open /
// io.Copy) rather than hand-rolling a ZIP reader.
package archive

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Checksum returns the hex SHA-256 of the archive file at path, the ledger
// key an archive is uniquely identified by alongside its filename.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("archive: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Extract unpacks every .xml entry in the ZIP archive at archivePath into
// destDir, flattening any internal directory structure since SPL archives
// carry no cross-file relationships the orchestrator needs to preserve.
// Returns the extracted file paths in archive order.
func Extract(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("archive: open zip %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", destDir, err)
	}

	var paths []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			continue
		}

		destPath := filepath.Join(destDir, filepath.Base(f.Name))
		if err := extractOne(f, destPath); err != nil {
			return paths, fmt.Errorf("archive: extract %s: %w", f.Name, err)
		}
		paths = append(paths, destPath)
	}
	return paths, nil
}

func extractOne(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
