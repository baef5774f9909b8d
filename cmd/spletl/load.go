// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/gowthamrao/py-load-spl/internal/bootstrap"
	"github.com/gowthamrao/py-load-spl/internal/cliutil"
	"github.com/gowthamrao/py-load-spl/internal/config"
	splerrors "github.com/gowthamrao/py-load-spl/internal/errors"
	"github.com/gowthamrao/py-load-spl/internal/loader"
	"github.com/gowthamrao/py-load-spl/internal/orchestrator"
	"github.com/gowthamrao/py-load-spl/internal/output"
	"github.com/gowthamrao/py-load-spl/internal/ui"
)

// runMode selects which subcommand invoked runLoad, since full-load and
// delta-load differ only in the loader.Mode passed to the orchestrator.
type runMode int

const (
	modeFull runMode = iota
	modeDelta
)

func (m runMode) loaderMode() loader.Mode {
	if m == modeFull {
		return loader.ModeFull
	}
	return loader.ModeDelta
}

func (m runMode) name() string {
	if m == modeFull {
		return "full-load"
	}
	return "delta-load"
}

// runLoad executes the 'full-load' or 'delta-load' CLI command: it runs the
// full acquire-parse-transform-stage-merge cycle against source-dir and
// reports the outcome. Exit code follows the error-handling policy:
// ExitSuccess on a clean run, ExitPartial when documents were quarantined
// but the run otherwise succeeded, ExitLoader on a fatal loader error,
// ExitCanceled on SIGINT/SIGTERM.
func runLoad(ctx context.Context, args []string, configPath string, globals cliutil.GlobalFlags, mode runMode) {
	fs := flag.NewFlagSet(mode.name(), flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: spletl %s <source-dir> [options]

Description:
  %s

Options:
`, mode.name(), loadDescription(mode))
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(splerrors.ExitConfig)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(splerrors.ExitConfig)
	}
	sourceDir := fs.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		splerrors.FatalError(splerrors.NewConfigurationError(
			"Failed to load configuration",
			err.Error(),
			fmt.Sprintf("check the YAML syntax and required fields in %s", configPath),
			err,
		), globals.JSON)
	}

	if err := bootstrap.EnsureScratchDirs(cfg); err != nil {
		splerrors.FatalError(splerrors.NewConfigurationError(
			"Failed to create scratch directories",
			err.Error(),
			"check filesystem permissions for download_path, quarantine_path and scratch_root",
			err,
		), globals.JSON)
	}

	registry := bootstrap.DefaultRegistry()
	ldr, err := bootstrap.OpenLoader(ctx, registry, cfg)
	if err != nil {
		splerrors.FatalError(splerrors.NewConfigurationError(
			"Failed to open loader",
			err.Error(),
			"check db.adapter and connection settings",
			err,
		), globals.JSON)
	}
	defer func() { _ = ldr.Close(ctx) }()

	if !globals.Quiet && !globals.JSON {
		ui.Header(fmt.Sprintf("spletl %s", mode.name()))
	}

	orch := orchestrator.New(cfg, ldr, nil)

	archiveCount := countArchives(sourceDir)
	if bar := cliutil.NewArchiveProgressBar(cliutil.NewProgressConfig(globals), archiveCount); bar != nil {
		defer func() { _ = bar.Close() }()
		orch.OnArchive(func(orchestrator.ArchiveOutcome) { _ = bar.Add(1) })
	}

	result, runErr := orch.Run(ctx, mode.loaderMode(), sourceDir)

	var partial *orchestrator.PartialSuccessError
	switch {
	case runErr == nil:
		reportResult(result, globals)
	case errors.As(runErr, &partial):
		reportResult(result, globals)
		if !globals.JSON {
			ui.Warningf("%d document(s) quarantined; see %s", partial.Quarantined, cfg.QuarantinePath)
		}
		os.Exit(splerrors.ExitPartial)
	case errors.Is(runErr, context.Canceled):
		if !globals.JSON {
			ui.Warning("run canceled")
		}
		os.Exit(splerrors.ExitCanceled)
	default:
		splerrors.FatalError(runErr, globals.JSON)
	}
}

// countArchives returns the number of *.zip entries under dir, or 0 if dir
// cannot be read — the progress bar degrades to an indeterminate count
// rather than failing the run over a cosmetic feature.
func countArchives(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var n int64
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			n++
		}
	}
	return n
}

func loadDescription(mode runMode) string {
	if mode == modeFull {
		return "Parse every archive under source-dir not already recorded in the\n  processed-archive ledger with the same checksum, stage rows, and\n  atomically replace every production table with them (TRUNCATE + INSERT)."
	}
	return "Parse only archives not already recorded in the processed-archive\n  ledger (or whose checksum changed), merging rows into production\n  (delete+insert, recomputing is_latest_version per affected set_id)."
}

func reportResult(result *orchestrator.Result, globals cliutil.GlobalFlags) {
	if result == nil {
		return
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}

	ui.Successf("Run %s complete (%s): %d record(s) loaded across %d archive(s)",
		result.RunID, result.Status, result.RecordsLoaded, len(result.Archives))
	for _, a := range result.Archives {
		if a.Skipped {
			fmt.Printf("  %s %s\n", ui.DimText("skip"), a.ArchiveName)
			continue
		}
		fmt.Printf("  %s %s (%s ok, %s failed)\n",
			ui.Label("load"), a.ArchiveName, ui.CountText(a.DocumentsOK), ui.CountText(a.DocumentsFailed))
	}
}
