// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/gowthamrao/py-load-spl/internal/bootstrap"
	"github.com/gowthamrao/py-load-spl/internal/cliutil"
	"github.com/gowthamrao/py-load-spl/internal/config"
	"github.com/gowthamrao/py-load-spl/internal/errors"
	"github.com/gowthamrao/py-load-spl/internal/output"
	"github.com/gowthamrao/py-load-spl/internal/ui"
)

// runInit executes the 'init' CLI command: creates scratch directories and
// the warehouse schema against the configured target. Idempotent — safe to
// run again against an already-initialized target.
func runInit(ctx context.Context, args []string, configPath string, globals cliutil.GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: spletl init [options]

Description:
  Create the warehouse schema (production, staging and tracking tables)
  and the local scratch directories (download, quarantine, run) named by
  the configuration file. Every DDL statement is idempotent, so init is
  safe to run again against an already-initialized target.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitConfig)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(errors.NewConfigurationError(
			"Failed to load configuration",
			err.Error(),
			fmt.Sprintf("check the YAML syntax and required fields in %s", configPath),
			err,
		), globals.JSON)
	}

	if err := bootstrap.EnsureScratchDirs(cfg); err != nil {
		errors.FatalError(errors.NewConfigurationError(
			"Failed to create scratch directories",
			err.Error(),
			"check filesystem permissions for download_path, quarantine_path and scratch_root",
			err,
		), globals.JSON)
	}

	logger := slog.Default()
	if spinner := cliutil.NewSpinner(cliutil.NewProgressConfig(globals), "initializing schema"); spinner != nil {
		defer func() { _ = spinner.Close() }()
	}

	if err := bootstrap.InitializeSchema(ctx, cfg, logger); err != nil {
		errors.FatalError(errors.NewStagingError(
			"Failed to initialize warehouse schema",
			err.Error(),
			"check database connectivity and that db.adapter names a registered loader",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(struct {
			Status  string `json:"status"`
			Adapter string `json:"adapter"`
		}{Status: "initialized", Adapter: cfg.DB.Adapter})
		return
	}

	ui.Success(fmt.Sprintf("Warehouse schema initialized (%s)", cfg.DB.Adapter))
}
