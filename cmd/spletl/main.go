// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the spletl CLI: a production-grade ETL pipeline
// that ingests FDA Structured Product Labeling (SPL) archives into a
// relational warehouse.
//
// Usage:
//
//	spletl init                          Create the warehouse schema
//	spletl full-load <source-dir>        Full warehouse rebuild (TRUNCATE + load)
//	spletl delta-load <source-dir>       Incremental load of new/changed archives
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/gowthamrao/py-load-spl/internal/cliutil"
	"github.com/gowthamrao/py-load-spl/internal/errors"
	"github.com/gowthamrao/py-load-spl/internal/ui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "spletl.yaml", "Path to the configuration file")
		jsonOutput  = flag.Bool("json", false, "Alias for --log-format json (machine-readable output)")
		logFormat   = flag.String("log-format", "json", "Log and result output format: json or text")
		quiet       = flag.Bool("quiet", false, "Suppress progress bars and non-essential output")
		noColor     = flag.Bool("no-color", false, "Disable ANSI color in text-mode output")
		verbose     = flag.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `spletl - FDA Structured Product Labeling ETL pipeline

Usage:
  spletl <command> [options]

Commands:
  init                    Create the warehouse schema
  full-load <source-dir>  Full rebuild: parse every archive not yet in the ledger, atomically swap production tables
  delta-load <source-dir> Incremental load: only new or changed archives, merged into production

Global Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  spletl init --config spletl.yaml
  spletl full-load ./downloads
  spletl delta-load ./downloads --log-format text

Environment Variables:
  SPLETL_DB_DSN, SPLETL_DB_HOST, SPLETL_DB_ADAPTER, ... (see DESIGN.md)
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("spletl version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(errors.ExitSuccess)
	}

	if *jsonOutput {
		*logFormat = "json"
	}

	globals := cliutil.GlobalFlags{
		JSON:    *logFormat == "json",
		Quiet:   *quiet,
		NoColor: *noColor,
		Verbose: *verbose,
	}
	ui.InitColors(globals.NoColor)
	initLogging(globals)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(errors.ExitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(ctx, cmdArgs, *configPath, globals)
	case "full-load":
		runLoad(ctx, cmdArgs, *configPath, globals, modeFull)
	case "delta-load":
		runLoad(ctx, cmdArgs, *configPath, globals, modeDelta)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(errors.ExitConfig)
	}
}
