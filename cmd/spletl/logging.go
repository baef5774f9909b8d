// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"log/slog"
	"os"

	"github.com/gowthamrao/py-load-spl/internal/cliutil"
)

// initLogging configures the default slog logger from global flags: JSON
// handler for --log-format json (the default, machine-readable), text
// handler otherwise. Each -v above the baseline lowers the level by one
// step (info -> debug); --quiet raises it to warn.
func initLogging(globals cliutil.GlobalFlags) {
	level := slog.LevelInfo
	switch {
	case globals.Quiet:
		level = slog.LevelWarn
	case globals.Verbose > 0:
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if globals.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
