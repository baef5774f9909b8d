// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package cliutil provides shared CLI plumbing for the spletl subcommands:
// global flag state and progress-bar construction.
package cliutil

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// GlobalFlags holds flags shared by every spletl subcommand.
type GlobalFlags struct {
	// JSON selects --log-format json (the default); false means "text".
	JSON bool

	// Quiet suppresses progress bars and non-essential status output.
	Quiet bool

	// NoColor disables ANSI color in text-mode output.
	NoColor bool

	// Verbose increases slog verbosity (each -v lowers the level by one step).
	Verbose int
}

// ProgressConfig determines if and how progress should be displayed.
type ProgressConfig struct {
	// Enabled indicates whether progress bars should be shown. Disabled when
	// --log-format json or --quiet is set, or stderr is not a TTY.
	Enabled bool

	// Writer is where progress output goes (always os.Stderr).
	Writer io.Writer

	// NoColor disables colored output in progress bars.
	NoColor bool
}

// NewProgressConfig derives a progress configuration from global flags and
// TTY detection. Progress is disabled in JSON mode because an interleaved
// progress bar would corrupt machine-readable output on the same stream.
func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	enabled := !globals.Quiet && !globals.JSON && isatty.IsTerminal(os.Stderr.Fd())

	return ProgressConfig{
		Enabled: enabled,
		Writer:  os.Stderr,
		NoColor: globals.NoColor,
	}
}

// NewArchiveProgressBar creates a progress bar tracking archives processed
// during a full-load or delta-load run. Returns nil when progress is
// disabled, so callers can call methods on it unconditionally only after a
// nil check — or simply skip updates when nil.
func NewArchiveProgressBar(cfg ProgressConfig, totalArchives int64) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}

	return progressbar.NewOptions64(totalArchives,
		progressbar.OptionSetDescription("archives"),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// NewSpinner creates an indeterminate progress spinner for phases where the
// total item count is not known up front (e.g. schema initialization).
// Returns nil when progress is disabled.
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}

	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	)
}
