// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-only

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gowthamrao/py-load-spl/internal/config"
	"github.com/gowthamrao/py-load-spl/internal/loader"
	"github.com/gowthamrao/py-load-spl/internal/loader/postgres"
)

// DefaultRegistry returns the loader registry with every built-in adapter
// registered under its db.adapter name.
func DefaultRegistry() *loader.Registry {
	r := loader.NewRegistry()
	r.Register("postgres", postgres.Constructor)
	return r
}

// OpenLoader opens the loader named by cfg.DB.Adapter against cfg's
// connection settings. Callers are responsible for closing the result.
func OpenLoader(ctx context.Context, r *loader.Registry, cfg *config.Config) (loader.Loader, error) {
	l, err := r.Open(ctx, cfg.DB.Adapter, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open loader %q: %w", cfg.DB.Adapter, err)
	}
	return l, nil
}

// InitializeSchema opens the configured loader and creates every production,
// staging and tracking table. Idempotent: calling it multiple times against
// the same target is safe.
func InitializeSchema(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	r := DefaultRegistry()
	l, err := OpenLoader(ctx, r, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close(ctx) }()

	logger.Info("bootstrap.schema.init.start", "adapter", cfg.DB.Adapter)

	if err := l.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("bootstrap: initialize schema: %w", err)
	}

	logger.Info("bootstrap.schema.init.success", "adapter", cfg.DB.Adapter)
	return nil
}

// EnsureScratchDirs creates the scratch-root subdirectories a run needs
// (downloads, quarantine, runs) if they do not already exist.
func EnsureScratchDirs(cfg *config.Config) error {
	for _, dir := range []string{cfg.DownloadPath, cfg.QuarantinePath, cfg.ScratchRoot} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("bootstrap: create %s: %w", dir, err)
		}
	}
	return nil
}
