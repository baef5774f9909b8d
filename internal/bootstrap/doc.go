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

// Package bootstrap wires a loaded Config to a concrete loader.Loader and
// prepares the scratch directories a run needs before the orchestrator
// starts.
//
// # Usage
//
//	cfg, err := config.Load("spletl.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := bootstrap.EnsureScratchDirs(cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := bootstrap.InitializeSchema(ctx, cfg, logger); err != nil {
//	    log.Fatal(err)
//	}
//
// DefaultRegistry is the single place new loader adapters are registered;
// adding a new db.adapter means adding one line here.
package bootstrap
