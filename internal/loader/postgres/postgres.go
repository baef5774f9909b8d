// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package postgres implements the Reference Loader: a
// row-oriented RDBMS target using PostgreSQL's native COPY for staging
// ingest and single-transaction atomic merge for publication.
//
// Connection lifecycle follows an EmbeddedBackend-style shape (a
// mutex-guarded, idempotent Close and idempotent schema creation running
// each DDL statement on its own); the CopyFrom/transaction idiom itself
// follows a pgx reference implementation (pgxpool.Pool, pool.Begin/Exec/
// Commit, deferred Rollback).
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gowthamrao/py-load-spl/internal/loader"
)

// Loader implements loader.Loader against a PostgreSQL warehouse.
type Loader struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	closed bool
}

var _ loader.Loader = (*Loader)(nil)

// New opens a pgxpool against dsn. The pool is lazily connected by pgx;
// New itself only parses the config and allocates the pool.
func New(ctx context.Context, dsn string) (loader.Loader, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	return &Loader{pool: pool}, nil
}

// Constructor is the loader.Constructor for db.adapter = "postgres".
var Constructor loader.Constructor = New

// Close releases the connection pool. Safe to call multiple times.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.pool.Close()
	return nil
}
