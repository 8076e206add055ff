// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package postgres

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// tableRef names the relation a result column was read from.
type tableRef struct {
	Catalog string
	Schema  string
	Table   string
}

// catalog resolves table OIDs from field descriptions to names and caches the
// answers to avoid repeated pg_class lookups.
type catalog struct {
	pool  *pgxpool.Pool
	log   *slog.Logger
	mu    sync.RWMutex
	cache map[uint32]tableRef
}

func newCatalog(pool *pgxpool.Pool, log *slog.Logger) *catalog {
	return &catalog{pool: pool, log: log, cache: make(map[uint32]tableRef)}
}

const tableByOIDSQL = `
SELECT current_database(), n.nspname, c.relname
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.oid = $1`

// lookup returns the relation for oid. Computed columns (oid 0) and failed
// lookups yield the zero tableRef; failures are not cached.
func (c *catalog) lookup(ctx context.Context, oid uint32) tableRef {
	if oid == 0 {
		return tableRef{}
	}
	c.mu.RLock()
	ref, ok := c.cache[oid]
	c.mu.RUnlock()
	if ok {
		return ref
	}

	if err := c.pool.QueryRow(ctx, tableByOIDSQL, oid).Scan(&ref.Catalog, &ref.Schema, &ref.Table); err != nil {
		c.log.Debug("table lookup failed", "oid", oid, "error", err)
		return tableRef{}
	}

	c.mu.Lock()
	c.cache[oid] = ref
	c.mu.Unlock()
	return ref
}

// clear drops every cached entry, e.g. after DDL.
func (c *catalog) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[uint32]tableRef)
}
