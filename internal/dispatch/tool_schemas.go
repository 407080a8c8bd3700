package dispatch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jellydator/ttlcache/v3"

	"github.com/malbeclabs/duckdb-mcp/internal/metrics"
	"github.com/malbeclabs/duckdb-mcp/internal/registry"
	"github.com/malbeclabs/duckdb-mcp/internal/session"
)

const (
	tableSchemasSQL = `
		SELECT string_agg(regexp_replace(sql, 'CREATE TABLE ', 'CREATE TABLE ' || database_name || '.'), E'\n')
		FROM duckdb_tables()
		WHERE database_name = ?
	`

	viewSchemasSQL = `
		SELECT string_agg(regexp_replace(sql, 'CREATE VIEW ', 'CREATE VIEW ' || database_name || '.'), E'\n')
		FROM duckdb_views()
		WHERE database_name = ?
		  AND NOT internal
		  AND schema_name NOT IN ('information_schema', 'pg_catalog')
		  AND view_name NOT IN (
			'duckdb_columns', 'duckdb_constraints', 'duckdb_databases', 'duckdb_indexes',
			'duckdb_schemas', 'duckdb_tables', 'duckdb_types', 'duckdb_views',
			'pragma_database_list', 'sqlite_master', 'sqlite_schema',
			'sqlite_temp_master', 'sqlite_temp_schema'
		  )
	`
)

func (d *Dispatcher) handleReadSchemas(ctx context.Context, in any) (string, error) {
	req := in.(registry.ReadSchemasInput)

	var text string
	err := d.cfg.Sessions.WithSession(ctx, func(ctx context.Context, sess *session.Session) error {
		key := schemaCacheKey(sess.ID, req.DatabaseName)
		if cached, ok := d.cachedSchema(key); ok {
			text = cached
			return nil
		}

		gen := d.schemaGeneration()

		ctx, cancel := d.withTimeout(ctx)
		defer cancel()

		tables, err := aggregateDDL(ctx, sess, tableSchemasSQL, req.DatabaseName)
		if err != nil {
			return fmt.Errorf("%w: failed to read tables: %w", ErrSchemaReadFailed, err)
		}
		views, err := aggregateDDL(ctx, sess, viewSchemasSQL, req.DatabaseName)
		if err != nil {
			return fmt.Errorf("%w: failed to read views: %w", ErrSchemaReadFailed, err)
		}

		text = fmt.Sprintf("Tables:\n%s\n\nViews:\n%s", tables, views)
		d.storeSchema(key, text, gen)
		return nil
	})
	if err != nil {
		return "", err
	}

	d.log.Debug("mcp/tool: schemas read", "database", req.DatabaseName)
	return text, nil
}

func (d *Dispatcher) cachedSchema(key string) (string, bool) {
	if d.schemas == nil {
		return "", false
	}
	item := d.schemas.Get(key)
	if item == nil {
		metrics.SchemaCacheLookupsTotal.WithLabelValues("miss").Inc()
		return "", false
	}
	metrics.SchemaCacheLookupsTotal.WithLabelValues("hit").Inc()
	return item.Value(), true
}

func (d *Dispatcher) schemaGeneration() uint64 {
	d.schemasMu.Lock()
	defer d.schemasMu.Unlock()
	return d.schemasGen
}

// storeSchema caches text only if no statement ran since gen was taken, so
// introspection that raced a catalog change is never served later.
func (d *Dispatcher) storeSchema(key, text string, gen uint64) {
	if d.schemas == nil {
		return
	}
	d.schemasMu.Lock()
	defer d.schemasMu.Unlock()
	if gen != d.schemasGen {
		return
	}
	d.schemas.Set(key, text, ttlcache.DefaultTTL)
}

func (d *Dispatcher) invalidateSchemas() {
	d.schemasMu.Lock()
	defer d.schemasMu.Unlock()
	d.schemasGen++
	if d.schemas != nil {
		d.schemas.DeleteAll()
	}
}

func aggregateDDL(ctx context.Context, sess *session.Session, query, databaseName string) (string, error) {
	var ddl sql.NullString
	if err := sess.Conn().QueryRowContext(ctx, query, databaseName).Scan(&ddl); err != nil {
		return "", err
	}
	return ddl.String, nil
}

func schemaCacheKey(sessionID, databaseName string) string {
	return sessionID + "/" + databaseName
}
