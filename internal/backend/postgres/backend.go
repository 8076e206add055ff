// Package postgres implements a backend over a pgx connection pool. Queries
// stream their rows into the result cursor as they arrive; writes run in a
// transaction and report rows affected; CALL maps the returned row to out
// parameters.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// Backend executes requests on a pgx pool.
type Backend struct {
	pool      *pgxpool.Pool
	catalog   *catalog
	batchSize int
	log       *slog.Logger
	ownsPool  bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithBatchSize sets the prefetch hint of result cursors.
func WithBatchSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// New wraps an existing pool. Closing the backend leaves the pool open.
func New(pool *pgxpool.Pool, opts ...Option) *Backend {
	b := &Backend{pool: pool, batchSize: cursor.DefaultBatchSize, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	b.catalog = newCatalog(pool, b.log)
	return b
}

// Open creates a pool for dsn, verifies it with a ping and returns a backend
// that owns the pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Backend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "invalid postgres connection string", err)
	}
	cfg.ConnConfig.OnNotice = notices.handle
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.Transport, "failed to reach database", err)
	}
	b := New(pool, opts...)
	b.ownsPool = true
	return b, nil
}

// Pool returns the underlying pool.
func (b *Backend) Pool() *pgxpool.Pool { return b.pool }

// Close closes the pool when the backend created it.
func (b *Backend) Close() error {
	if b.ownsPool {
		b.pool.Close()
	}
	return nil
}

// Features advertises the capabilities of the PostgreSQL backend.
func (b *Backend) Features() map[string]any {
	return map[string]any{
		"generated_keys_by_default": false,
		"fetch_size":                b.batchSize,
		"streaming_results":         true,
		"out_parameters":            true,
		"multiple_results":          false,
	}
}

// Execute runs req.Statement with req.Args as $n parameters.
func (b *Backend) Execute(ctx context.Context, req model.Request, r bridge.Responder) {
	defer r.ResponseFinish(req)

	verb := Classify(req.Statement)
	b.log.Debug("executing", "request_id", req.ID, "verb", verb.String())

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		r.ResponseFailed(req, errs.Wrap(errs.Transport, "failed to acquire connection", err))
		return
	}
	defer conn.Release()

	switch verb {
	case VerbQuery:
		err = b.query(ctx, conn, req, r)
	case VerbCall:
		err = b.call(ctx, conn, req, r)
	default:
		err = b.write(ctx, conn, req, r)
	}
	if err != nil {
		b.log.Debug("statement failed", "request_id", req.ID, "error", err)
		r.ResponseFailed(req, errs.Wrap(errs.BackendFailure, "statement failed", err))
	}
}

func (b *Backend) columns(ctx context.Context, conn *pgxpool.Conn, fds []pgconn.FieldDescription) []cursor.Column {
	tm := conn.Conn().TypeMap()
	cols := make([]cursor.Column, len(fds))
	for i, fd := range fds {
		typ := fmt.Sprintf("oid:%d", fd.DataTypeOID)
		if t, ok := tm.TypeForOID(fd.DataTypeOID); ok {
			typ = t.Name
		}
		ref := b.catalog.lookup(ctx, fd.TableOID)
		cols[i] = cursor.Column{Name: fd.Name, Type: typ, Table: ref.Table, Catalog: ref.Catalog, Schema: ref.Schema}
	}
	return cols
}

// query reads the first row before publishing the result so that errors pgx
// defers to the first Next become an error response instead of a failed cursor.
// Notices the server sends while the query runs become cursor warnings.
func (b *Backend) query(ctx context.Context, conn *pgxpool.Conn, req model.Request, r bridge.Responder) error {
	pc := conn.Conn().PgConn()
	sink := notices.watch(pc)
	defer notices.release(pc)

	rows, err := conn.Query(ctx, req.Statement, req.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	has := rows.Next()
	if !has && rows.Err() != nil {
		return rows.Err()
	}

	cols := b.columns(ctx, conn, rows.FieldDescriptions())
	stream := cursor.NewStream(cols, req.BatchSize(b.batchSize))
	sink.attach(stream)
	if !r.ResponseResult(req, stream, nil) {
		_ = stream.Close()
		return nil
	}

	for ; has; has = rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			stream.Fail(err)
			return nil
		}
		if err := stream.Push(cursor.RowOf(cols, vals)); err != nil {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		stream.Fail(err)
		return nil
	}
	stream.Finish()
	return nil
}

func (b *Backend) call(ctx context.Context, conn *pgxpool.Conn, req model.Request, r bridge.Responder) error {
	rows, err := conn.Query(ctx, req.Statement, req.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		return rows.Err()
	}
	vals, err := rows.Values()
	if err != nil {
		return err
	}
	cols := b.columns(ctx, conn, rows.FieldDescriptions())
	for i, c := range cols {
		if _, err := r.ResponseParameter(req, c.Name, c.Type, vals[i]); err != nil {
			return err
		}
	}
	rows.Close()
	return rows.Err()
}

// write runs the statement in a transaction. RETURNING rows become the
// generated-keys cursor when keys were requested.
func (b *Backend) write(ctx context.Context, conn *pgxpool.Conn, req model.Request, r bridge.Responder) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		affected int64
		keys     cursor.Cursor
	)
	if HasReturning(req.Statement) {
		rows, err := tx.Query(ctx, req.Statement, req.Args...)
		if err != nil {
			return err
		}
		data, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) { return row.Values() })
		if err != nil {
			return err
		}
		affected = rows.CommandTag().RowsAffected()
		if req.Keys == model.ReturnGeneratedKeys {
			m, err := cursor.NewMemory(b.columns(ctx, conn, rows.FieldDescriptions()), data)
			if err != nil {
				return err
			}
			keys = m
		}
	} else {
		ct, err := tx.Exec(ctx, req.Statement, req.Args...)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		if !ct.Insert() && !ct.Update() && !ct.Delete() && !ct.Select() {
			// DDL may rename or drop relations.
			b.catalog.clear()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	r.ResponseUpdateCount(req, affected, keys)
	return nil
}
