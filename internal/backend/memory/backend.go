// Package memory implements an in-process backend over a table Store with a
// small SQL dialect: CREATE/DROP TABLE, INSERT, SELECT, UPDATE, DELETE and
// CALL of registered procedures. Statements separated by ';' run in order
// within one request, each producing one response.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// Backend executes requests against a Store.
type Backend struct {
	store     *Store
	batchSize int
	log       *slog.Logger

	mu    sync.RWMutex
	procs map[string]Procedure
}

// Option configures a Backend.
type Option func(*Backend)

// WithBatchSize sets the prefetch hint of streamed result cursors.
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

// New returns a backend over store with the built-in procedures list_tables
// and echo registered.
func New(store *Store, opts ...Option) *Backend {
	b := &Backend{
		store:     store,
		batchSize: cursor.DefaultBatchSize,
		log:       slog.New(slog.DiscardHandler),
		procs:     map[string]Procedure{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Register("list_tables", listTables)
	b.Register("echo", echo)
	return b
}

// Store returns the backing store.
func (b *Backend) Store() *Store { return b.store }

// Register makes proc callable as CALL name(...). Names are case-insensitive;
// registering an existing name replaces it.
func (b *Backend) Register(name string, proc Procedure) {
	b.mu.Lock()
	b.procs[normalizeProcName(name)] = proc
	b.mu.Unlock()
}

// Features advertises the capabilities of the memory backend.
func (b *Backend) Features() map[string]any {
	return map[string]any{
		"generated_keys_by_default": false,
		"fetch_size":                b.batchSize,
		"streaming_results":         true,
		"out_parameters":            true,
		"multiple_results":          true,
	}
}

// Execute runs every statement of req in order. The first failing statement
// produces an error response and ends the request.
func (b *Backend) Execute(ctx context.Context, req model.Request, r bridge.Responder) {
	defer r.ResponseFinish(req)

	stmts, err := parseScript(req.Statement)
	if err != nil {
		r.ResponseFailed(req, err)
		return
	}
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			r.ResponseFailed(req, err)
			return
		}
		if err := b.exec(ctx, req, st, r); err != nil {
			b.log.Debug("statement failed", "request_id", req.ID, "verb", st.verb(), "error", err)
			r.ResponseFailed(req, err)
			return
		}
	}
}

func (b *Backend) exec(ctx context.Context, req model.Request, st statement, r bridge.Responder) error {
	switch s := st.(type) {
	case *createTableStmt:
		if err := b.store.createTable(s.Table, s.Columns); err != nil {
			return err
		}
		r.ResponseUpdateCount(req, 0, nil)
	case *dropTableStmt:
		if err := b.store.dropTable(s.Table); err != nil {
			return err
		}
		r.ResponseUpdateCount(req, 0, nil)
	case *insertStmt:
		return b.insert(req, s, r)
	case *selectStmt:
		return b.selectRows(ctx, req, s, r)
	case *updateStmt:
		n, err := b.store.update(s.Table, s.Assignments, s.Where, req.Args)
		if err != nil {
			return err
		}
		r.ResponseUpdateCount(req, n, nil)
	case *deleteStmt:
		n, err := b.store.delete(s.Table, s.Where, req.Args)
		if err != nil {
			return err
		}
		r.ResponseUpdateCount(req, n, nil)
	case *callStmt:
		return b.call(ctx, req, s, r)
	default:
		return errs.Newf(errs.Unsupported, "unsupported statement %s", st.verb())
	}
	return nil
}

func (b *Backend) insert(req model.Request, s *insertStmt, r bridge.Responder) error {
	rows := make([][]any, len(s.Rows))
	for i, exprs := range s.Rows {
		rows[i] = make([]any, len(exprs))
		for j, e := range exprs {
			v, err := bind(e, req.Args)
			if err != nil {
				return err
			}
			rows[i][j] = v
		}
	}
	keyType, keys, err := b.store.insert(s.Table, s.Columns, rows)
	if err != nil {
		return err
	}

	var keyCursor cursor.Cursor
	if req.Keys == model.ReturnGeneratedKeys {
		var cols []cursor.Column
		data := make([][]any, 0, len(keys))
		if keyType != "" {
			cols = []cursor.Column{{Name: KeyColumn, Type: keyType, Table: s.Table}}
			for _, k := range keys {
				data = append(data, []any{k})
			}
		}
		m, err := cursor.NewMemory(cols, data)
		if err != nil {
			return err
		}
		keyCursor = m
	}
	r.ResponseUpdateCount(req, int64(len(rows)), keyCursor)
	return nil
}

// selectRows hands the consumer a stream first and pushes rows into it
// afterwards, so the caller can start reading before the scan completes.
func (b *Backend) selectRows(ctx context.Context, req model.Request, s *selectStmt, r bridge.Responder) error {
	cols, rows, err := b.store.scan(s.Table, s.Columns, s.Where, req.Args)
	if err != nil {
		return err
	}
	stream := cursor.NewStream(cols, req.BatchSize(b.batchSize))
	if !r.ResponseResult(req, stream, nil) {
		_ = stream.Close()
		return nil
	}
	for _, vals := range rows {
		if err := ctx.Err(); err != nil {
			stream.Fail(err)
			return nil
		}
		if err := stream.Push(cursor.RowOf(cols, vals)); err != nil {
			// Consumer closed the cursor; the remaining rows are discarded.
			return nil
		}
	}
	stream.Finish()
	return nil
}

func (b *Backend) call(ctx context.Context, req model.Request, s *callStmt, r bridge.Responder) error {
	b.mu.RLock()
	proc, ok := b.procs[normalizeProcName(s.Procedure)]
	b.mu.RUnlock()
	if !ok {
		return unknownProcedure(s.Procedure)
	}
	args := make([]any, len(s.Args))
	for i, e := range s.Args {
		v, err := bind(e, req.Args)
		if err != nil {
			return err
		}
		args[i] = v
	}
	return proc(ctx, b.store, args, &procOutput{req: req, r: r, batchSize: req.BatchSize(b.batchSize)})
}
