package memory

import (
	"context"
	"strconv"
	"strings"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// Procedure is a routine callable with CALL. Returning an error fails the
// request after whatever the procedure already emitted.
type Procedure func(ctx context.Context, store *Store, args []any, out ProcedureOutput) error

// ProcedureOutput is what a running procedure can emit, in order.
type ProcedureOutput interface {
	// Result emits a materialised result set.
	Result(cols []cursor.Column, rows [][]any) error
	// Stream emits a result set the procedure fills afterwards. The procedure
	// must Finish or Fail the returned stream.
	Stream(cols []cursor.Column) *cursor.Stream
	UpdateCount(n int64)
	Parameter(name, typ string, value any) error
}

type procOutput struct {
	req       model.Request
	r         bridge.Responder
	batchSize int
}

func (o *procOutput) Result(cols []cursor.Column, rows [][]any) error {
	c, err := cursor.NewMemory(cols, rows)
	if err != nil {
		return err
	}
	o.r.ResponseResult(o.req, c, nil)
	return nil
}

func (o *procOutput) Stream(cols []cursor.Column) *cursor.Stream {
	s := cursor.NewStream(cols, o.batchSize)
	if !o.r.ResponseResult(o.req, s, nil) {
		_ = s.Close()
	}
	return s
}

func (o *procOutput) UpdateCount(n int64) {
	o.r.ResponseUpdateCount(o.req, n, nil)
}

func (o *procOutput) Parameter(name, typ string, value any) error {
	_, err := o.r.ResponseParameter(o.req, name, typ, value)
	return err
}

// listTables emits the table names of the store and a "count" out parameter.
func listTables(_ context.Context, store *Store, _ []any, out ProcedureOutput) error {
	names := store.Tables()
	rows := make([][]any, len(names))
	for i, n := range names {
		rows[i] = []any{n}
	}
	col := cursor.Column{Name: "table_name", Type: "TEXT"}
	if err := out.Result([]cursor.Column{col}, rows); err != nil {
		return err
	}
	return out.Parameter("count", "BIGINT", int64(len(names)))
}

// echo returns every argument as an out parameter named p1, p2, ...
func echo(_ context.Context, _ *Store, args []any, out ProcedureOutput) error {
	for i, a := range args {
		if err := out.Parameter("p"+strconv.Itoa(i+1), typeName(a), a); err != nil {
			return err
		}
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "NULL"
	case int64:
		return "BIGINT"
	case float64:
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	case string:
		return "TEXT"
	}
	return "ANY"
}

func normalizeProcName(name string) string { return strings.ToLower(name) }

func unknownProcedure(name string) error {
	return errs.Newf(errs.Unsupported, "procedure %q is not registered", name)
}
