package sqlexec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cursorbridge/cli/internal/backend/memory"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/conn"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	h := conn.Open(memory.New(memory.NewStore(t.Name())))
	t.Cleanup(func() { _ = h.Close() })
	return New(h)
}

func TestExecuteSQLProducesJSON(t *testing.T) {
	e := newExecutor(t)
	e.Keys = model.ReturnGeneratedKeys

	id := []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := e.ExecuteSQL(ctx,
		"CREATE TABLE t (id BIGINT, name TEXT, ref ANY); "+
			"INSERT INTO t (name, ref) VALUES ('a', ?), ('b', ?); "+
			"SELECT id, name, ref FROM t",
		id, []byte{0xca, 0xfe})
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"rows_affected": 0},
		{"rows_affected": 2, "generated_keys": [[1], [2]]},
		{"columns": ["id", "name", "ref"], "rows": [
			[1, "a", "12345678-9abc-def0-0102-030405060708"],
			[2, "b", "\\xcafe"]
		]}
	]`, out)
}

func TestRunReportsBackendFailure(t *testing.T) {
	e := newExecutor(t)
	results, err := e.Run(context.Background(), "CREATE TABLE t (a BIGINT); SELECT * FROM missing; DROP TABLE t")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].RowsAffected)
	assert.Equal(t, int64(0), *results[0].RowsAffected)
	assert.Contains(t, results[1].Error, `table "missing" does not exist`)
}

func TestRunEmptyResultKeepsColumns(t *testing.T) {
	e := newExecutor(t)
	_, err := e.Run(context.Background(), "CREATE TABLE t (a BIGINT, b TEXT)")
	require.NoError(t, err)

	results, err := e.Run(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, results, 1)

	b, err := json.Marshal(results)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"columns": ["a", "b"]}]`, string(b))
}

func TestRunMergesOutParameters(t *testing.T) {
	e := newExecutor(t)
	results, err := e.Run(context.Background(), "CALL echo(?, 'x', TRUE)", 7)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Parameters{{"p1", int64(7)}, {"p2", "x"}, {"p3", true}}, results[0].OutParameters)
	v, ok := results[0].OutParameters.Get("p2")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestOutParametersKeepRegistrationOrder(t *testing.T) {
	e := newExecutor(t)
	be := e.Handle.Backend().(*memory.Backend)
	be.Register("report", func(_ context.Context, _ *memory.Store, _ []any, out memory.ProcedureOutput) error {
		for _, name := range []string{"total", "count", "average", "b10", "b2"} {
			if err := out.Parameter(name, "BIGINT", int64(len(name))); err != nil {
				return err
			}
		}
		return nil
	})

	results, err := e.Run(context.Background(), "CALL report()")
	require.NoError(t, err)
	require.Len(t, results, 1)
	names := make([]string, len(results[0].OutParameters))
	for i, p := range results[0].OutParameters {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"total", "count", "average", "b10", "b2"}, names)

	b, err := json.Marshal(results)
	require.NoError(t, err)
	assert.Equal(t, `[{"out_parameters":{"total":5,"count":5,"average":7,"b10":3,"b2":2}}]`, string(b))
}

func TestRunCollectsCursorWarnings(t *testing.T) {
	e := newExecutor(t)
	be := e.Handle.Backend().(*memory.Backend)
	be.Register("noisy", func(_ context.Context, _ *memory.Store, _ []any, out memory.ProcedureOutput) error {
		s := out.Stream([]cursor.Column{{Name: "n", Type: "BIGINT"}})
		s.AddWarning("value truncated")
		_ = s.Push(cursor.Row{"n": int64(1)})
		s.Finish()
		return nil
	})

	results, err := e.Run(context.Background(), "CALL noisy()")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"value truncated"}, results[0].Warnings)
	assert.Equal(t, [][]any{{int64(1)}}, results[0].Rows)
}

func TestRunUsesFetchSize(t *testing.T) {
	e := newExecutor(t)
	e.FetchSize = 4
	_, err := e.Run(context.Background(), "CREATE TABLE t (a BIGINT)")
	require.NoError(t, err)

	var batch int
	_, err = e.RunStatement(context.Background(), e.Prepare("SELECT * FROM t"), func(rs *ResultSet) {
		batch = rs.BatchSize()
	})
	require.NoError(t, err)
	assert.Equal(t, 4, batch)
}

func TestRunWhilePending(t *testing.T) {
	e := newExecutor(t)
	release := make(chan struct{})
	be := e.Handle.Backend().(*memory.Backend)
	be.Register("block", func(ctx context.Context, _ *memory.Store, _ []any, _ memory.ProcedureOutput) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	_, err := e.Handle.Execute(context.Background(), model.NewRequest("CALL block()"))
	require.NoError(t, err)
	_, err = e.Run(context.Background(), "SELECT * FROM t")
	assert.Error(t, err)
	close(release)
}

func TestResultSetUnwrapsToHandle(t *testing.T) {
	e := newExecutor(t)
	_, err := e.Run(context.Background(), "CREATE TABLE t (a BIGINT); INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	var seen *ResultSet
	stmt := e.Prepare("SELECT a FROM t")
	_, err = e.RunStatement(context.Background(), stmt, func(rs *ResultSet) { seen = rs })
	require.NoError(t, err)
	require.NotNil(t, seen)

	h, ok := conn.Unwrap[*conn.Handle](seen)
	require.True(t, ok)
	assert.Same(t, e.Handle, h)

	got, ok := conn.Unwrap[*Statement](seen)
	require.True(t, ok)
	assert.Same(t, stmt, got)
	assert.Equal(t, model.NoGeneratedKeys, got.Request().Keys, "handle default resolved before execution")
}

func TestRunWaitTimeout(t *testing.T) {
	e := newExecutor(t)
	e.WaitTimeout = 20 * time.Millisecond
	be := e.Handle.Backend().(*memory.Backend)
	be.Register("stall", func(ctx context.Context, _ *memory.Store, _ []any, _ memory.ProcedureOutput) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := e.Run(context.Background(), "CALL stall()")
	assert.True(t, errs.IsKind(err, errs.NoData), "got %v", err)
}
