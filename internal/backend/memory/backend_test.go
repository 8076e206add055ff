package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/conn"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// run executes one request on h and returns every response once the cycle ends.
func run(t *testing.T, h *conn.Handle, req model.Request) []*bridge.Response {
	t.Helper()
	ctx := context.Background()
	_, err := h.Execute(ctx, req)
	require.NoError(t, err)

	c := h.Container()
	_ = c.WaitFor(ctx, time.Second)
	var out []*bridge.Response
	for {
		resp, ok, err := c.NextResult(ctx, time.Second)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, resp)
	}
}

func newHandle(t *testing.T) (*conn.Handle, *Backend) {
	t.Helper()
	be := New(NewStore(t.Name()))
	h := conn.Open(be)
	t.Cleanup(func() { _ = h.Close() })
	return h, be
}

func drain(t *testing.T, c cursor.Cursor) [][]any {
	t.Helper()
	rows, err := cursor.Drain(context.Background(), c)
	require.NoError(t, err)
	return rows
}

func TestMultiStatementResponsesInOrder(t *testing.T) {
	h, _ := newHandle(t)
	resps := run(t, h, model.NewRequest(
		"CREATE TABLE users (id BIGINT, name TEXT); "+
			"INSERT INTO users (name) VALUES ('ann'), (?); "+
			"SELECT id, name FROM users; "+
			"UPDATE users SET name = 'bo' WHERE id = 2; "+
			"DELETE FROM users WHERE name = 'nobody'",
		"bob",
	))

	require.Len(t, resps, 5)
	assert.True(t, resps[0].IsUpdateCount())
	assert.EqualValues(t, 0, resps[0].UpdateCount())
	assert.EqualValues(t, 2, resps[1].UpdateCount())
	require.True(t, resps[2].IsResult())
	assert.EqualValues(t, 1, resps[3].UpdateCount())
	assert.EqualValues(t, 0, resps[4].UpdateCount())

	rows := resps[2].Cursor()
	assert.Equal(t, []string{"id", "name"}, cursor.Names(rows.Columns()))
	assert.Equal(t, "users", rows.Columns()[0].Table)
	assert.Equal(t, "BIGINT", rows.Columns()[0].Type)
	assert.Equal(t, [][]any{{int64(1), "ann"}, {int64(2), "bob"}}, drain(t, rows))
}

func TestInsertGeneratedKeys(t *testing.T) {
	h, _ := newHandle(t)
	run(t, h, model.NewRequest("CREATE TABLE items (id BIGINT, label TEXT)"))

	t.Run("requested", func(t *testing.T) {
		resps := run(t, h, model.NewRequest("INSERT INTO items (label) VALUES ('a'), ('b')").WithKeys(model.ReturnGeneratedKeys))
		require.Len(t, resps, 1)
		require.True(t, resps[0].IsUpdateCount())
		assert.EqualValues(t, 2, resps[0].UpdateCount())
		keys := resps[0].GeneratedKeys()
		require.NotNil(t, keys)
		assert.Equal(t, []string{"id"}, cursor.Names(keys.Columns()))
		assert.Equal(t, [][]any{{int64(1)}, {int64(2)}}, drain(t, keys))
	})

	t.Run("explicit id advances sequence", func(t *testing.T) {
		run(t, h, model.NewRequest("INSERT INTO items VALUES (10, 'x')"))
		resps := run(t, h, model.NewRequest("INSERT INTO items (label) VALUES ('y')").WithKeys(model.ReturnGeneratedKeys))
		assert.Equal(t, [][]any{{int64(11)}}, drain(t, resps[0].GeneratedKeys()))
	})

	t.Run("not requested", func(t *testing.T) {
		resps := run(t, h, model.NewRequest("INSERT INTO items (label) VALUES ('c')").WithKeys(model.NoGeneratedKeys))
		assert.Nil(t, resps[0].GeneratedKeys())
	})

	t.Run("connection default", func(t *testing.T) {
		h.Features().Set(conn.FeatureGeneratedKeysByDefault, true)
		defer h.Features().Set(conn.FeatureGeneratedKeysByDefault, false)
		resps := run(t, h, model.NewRequest("INSERT INTO items (label) VALUES ('d')"))
		assert.NotNil(t, resps[0].GeneratedKeys())
	})
}

func TestSelectWhereAndPlaceholders(t *testing.T) {
	h, _ := newHandle(t)
	run(t, h, model.NewRequest("CREATE TABLE t (id BIGINT, v TEXT, n DOUBLE); INSERT INTO t (v, n) VALUES ('a', 1), ('b', 2.5), (NULL, 3)"))

	resps := run(t, h, model.NewRequest("SELECT v FROM t WHERE n = ?", 2.5))
	assert.Equal(t, [][]any{{"b"}}, drain(t, resps[0].Cursor()))

	resps = run(t, h, model.NewRequest("SELECT * FROM t WHERE id = ?", 1))
	assert.Equal(t, [][]any{{int64(1), "a", int64(1)}}, drain(t, resps[0].Cursor()))

	resps = run(t, h, model.NewRequest("SELECT * FROM t WHERE v = NULL"))
	assert.Empty(t, drain(t, resps[0].Cursor()))
}

func TestFailureStopsScript(t *testing.T) {
	h, be := newHandle(t)
	resps := run(t, h, model.NewRequest("CREATE TABLE a (id BIGINT); SELECT * FROM missing; CREATE TABLE b (id BIGINT)"))

	require.Len(t, resps, 2)
	assert.True(t, resps[0].IsUpdateCount())
	require.True(t, resps[1].IsError())
	assert.Contains(t, resps[1].Err().Error(), `"missing"`)
	assert.Equal(t, []string{"a"}, be.Store().Tables())
}

func TestUnsupportedStatement(t *testing.T) {
	h, _ := newHandle(t)
	ctx := context.Background()
	_, err := h.Execute(ctx, model.NewRequest("VACUUM"))
	require.NoError(t, err)

	err = h.Container().WaitFor(ctx, time.Second)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.BackendFailure))
	assert.True(t, errs.IsKind(err, errs.Unsupported))
}

func TestMissingPlaceholderArgument(t *testing.T) {
	h, _ := newHandle(t)
	resps := run(t, h, model.NewRequest("CREATE TABLE t (id BIGINT); SELECT * FROM t WHERE id = ?"))
	require.Len(t, resps, 2)
	assert.True(t, resps[1].IsError())
}

func TestCallProcedures(t *testing.T) {
	h, be := newHandle(t)
	be.Register("split", func(ctx context.Context, _ *Store, args []any, out ProcedureOutput) error {
		s := out.Stream([]cursor.Column{{Name: "part", Type: "TEXT"}})
		for _, a := range args {
			if err := s.Push(cursor.Row{"part": a}); err != nil {
				return err
			}
		}
		s.Finish()
		out.UpdateCount(int64(len(args)))
		return out.Parameter("total", "BIGINT", int64(len(args)))
	})

	resps := run(t, h, model.NewRequest("CALL split('x', ?)", "y"))
	require.Len(t, resps, 3)
	assert.Equal(t, [][]any{{"x"}, {"y"}}, drain(t, resps[0].Cursor()))
	assert.EqualValues(t, 2, resps[1].UpdateCount())
	require.True(t, resps[2].IsParameter())

	out, err := h.Container().OutParameters()
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(2)}}, drain(t, out))

	t.Run("builtin echo", func(t *testing.T) {
		run(t, h, model.NewRequest("CALL echo(1, 'two')"))
		out, err := h.Container().OutParameters()
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "p2"}, cursor.Names(out.Columns()))
		assert.Equal(t, "TEXT", out.Columns()[1].Type)
		assert.Equal(t, [][]any{{int64(1), "two"}}, drain(t, out))
	})

	t.Run("builtin list_tables", func(t *testing.T) {
		resps := run(t, h, model.NewRequest("CREATE TABLE z (id BIGINT); CREATE TABLE a (id BIGINT); CALL LIST_TABLES()"))
		require.Len(t, resps, 4)
		assert.Equal(t, [][]any{{"a"}, {"z"}}, drain(t, resps[2].Cursor()))
	})

	t.Run("unknown", func(t *testing.T) {
		resps := run(t, h, model.NewRequest("CALL nope()"))
		require.Len(t, resps, 1)
		assert.True(t, errs.IsKind(resps[0].Err(), errs.Unsupported))
	})
}

func TestOpenStoreIsShared(t *testing.T) {
	a := OpenStore("shared-" + t.Name())
	b := OpenStore("shared-" + t.Name())
	assert.Same(t, a, b)
	assert.NotSame(t, a, NewStore("shared-"+t.Name()))
}

func TestDropTable(t *testing.T) {
	h, be := newHandle(t)
	run(t, h, model.NewRequest("CREATE TABLE t (id BIGINT)"))
	resps := run(t, h, model.NewRequest("DROP TABLE t; DROP TABLE t"))
	require.Len(t, resps, 2)
	assert.True(t, resps[0].IsUpdateCount())
	assert.True(t, resps[1].IsError())
	assert.Empty(t, be.Store().Tables())
}

func TestFetchSizeReachesResultCursors(t *testing.T) {
	be := New(NewStore(t.Name()), WithBatchSize(64))
	be.Register("numbers", func(_ context.Context, _ *Store, _ []any, out ProcedureOutput) error {
		s := out.Stream([]cursor.Column{{Name: "n", Type: "BIGINT"}})
		s.Finish()
		return nil
	})
	h := conn.Open(be, conn.WithFeatures(map[conn.Feature]any{conn.FeatureFetchSize: 8}))
	defer h.Close()
	run(t, h, model.NewRequest("CREATE TABLE t (n BIGINT)"))

	resps := run(t, h, model.NewRequest("SELECT * FROM t"))
	require.Len(t, resps, 1)
	assert.Equal(t, 8, resps[0].Cursor().BatchSize())

	h.Features().Set(conn.FeatureFetchSize, 5)
	resps = run(t, h, model.NewRequest("CALL numbers()"))
	require.Len(t, resps, 1)
	assert.Equal(t, 5, resps[0].Cursor().BatchSize())

	resps = run(t, h, model.NewRequest("SELECT * FROM t").WithFetchSize(2))
	require.Len(t, resps, 1)
	assert.Equal(t, 2, resps[0].Cursor().BatchSize())
}
