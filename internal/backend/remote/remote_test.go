package remote

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"cursorbridge/cli/internal/backend/memory"
	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/conn"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

const bufSize = 1 << 20

// startServer serves a memory backend over an in-process listener and returns
// a client connected to it.
func startServer(t *testing.T, be *memory.Backend) *Client {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	NewServer(func(context.Context) (bridge.Backend, error) { return be, nil }, nil).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewClient(cc)
}

type envelope struct {
	Kind  string
	Count int64
	Rows  [][]any
	Keys  [][]any
	Param bridge.Parameter
	Err   errs.Kind
}

// collect runs req on h and flattens the responses, draining every cursor.
func collect(t *testing.T, h *conn.Handle, req model.Request) []envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.Execute(ctx, req)
	require.NoError(t, err)

	var out []envelope
	for resp, err := range h.Container().All(ctx) {
		require.NoError(t, err)
		e := envelope{Kind: resp.Kind().String(), Count: resp.UpdateCount()}
		switch resp.Kind() {
		case bridge.KindResult:
			e.Rows, err = cursor.Drain(ctx, resp.Cursor())
			require.NoError(t, err)
		case bridge.KindParameter:
			e.Param = resp.Parameter()
		case bridge.KindError:
			e.Err = errs.KindOf(resp.Err())
		}
		if k := resp.GeneratedKeys(); k != nil {
			e.Keys, err = cursor.Drain(ctx, k)
			require.NoError(t, err)
		}
		out = append(out, e)
	}
	return out
}

func TestRemoteReproducesLocalSequence(t *testing.T) {
	script := "CREATE TABLE t (id BIGINT, v TEXT); " +
		"INSERT INTO t (v) VALUES ('a'), (?); " +
		"SELECT id, v FROM t; " +
		"CALL echo(1.5, 'x'); " +
		"SELECT * FROM missing"

	local := conn.Open(memory.New(memory.NewStore("local")))
	defer local.Close()
	want := collect(t, local, model.NewRequest(script, "b").WithKeys(model.ReturnGeneratedKeys))

	remote := conn.Open(startServer(t, memory.New(memory.NewStore("remote"))))
	defer remote.Close()
	got := collect(t, remote, model.NewRequest(script, "b").WithKeys(model.ReturnGeneratedKeys))

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Kind, got[i].Kind, "envelope %d", i)
		assert.Equal(t, want[i].Count, got[i].Count, "envelope %d", i)
		assert.Equal(t, want[i].Err, got[i].Err, "envelope %d", i)
		assert.Equal(t, want[i].Param.Name, got[i].Param.Name, "envelope %d", i)
		assert.Equal(t, len(want[i].Rows), len(got[i].Rows), "envelope %d", i)
	}

	// Integers cross the wire as numbers.
	assert.Equal(t, [][]any{{float64(1), "a"}, {float64(2), "b"}}, got[2].Rows)
	assert.Equal(t, [][]any{{float64(1)}, {float64(2)}}, got[1].Keys)
	assert.Equal(t, errs.BackendFailure, got[len(got)-1].Err)
}

func TestRemoteOutParameters(t *testing.T) {
	h := conn.Open(startServer(t, memory.New(memory.NewStore(t.Name()))))
	defer h.Close()
	collect(t, h, model.NewRequest("CALL echo(?, TRUE)", "hi"))

	out, err := h.Container().OutParameters()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, cursor.Names(out.Columns()))
	rows, err := cursor.Drain(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"hi", true}}, rows)
}

func TestRemoteStreamsRowsIncrementally(t *testing.T) {
	be := memory.New(memory.NewStore(t.Name()))
	release := make(chan struct{})
	be.Register("slow", func(ctx context.Context, _ *memory.Store, _ []any, out memory.ProcedureOutput) error {
		s := out.Stream([]cursor.Column{{Name: "n", Type: "BIGINT"}})
		_ = s.Push(cursor.Row{"n": int64(1)})
		<-release
		_ = s.Push(cursor.Row{"n": int64(2)})
		s.Finish()
		return nil
	})
	h := conn.Open(startServer(t, be))
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.Execute(ctx, model.NewRequest("CALL slow()"))
	require.NoError(t, err)
	require.NoError(t, h.Container().WaitFor(ctx, 5*time.Second))
	first, err := h.Container().FirstResult()
	require.NoError(t, err)

	rows := first.Cursor()
	ok, err := rows.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	v, err := rows.Value(1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v, "first row arrives before the producer finishes")

	close(release)
	ok, err = rows.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = rows.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteForwardsFetchSize(t *testing.T) {
	be := memory.New(memory.NewStore(t.Name()))
	serverSide := make(chan int, 1)
	be.Register("batch", func(_ context.Context, _ *memory.Store, _ []any, out memory.ProcedureOutput) error {
		s := out.Stream([]cursor.Column{{Name: "n", Type: "BIGINT"}})
		serverSide <- s.BatchSize()
		s.Finish()
		return nil
	})
	h := conn.Open(startServer(t, be), conn.WithFeatures(map[conn.Feature]any{conn.FeatureFetchSize: 8}))
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.Execute(ctx, model.NewRequest("CALL batch()"))
	require.NoError(t, err)
	require.NoError(t, h.Container().WaitFor(ctx, 5*time.Second))
	first, err := h.Container().FirstResult()
	require.NoError(t, err)

	assert.Equal(t, 8, first.Cursor().BatchSize())
	assert.Equal(t, 8, <-serverSide)
}

func TestRemoteForwardsWarnings(t *testing.T) {
	be := memory.New(memory.NewStore(t.Name()))
	be.Register("noisy", func(_ context.Context, _ *memory.Store, _ []any, out memory.ProcedureOutput) error {
		s := out.Stream([]cursor.Column{{Name: "n", Type: "BIGINT"}})
		_ = s.Push(cursor.Row{"n": int64(1)})
		s.AddWarning("NOTICE: relation exists, skipping")
		s.Finish()
		return nil
	})
	h := conn.Open(startServer(t, be))
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.Execute(ctx, model.NewRequest("CALL noisy()"))
	require.NoError(t, err)
	require.NoError(t, h.Container().WaitFor(ctx, 5*time.Second))
	first, err := h.Container().FirstResult()
	require.NoError(t, err)

	rows, err := cursor.Drain(ctx, first.Cursor())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{float64(1)}}, rows)
	assert.Equal(t, []string{"NOTICE: relation exists, skipping"}, first.Cursor().Warnings())
}

func TestRemoteFactoryFailure(t *testing.T) {
	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	NewServer(func(context.Context) (bridge.Backend, error) {
		return nil, errs.New(errs.Transport, "postgres://u:secret@db/x unreachable")
	}, nil).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer cc.Close()

	h := conn.Open(NewClient(cc))
	defer h.Close()
	got := collect(t, h, model.NewRequest("SELECT 1"))
	require.Len(t, got, 1)
	assert.Equal(t, errs.Transport, got[0].Err)
	assert.NotContains(t, h.Container().Responses()[0].Err().Error(), "secret")
}

func TestCodecRequestRoundTrip(t *testing.T) {
	req := model.NewRequest("SELECT * FROM t WHERE a = ?", int64(7)).WithKeys(model.NoGeneratedKeys).WithFetchSize(12)
	back, err := decodeRequest(encodeRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req.ID, back.ID)
	assert.Equal(t, req.Statement, back.Statement)
	assert.Equal(t, []any{float64(7)}, back.Args)
	assert.Equal(t, model.NoGeneratedKeys, back.Keys)
	assert.Equal(t, 12, back.FetchSize)

	_, err = decodeRequest(&structpb.Struct{})
	assert.Error(t, err)
}

func TestToValue(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	assert.Equal(t, "12345678-9abc-def0-0102-030405060708", toValue(id[:]).GetStringValue())
	assert.Equal(t, `\x0102`, toValue([]byte{1, 2}).GetStringValue())
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2025-01-02T03:04:05Z", toValue(ts).GetStringValue())
	assert.Equal(t, float64(3), toValue(int64(3)).GetNumberValue())
	assert.Equal(t, "{1 2}", toValue(struct{ A, B int }{1, 2}).GetStringValue())
}
