// Package sqlexec runs statements through a connection handle and collects
// every response of the cycle into JSON-friendly results.
//
// Key features include:
//   - One Result per response envelope, in the order the backend produced them
//   - Generated keys, out parameters and cursor warnings folded into the results
//   - JSON formatting with UUID and byte array handling
//   - Statement and ResultSet values that unwrap back to the handle
package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/conn"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// Result represents one response envelope for JSON marshaling.
type Result struct {
	Columns       []string   `json:"columns,omitempty"`
	Rows          [][]any    `json:"rows,omitempty"`
	RowsAffected  *int64     `json:"rows_affected,omitempty"`
	GeneratedKeys [][]any    `json:"generated_keys,omitempty"`
	OutParameters Parameters `json:"out_parameters,omitempty"`
	Warnings      []string   `json:"warnings,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for Result to render byte
// values as strings.
func (r Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	a := Alias(r)
	a.Rows = serializable(r.Rows)
	a.GeneratedKeys = serializable(r.GeneratedKeys)
	if len(r.OutParameters) > 0 {
		a.OutParameters = make(Parameters, len(r.OutParameters))
		for i, p := range r.OutParameters {
			a.OutParameters[i] = Parameter{Name: p.Name, Value: JSONValue(p.Value)}
		}
	}
	return json.Marshal(a)
}

// Parameter is one named out parameter.
type Parameter struct {
	Name  string
	Value any
}

// Parameters holds out parameters in registration order. It marshals as a
// JSON object whose keys keep that order.
type Parameters []Parameter

// Get returns the value of the first parameter called name.
func (ps Parameters) Get(name string) (any, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

func (ps Parameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("out parameter %s: %w", p.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func serializable(rows [][]any) [][]any {
	if len(rows) == 0 {
		return rows
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, val := range row {
			out[i][j] = JSONValue(val)
		}
	}
	return out
}

// JSONValue renders 16-byte values as UUID strings and other byte slices as
// \x-prefixed hex. Other values are returned unchanged.
func JSONValue(val any) any {
	switch v := val.(type) {
	case []byte:
		if len(v) == 16 {
			return uuid.UUID(v).String()
		}
		return fmt.Sprintf("\\x%x", v)
	case [16]byte:
		return uuid.UUID(v).String()
	default:
		return v
	}
}

// Executor executes statements on a connection handle.
type Executor struct {
	// Handle is the connection statements run on.
	Handle *conn.Handle
	// Keys is the generated-keys mode of every request.
	Keys model.GeneratedKeys
	// QueryTimeout bounds each request when positive.
	QueryTimeout time.Duration
	// WaitTimeout bounds the wait for the first response when positive.
	WaitTimeout time.Duration
	// FetchSize overrides the connection's fetch_size feature when positive.
	FetchSize int
}

// New creates an Executor over h.
func New(h *conn.Handle) *Executor {
	return &Executor{Handle: h}
}

// Statement is a request issued by an Executor.
type Statement struct {
	exec *Executor
	req  model.Request
}

// Connection returns the handle the statement ran on.
func (s *Statement) Connection() *conn.Handle { return s.exec.Handle }

// Request returns the request as executed, with its resolved keys mode.
func (s *Statement) Request() model.Request { return s.req }

// ResultSet is a result cursor produced by a Statement.
type ResultSet struct {
	cursor.Cursor
	stmt *Statement
}

// Statement returns the statement that produced the result set.
func (rs *ResultSet) Statement() any { return rs.stmt }

// Prepare builds the request for sql without running it.
func (e *Executor) Prepare(sql string, args ...any) *Statement {
	return &Statement{exec: e, req: model.NewRequest(sql, args...).WithKeys(e.Keys).WithFetchSize(e.FetchSize)}
}

// Run executes sql and returns one Result per response, in order. Out
// parameters are merged into a single Result at the position of the first one.
// The error is set when the request could not be started or awaited; backend
// failures are reported in Result.Error.
func (e *Executor) Run(ctx context.Context, sql string, args ...any) ([]Result, error) {
	stmt := e.Prepare(sql, args...)
	return e.RunStatement(ctx, stmt, nil)
}

// RunStatement executes stmt. onResult, when set, receives every result set
// before it is drained.
func (e *Executor) RunStatement(ctx context.Context, stmt *Statement, onResult func(*ResultSet)) ([]Result, error) {
	if e.QueryTimeout > 0 {
		e.Handle.SetQueryTimeout(e.QueryTimeout)
	}
	req, err := e.Handle.Execute(ctx, stmt.req)
	if err != nil {
		return nil, err
	}
	stmt.req = req

	if e.WaitTimeout > 0 {
		c := e.Handle.Container()
		if err := c.WaitFor(ctx, e.WaitTimeout); errs.IsKind(err, errs.NoData) && c.State() != bridge.StateIdle {
			e.Handle.Cancel()
			return nil, err
		}
	}

	results := []Result{}
	params := -1
	for resp, err := range e.Handle.Container().All(ctx) {
		if err != nil {
			e.Handle.Cancel()
			return results, err
		}
		switch resp.Kind() {
		case bridge.KindResult:
			rs := &ResultSet{Cursor: resp.Cursor(), stmt: stmt}
			if onResult != nil {
				onResult(rs)
			}
			res := Result{Columns: cursor.Names(rs.Columns()), Rows: [][]any{}}
			rows, err := cursor.Drain(ctx, rs)
			res.Rows = append(res.Rows, rows...)
			if err != nil {
				res.Error = err.Error()
			}
			if w := rs.Warnings(); len(w) > 0 {
				res.Warnings = w
			}
			res.GeneratedKeys = drainKeys(ctx, resp, &res)
			results = append(results, res)
		case bridge.KindUpdateCount:
			n := resp.UpdateCount()
			res := Result{RowsAffected: &n}
			res.GeneratedKeys = drainKeys(ctx, resp, &res)
			results = append(results, res)
		case bridge.KindParameter:
			p := resp.Parameter()
			if params < 0 {
				params = len(results)
				results = append(results, Result{OutParameters: Parameters{}})
			}
			results[params].OutParameters = append(results[params].OutParameters, Parameter{Name: p.Name, Value: p.Value})
		case bridge.KindError:
			results = append(results, Result{Error: resp.Err().Error()})
		}
	}
	return results, nil
}

func drainKeys(ctx context.Context, resp *bridge.Response, res *Result) [][]any {
	keys := resp.GeneratedKeys()
	if keys == nil {
		return nil
	}
	rows, err := cursor.Drain(ctx, keys)
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	return rows
}

// ExecuteSQL runs sql and returns the results as a JSON array.
func (e *Executor) ExecuteSQL(ctx context.Context, sql string, args ...any) (string, error) {
	results, err := e.Run(ctx, sql, args...)
	if err != nil {
		return "", err
	}
	jsonBytes, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("JSON marshal error: %w", err)
	}
	return string(jsonBytes), nil
}
