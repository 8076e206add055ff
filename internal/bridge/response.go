// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package bridge

import "cursorbridge/cli/internal/cursor"

// ResponseKind tags the variant held by a Response.
type ResponseKind int

const (
	KindResult ResponseKind = iota
	KindUpdateCount
	KindParameter
	KindError
)

func (k ResponseKind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindUpdateCount:
		return "update_count"
	case KindParameter:
		return "parameter"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Parameter is a named output value returned by a procedure call.
type Parameter struct {
	Name  string
	Type  string
	Value any
}

// Response is one outcome of a request cycle. It is immutable and only built by
// the Container. Accessors for another variant return zero values; branch on
// Kind, IsResult or IsError first.
type Response struct {
	kind  ResponseKind
	rows  cursor.Cursor
	keys  cursor.Cursor
	count int64
	param Parameter
	err   error
}

func newResultResponse(rows, keys cursor.Cursor) *Response {
	return &Response{kind: KindResult, rows: rows, keys: keys, count: -1}
}

func newUpdateCountResponse(count int64, keys cursor.Cursor) *Response {
	return &Response{kind: KindUpdateCount, keys: keys, count: count}
}

func newParameterResponse(p Parameter) *Response {
	return &Response{kind: KindParameter, param: p, count: -1}
}

func newErrorResponse(err error) *Response {
	return &Response{kind: KindError, err: err, count: -1}
}

func (r *Response) Kind() ResponseKind { return r.kind }

func (r *Response) IsResult() bool      { return r.kind == KindResult }
func (r *Response) IsUpdateCount() bool { return r.kind == KindUpdateCount }
func (r *Response) IsParameter() bool   { return r.kind == KindParameter }
func (r *Response) IsError() bool       { return r.kind == KindError }

// IsPending reports whether the response is still being assembled. Responses
// handed out by a Container are always complete.
func (r *Response) IsPending() bool { return false }

// Cursor returns the result cursor, or nil for other variants.
func (r *Response) Cursor() cursor.Cursor {
	if r.kind != KindResult {
		return nil
	}
	return r.rows
}

// GeneratedKeys returns the generated-keys cursor attached to a result or an
// update count, or nil when none was supplied.
func (r *Response) GeneratedKeys() cursor.Cursor {
	if r.kind != KindResult && r.kind != KindUpdateCount {
		return nil
	}
	return r.keys
}

// UpdateCount returns the affected row count, or -1 for other variants.
func (r *Response) UpdateCount() int64 { return r.count }

// Parameter returns the out parameter, or the zero Parameter for other variants.
func (r *Response) Parameter() Parameter { return r.param }

// Err returns the backend failure, or nil for other variants.
func (r *Response) Err() error { return r.err }
