// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cursor implements the row cursors handed from a backend to a caller.
// Two variants share the Cursor contract: Memory, built once from a complete
// data set, and Stream, filled incrementally by a producer goroutine while the
// consumer blocks in Next.
//
// Cursors are forward-only and single-pass. Positional access is 1-based.
package cursor

import (
	"context"
	"iter"
	"sync"

	errs "cursorbridge/cli/internal/errors"
)

// DefaultBatchSize is the prefetch hint reported when none was configured.
const DefaultBatchSize = 64

// Row maps column name to a backend-native value.
type Row map[string]any

// Cursor is the read side shared by all cursor variants.
type Cursor interface {
	// Columns returns the fixed ordered column list.
	Columns() []Column
	// Next advances to the next row. It returns false once the cursor is exhausted.
	Next(ctx context.Context) (bool, error)
	// Value returns the current row's value at a 1-based position.
	Value(index int) (any, error)
	// ValueByName returns the current row's value for the named column.
	ValueByName(name string) (any, error)
	// Row returns the current row, or nil before the first Next.
	Row() Row
	// Close releases buffered rows. It is idempotent.
	Close() error
	// BatchSize is an advisory prefetch hint.
	BatchSize() int
	Warnings() []string
	ClearWarnings()
}

// warnings is the accumulating advisory list embedded by both variants.
type warnings struct {
	mu   sync.Mutex
	list []string
}

// AddWarning appends a non-fatal advisory message. Producers call it; the
// postgres backend forwards server notices this way and the remote client
// replays the warnings of the server-side cursor.
func (w *warnings) AddWarning(msg string) {
	w.mu.Lock()
	w.list = append(w.list, msg)
	w.mu.Unlock()
}

func (w *warnings) Warnings() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.list))
	copy(out, w.list)
	return out
}

func (w *warnings) ClearWarnings() {
	w.mu.Lock()
	w.list = nil
	w.mu.Unlock()
}

// valueAt resolves a 1-based position against the current row.
func valueAt(cols []Column, row Row, index int) (any, error) {
	if row == nil {
		return nil, errs.New(errs.InvalidColumn, "no current row")
	}
	if index < 1 || index > len(cols) {
		return nil, errs.Newf(errs.InvalidColumn, "column index %d out of range [1, %d]", index, len(cols))
	}
	return row[cols[index-1].Name], nil
}

func valueByName(cols []Column, row Row, name string) (any, error) {
	if row == nil {
		return nil, errs.New(errs.InvalidColumn, "no current row")
	}
	for _, c := range cols {
		if c.Name == name {
			return row[name], nil
		}
	}
	return nil, errs.Newf(errs.InvalidColumn, "unknown column %q", name)
}

// RowOf keys vals by the names of cols. Extra values are dropped, and a
// repeated column name keeps its first value.
func RowOf(cols []Column, vals []any) Row {
	r := make(Row, len(cols))
	for i, c := range cols {
		if _, seen := r[c.Name]; !seen && i < len(vals) {
			r[c.Name] = vals[i]
		}
	}
	return r
}

// All returns an iterator over the remaining rows of c. Iteration stops at the
// first error, which is yielded once.
func All(ctx context.Context, c Cursor) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			ok, err := c.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(c.Row(), nil) {
				return
			}
		}
	}
}

// Drain reads every remaining row of c into positional slices ordered by
// c.Columns().
func Drain(ctx context.Context, c Cursor) ([][]any, error) {
	var out [][]any
	for _, err := range All(ctx, c) {
		if err != nil {
			return out, err
		}
		vals, err := Values(c)
		if err != nil {
			return out, err
		}
		out = append(out, vals)
	}
	return out, nil
}

// Values returns the current row of c by position.
func Values(c Cursor) ([]any, error) {
	vals := make([]any, len(c.Columns()))
	for i := range vals {
		v, err := c.Value(i + 1)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
