// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cursor

import (
	"context"
	"sync"

	errs "cursorbridge/cli/internal/errors"
)

// Memory is a fully materialized cursor for backends that compute everything eagerly.
type Memory struct {
	warnings

	mu        sync.Mutex
	columns   []Column
	rows      []Row
	pos       int
	current   Row
	// data holds the positional values when the cursor was built from them,
	// so columns sharing a name keep their own values.
	data       [][]any
	currentPos []any
	closed     bool
	batchSize  int
}

// NewMemory builds a cursor from positional data. Each data row must have
// exactly len(cols) values.
func NewMemory(cols []Column, data [][]any) (*Memory, error) {
	rows := make([]Row, 0, len(data))
	for i, vals := range data {
		if len(vals) != len(cols) {
			return nil, errs.Newf(errs.InvalidColumn, "row %d has %d values, want %d", i+1, len(vals), len(cols))
		}
		rows = append(rows, RowOf(cols, vals))
	}
	m := NewMemoryRows(cols, rows)
	m.data = data
	return m, nil
}

// NewMemoryRows builds a cursor from rows keyed by column name.
func NewMemoryRows(cols []Column, rows []Row) *Memory {
	c := make([]Column, len(cols))
	copy(c, cols)
	return &Memory{columns: c, rows: rows, batchSize: len(rows)}
}

func (m *Memory) Columns() []Column { return m.columns }

func (m *Memory) Next(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, errs.New(errs.Closed, "cursor is closed")
	}
	if m.pos >= len(m.rows) {
		m.current = nil
		m.currentPos = nil
		return false, nil
	}
	m.current = m.rows[m.pos]
	if m.data != nil {
		m.currentPos = m.data[m.pos]
	}
	m.pos++
	return true, nil
}

func (m *Memory) Value(index int) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentPos != nil {
		if index < 1 || index > len(m.columns) {
			return nil, errs.Newf(errs.InvalidColumn, "column index %d out of range [1, %d]", index, len(m.columns))
		}
		return m.currentPos[index-1], nil
	}
	return valueAt(m.columns, m.current, index)
}

func (m *Memory) ValueByName(name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentPos != nil {
		for i, c := range m.columns {
			if c.Name == name {
				return m.currentPos[i], nil
			}
		}
		return nil, errs.Newf(errs.InvalidColumn, "unknown column %q", name)
	}
	return valueByName(m.columns, m.current, name)
}

func (m *Memory) Row() Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.rows = nil
	m.current = nil
	m.data = nil
	m.currentPos = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) BatchSize() int {
	if m.batchSize <= 0 {
		return DefaultBatchSize
	}
	return m.batchSize
}

// Len reports how many rows have not been read yet.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	return len(m.rows) - m.pos
}
