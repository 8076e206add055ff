// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cursor

import (
	"context"
	"sync"

	errs "cursorbridge/cli/internal/errors"
)

// Stream is a cursor filled incrementally by one producer while one consumer
// reads it. The producer calls Push for each row and Finish (or Fail) once;
// the consumer blocks in Next while the buffer is empty and the stream is open.
type Stream struct {
	warnings

	mu        sync.Mutex
	columns   []Column
	buf       []Row
	current   Row
	finished  bool
	closed    bool
	failure   error
	signal    chan struct{}
	batchSize int
}

// NewStream returns an open stream with the given columns. batchSize <= 0
// selects DefaultBatchSize.
func NewStream(cols []Column, batchSize int) *Stream {
	c := make([]Column, len(cols))
	copy(c, cols)
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Stream{columns: c, signal: make(chan struct{}), batchSize: batchSize}
}

// wake releases every goroutine blocked in Next. Caller holds s.mu.
func (s *Stream) wake() {
	close(s.signal)
	s.signal = make(chan struct{})
}

// Push appends one row. It fails once the stream is finished or closed.
func (s *Stream) Push(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Closed, "cursor is closed")
	}
	if s.finished {
		return errs.New(errs.Closed, "cursor is already finished")
	}
	s.buf = append(s.buf, row)
	s.wake()
	return nil
}

// Finish marks that no more rows will be pushed. Repeated calls are no-ops.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.closed {
		return
	}
	s.finished = true
	s.wake()
}

// Fail finishes the stream with err. Rows pushed before Fail are still
// delivered; the consumer sees err after draining them.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.closed {
		return
	}
	s.finished = true
	s.failure = err
	s.wake()
}

func (s *Stream) Columns() []Column { return s.columns }

// Next blocks until a row is available, the stream finishes, or ctx is done.
// A ctx that is already done still observes rows buffered at the time of the call.
func (s *Stream) Next(ctx context.Context) (bool, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return false, errs.New(errs.Closed, "cursor is closed")
		}
		if len(s.buf) > 0 {
			s.current = s.buf[0]
			s.buf[0] = nil
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return true, nil
		}
		if s.finished {
			s.current = nil
			failure := s.failure
			s.mu.Unlock()
			if failure != nil {
				return false, errs.Wrap(errs.BackendFailure, "row stream failed", failure)
			}
			return false, nil
		}
		wait := s.signal
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return false, errs.Wrap(errs.NoData, "timed out waiting for rows", ctx.Err())
		}
	}
}

func (s *Stream) Value(index int) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return valueAt(s.columns, s.current, index)
}

func (s *Stream) ValueByName(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return valueByName(s.columns, s.current, name)
}

func (s *Stream) Row() Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close discards buffered rows and fails every later Push and Next.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	s.current = nil
	s.wake()
	return nil
}

func (s *Stream) BatchSize() int { return s.batchSize }

// Buffered reports how many pushed rows are waiting to be read.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
