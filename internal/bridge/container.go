// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package bridge

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// State is the lifecycle position of a Container.
type State int

const (
	// StateIdle means no request is tracked.
	StateIdle State = iota
	// StateAwaiting means a request is tracked and nothing was produced yet.
	StateAwaiting
	// StateReceiving means at least one response is buffered and the cycle is open.
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateReceiving:
		return "receiving"
	}
	return "unknown"
}

// Container correlates one in-flight request with the responses its backend
// produces. It is safe for one producer and one consumer goroutine.
type Container struct {
	mu        sync.Mutex
	state     State
	pending   model.Request
	responses []*Response
	pos       int
	signal    chan struct{}
	log       *slog.Logger
}

// NewContainer returns an idle container. A nil logger discards output.
func NewContainer(log *slog.Logger) *Container {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Container{pos: -1, signal: make(chan struct{}), log: log}
}

// wake releases every waiter. Caller holds c.mu.
func (c *Container) wake() {
	close(c.signal)
	c.signal = make(chan struct{})
}

// State returns the current state.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the ID of the tracked request, or "" when idle.
func (c *Container) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.ID
}

// Responses returns a copy of the buffered response list.
func (c *Container) Responses() []*Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Response, len(c.responses))
	copy(out, c.responses)
	return out
}

// PrepareReceive starts tracking req. It fails unless the container is idle.
func (c *Container) PrepareReceive(req model.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return errs.Newf(errs.ProtocolMisuse, "a request is already pending (%s)", c.pending.ID)
	}
	if req.ID == "" {
		return errs.New(errs.ProtocolMisuse, "request has no correlation id")
	}
	c.pending = req
	c.responses = nil
	c.pos = -1
	c.state = StateAwaiting
	c.log.Debug("request pending", "request_id", req.ID)
	return nil
}

// appendLocked buffers resp for req if req is the tracked request.
func (c *Container) appendLocked(req model.Request, resp *Response) bool {
	if c.state == StateIdle || !c.pending.Same(req) {
		c.log.Debug("ignoring response for untracked request",
			"request_id", req.ID, "pending", c.pending.ID, "kind", resp.kind.String())
		return false
	}
	c.responses = append(c.responses, resp)
	c.state = StateReceiving
	c.wake()
	return true
}

func (c *Container) ResponseResult(req model.Request, rows cursor.Cursor, keys cursor.Cursor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(req, newResultResponse(rows, keys))
}

func (c *Container) ResponseUpdateCount(req model.Request, count int64, keys cursor.Cursor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(req, newUpdateCountResponse(count, keys))
}

// ResponseParameter buffers a named out parameter. A blank name is rejected
// before correlation is checked and nothing is buffered.
func (c *Container) ResponseParameter(req model.Request, name, typ string, value any) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, errs.New(errs.ProtocolMisuse, "out parameter must be named")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(req, newParameterResponse(Parameter{Name: name, Type: typ, Value: value})), nil
}

func (c *Container) ResponseFailed(req model.Request, cause error) bool {
	if cause == nil {
		cause = errs.New(errs.BackendFailure, "backend failed without a cause")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(req, newErrorResponse(cause))
}

// ResponseFinish closes the cycle for req and wakes any waiter.
func (c *Container) ResponseFinish(req model.Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || !c.pending.Same(req) {
		c.log.Debug("ignoring finish for untracked request", "request_id", req.ID, "pending", c.pending.ID)
		return false
	}
	c.state = StateIdle
	c.pending = model.Request{}
	c.log.Debug("request finished", "request_id", req.ID, "responses", len(c.responses))
	c.wake()
	return true
}

// WaitFor blocks until the first response is buffered or the cycle finishes.
// A buffered error response is returned as a BackendFailure. A zero timeout
// checks the current state without blocking; a negative one waits until ctx
// is done.
func (c *Container) WaitFor(ctx context.Context, timeout time.Duration) error {
	var failure error
	idle, err := c.await(ctx, timeout, func() bool { return len(c.responses) > 0 }, func() {
		failure = c.firstErrorLocked()
	})
	if err != nil {
		return err
	}
	if idle {
		return errs.New(errs.NoData, "no data received")
	}
	return failure
}

// await waits until ready holds or the cycle is idle. ready and onReady run
// with c.mu held. idle is true when the cycle ended without ready holding.
func (c *Container) await(ctx context.Context, timeout time.Duration, ready func() bool, onReady func()) (idle bool, err error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	last := false
	var cause error
	for {
		c.mu.Lock()
		if ready() {
			onReady()
			c.mu.Unlock()
			return false, nil
		}
		if c.state == StateIdle {
			c.mu.Unlock()
			return true, nil
		}
		wait := c.signal
		c.mu.Unlock()

		if last || timeout == 0 {
			if cause != nil {
				return false, errs.Wrap(errs.NoData, "no data received", cause)
			}
			return false, errs.New(errs.NoData, "no data received before timeout")
		}
		select {
		case <-wait:
		case <-expired:
			last = true
		case <-ctx.Done():
			last = true
			cause = ctx.Err()
		}
	}
}

func (c *Container) firstErrorLocked() error {
	for _, r := range c.responses {
		if r.IsError() {
			return errs.Wrap(errs.BackendFailure, "request failed", r.err)
		}
	}
	return nil
}

// FirstResult rewinds to the first buffered response. It returns nil when the
// container is idle and nothing was ever buffered, and fails when a cycle is
// open with nothing buffered yet.
func (c *Container) FirstResult() (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		if c.state == StateIdle {
			return nil, nil
		}
		return nil, errs.New(errs.NotReady, "no response produced yet")
	}
	c.pos = 0
	return c.responses[0], nil
}

// NextResult advances to the next buffered response, waiting up to timeout for
// one while the cycle is open. It returns ok=false once the cycle is finished
// and every response was read.
func (c *Container) NextResult(ctx context.Context, timeout time.Duration) (*Response, bool, error) {
	c.mu.Lock()
	if c.state == StateAwaiting {
		c.mu.Unlock()
		return nil, false, errs.New(errs.NotReady, "no response produced yet")
	}
	c.mu.Unlock()

	var resp *Response
	idle, err := c.await(ctx, timeout, func() bool { return c.pos+1 < len(c.responses) }, func() {
		c.pos++
		resp = c.responses[c.pos]
	})
	if err != nil {
		return nil, false, err
	}
	if idle {
		return nil, false, nil
	}
	return resp, true, nil
}

// All iterates over the responses of the current cycle from the read position
// on, waiting for each as the backend produces it. Iteration ends once the
// cycle finishes and every response was yielded, or at the first wait error.
func (c *Container) All(ctx context.Context) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		for {
			var resp *Response
			idle, err := c.await(ctx, -1, func() bool { return c.pos+1 < len(c.responses) }, func() {
				c.pos++
				resp = c.responses[c.pos]
			})
			if err != nil {
				yield(nil, err)
				return
			}
			if idle {
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// OutParameters synthesizes one row from every buffered out parameter, in
// registration order. It fails while a cycle is open.
func (c *Container) OutParameters() (cursor.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return nil, errs.New(errs.NotReady, "request is still running")
	}
	var (
		cols []cursor.Column
		vals []any
	)
	for _, r := range c.responses {
		if !r.IsParameter() {
			continue
		}
		typ := r.param.Type
		if typ == "" {
			typ = "unknown"
		}
		cols = append(cols, cursor.Column{Name: r.param.Name, Type: typ})
		vals = append(vals, r.param.Value)
	}
	// Positional values keep repeated names apart; by name the first wins.
	return cursor.NewMemory(cols, [][]any{vals})
}
