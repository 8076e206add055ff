// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package conn provides the connection handle that callers hold: it owns the
// correlation container, the feature set, named timers and the backend.
package conn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	errs "cursorbridge/cli/internal/errors"
)

// QueryTimeoutTimer is the timer name armed by SetQueryTimeout.
const QueryTimeoutTimer = "query-timeout"

// Handle is one logical connection to a backend. It runs at most one request
// cycle at a time.
type Handle struct {
	id        string
	backend   bridge.Backend
	container *bridge.Container
	features  *Features
	timers    *timers
	log       *slog.Logger

	mu           sync.Mutex
	current      string
	cancel       context.CancelFunc
	queryTimeout time.Duration
	closed       bool
}

// Option configures a Handle.
type Option func(*options)

type options struct {
	features map[Feature]any
	log      *slog.Logger
}

// WithFeatures overlays values on top of the backend's advertised features.
func WithFeatures(values map[Feature]any) Option {
	return func(o *options) {
		for k, v := range values {
			o.features[k] = v
		}
	}
}

// WithLogger sets the logger used by the handle and its container.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Open wraps backend in a new Handle with a fresh identity.
func Open(backend bridge.Backend, opts ...Option) *Handle {
	o := options{features: map[Feature]any{}}
	if fp, ok := backend.(bridge.FeatureProvider); ok {
		for k, v := range fp.Features() {
			o.features[Feature(k)] = v
		}
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	id := model.NewID()
	log := o.log.With("conn", id)
	return &Handle{
		id:        id,
		backend:   backend,
		container: bridge.NewContainer(log),
		features:  NewFeatures(o.features),
		timers:    newTimers(),
		log:       log,
	}
}

// ID returns the handle's 32-character identity.
func (h *Handle) ID() string { return h.id }

// Features returns the live feature set.
func (h *Handle) Features() *Features { return h.features }

// Container returns the correlation container fed by the backend.
func (h *Handle) Container() *bridge.Container { return h.container }

// Backend returns the backend the handle executes on.
func (h *Handle) Backend() bridge.Backend { return h.backend }

// DefaultGeneratedKeys reports the keys mode used for requests that leave it
// unset.
func (h *Handle) DefaultGeneratedKeys() model.GeneratedKeys {
	if h.features.Bool(FeatureGeneratedKeysByDefault) {
		return model.ReturnGeneratedKeys
	}
	return model.NoGeneratedKeys
}

// StartTimer runs fn once after delay. A pending timer with the same name is
// replaced and will not fire.
func (h *Handle) StartTimer(name string, delay time.Duration, fn func()) {
	h.timers.start(name, delay, fn)
}

// StopTimer cancels a pending timer. Unknown names are ignored.
func (h *Handle) StopTimer(name string) {
	h.timers.stop(name)
}

// SetQueryTimeout bounds every following request. Zero disables the bound.
func (h *Handle) SetQueryTimeout(d time.Duration) {
	h.mu.Lock()
	h.queryTimeout = d
	h.mu.Unlock()
}

// Execute begins a request cycle and hands req to the backend on a new
// goroutine. The returned request carries the resolved generated-keys mode and
// the fetch size taken from the feature set when the request left it unset.
// Use the container to wait for and read the responses.
func (h *Handle) Execute(ctx context.Context, req model.Request) (model.Request, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return req, errs.New(errs.Closed, "connection is closed")
	}
	if req.ID == "" {
		req.ID = model.NewID()
	}
	if req.Keys == model.DefaultGeneratedKeys {
		req.Keys = h.DefaultGeneratedKeys()
	}
	if req.FetchSize <= 0 {
		req.FetchSize = max(h.features.Int(FeatureFetchSize, 0), 0)
	}
	if err := h.container.PrepareReceive(req); err != nil {
		return req, err
	}

	rctx, cancel := context.WithCancel(ctx)
	h.current = req.ID
	h.cancel = cancel
	if h.queryTimeout > 0 {
		h.timers.start(QueryTimeoutTimer, h.queryTimeout, cancel)
	}
	h.log.Debug("executing", "request_id", req.ID, "keys", req.Keys.String(), "fetch_size", req.FetchSize)

	go h.run(rctx, cancel, req)
	return req, nil
}

func (h *Handle) run(ctx context.Context, cancel context.CancelFunc, req model.Request) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("backend panicked", "request_id", req.ID, "panic", p)
			h.container.ResponseFailed(req, errs.New(errs.BackendFailure, fmt.Sprintf("backend panic: %v", p)))
		}
		// Backends are expected to finish; this only closes cycles they left open.
		h.container.ResponseFinish(req)

		h.mu.Lock()
		if h.current == req.ID {
			h.timers.stop(QueryTimeoutTimer)
			h.current = ""
			h.cancel = nil
		}
		h.mu.Unlock()
		cancel()
	}()
	h.backend.Execute(ctx, req, h.container)
}

// Cancel asks the in-flight request, if any, to stop.
func (h *Handle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close cancels the in-flight request, stops every timer and closes the
// backend when it is an io.Closer. Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.timers.stopAll()
	if c, ok := h.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
