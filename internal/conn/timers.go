// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package conn

import (
	"sync"
	"time"
)

// timers holds named one-shot callbacks. Scheduling a name that is already
// pending replaces it.
type timers struct {
	mu      sync.Mutex
	pending map[string]*timerEntry
	seq     uint64
}

type timerEntry struct {
	t   *time.Timer
	gen uint64
}

func newTimers() *timers {
	return &timers{pending: make(map[string]*timerEntry)}
}

func (ts *timers) start(name string, delay time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if old, ok := ts.pending[name]; ok {
		old.t.Stop()
	}
	ts.seq++
	gen := ts.seq
	entry := &timerEntry{gen: gen}
	entry.t = time.AfterFunc(delay, func() {
		// A replaced or stopped entry no longer matches and must not run.
		ts.mu.Lock()
		cur, ok := ts.pending[name]
		if !ok || cur.gen != gen {
			ts.mu.Unlock()
			return
		}
		delete(ts.pending, name)
		ts.mu.Unlock()
		fn()
	})
	ts.pending[name] = entry
}

func (ts *timers) stop(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if e, ok := ts.pending[name]; ok {
		e.t.Stop()
		delete(ts.pending, name)
	}
}

func (ts *timers) stopAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for name, e := range ts.pending {
		e.t.Stop()
		delete(ts.pending, name)
	}
}

func (ts *timers) active(name string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, ok := ts.pending[name]
	return ok
}
