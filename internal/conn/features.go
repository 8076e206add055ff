// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package conn

import (
	"maps"
	"strconv"
	"sync"
)

// Feature names a backend capability flag.
type Feature string

const (
	// FeatureGeneratedKeysByDefault makes updates return generated keys unless
	// the request opts out.
	FeatureGeneratedKeysByDefault Feature = "generated_keys_by_default"
	// FeatureFetchSize is the prefetch hint handed to result cursors. Execute
	// copies it into requests that carry no fetch size of their own.
	FeatureFetchSize Feature = "fetch_size"

	// The remaining features describe the backend and are informational:
	// overriding them does not change how requests run.

	// FeatureStreamingResults reports whether result cursors fill incrementally.
	FeatureStreamingResults Feature = "streaming_results"
	// FeatureOutParameters reports whether procedure calls can return out parameters.
	FeatureOutParameters Feature = "out_parameters"
	// FeatureMultipleResults reports whether one request may yield several results.
	FeatureMultipleResults Feature = "multiple_results"
)

// Features is the effective capability set of one connection. It starts from a
// snapshot and changes only through Set.
type Features struct {
	mu     sync.RWMutex
	values map[Feature]any
}

// NewFeatures copies snapshot into a new feature set.
func NewFeatures(snapshot map[Feature]any) *Features {
	f := &Features{values: make(map[Feature]any, len(snapshot))}
	maps.Copy(f.values, snapshot)
	return f
}

// Get returns the raw value of a feature.
func (f *Features) Get(name Feature) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[name]
	return v, ok
}

// Set adds or overrides a feature.
func (f *Features) Set(name Feature, value any) {
	f.mu.Lock()
	f.values[name] = value
	f.mu.Unlock()
}

// Bool interprets a feature as a flag. Missing or unparsable values are false.
func (f *Features) Bool(name Feature) bool {
	v, ok := f.Get(name)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	}
	return false
}

// Int interprets a feature as an integer, falling back to def.
func (f *Features) Int(name Feature, def int) int {
	v, ok := f.Get(name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

// Snapshot returns a copy of the current values.
func (f *Features) Snapshot() map[Feature]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.values)
}
