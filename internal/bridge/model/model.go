// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package model defines the values exchanged between callers, the bridge and
// backends. The types in this package are transport-agnostic: a Request carries
// an explicit correlation ID so it can cross a process boundary unchanged.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// GeneratedKeys selects whether an update should report generated keys.
type GeneratedKeys int

const (
	// DefaultGeneratedKeys defers to the connection's feature set.
	DefaultGeneratedKeys GeneratedKeys = iota
	// ReturnGeneratedKeys asks the backend for a generated-keys cursor.
	ReturnGeneratedKeys
	// NoGeneratedKeys asks the backend not to build one.
	NoGeneratedKeys
)

func (g GeneratedKeys) String() string {
	switch g {
	case ReturnGeneratedKeys:
		return "return"
	case NoGeneratedKeys:
		return "none"
	default:
		return "default"
	}
}

// Request models a unit of work handed to a backend.
type Request struct {
	// ID correlates responses with the request currently tracked by a container.
	ID        string
	Statement string
	Args      []any
	Keys      GeneratedKeys
	// FetchSize is the prefetch hint for result cursors. Zero leaves the
	// choice to the backend.
	FetchSize int
}

// NewRequest builds a Request with a fresh correlation ID.
func NewRequest(statement string, args ...any) Request {
	return Request{ID: NewID(), Statement: statement, Args: args}
}

// WithKeys returns a copy of r with the generated-keys mode set.
func (r Request) WithKeys(k GeneratedKeys) Request {
	r.Keys = k
	return r
}

// WithFetchSize returns a copy of r with the cursor prefetch hint set.
func (r Request) WithFetchSize(n int) Request {
	r.FetchSize = n
	return r
}

// BatchSize returns the requested prefetch hint, or def when none was set.
func (r Request) BatchSize(def int) int {
	if r.FetchSize > 0 {
		return r.FetchSize
	}
	return def
}

// Same reports whether r and o are the same request cycle.
func (r Request) Same(o Request) bool {
	return r.ID != "" && r.ID == o.ID
}

// NewID returns a 32-character dash-free random token.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
