// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn resolves the target strings accepted by the CLI into a Target
// naming the backend to open: an in-process memory store, a PostgreSQL server
// or a remote bridge server.
package dsn

import "fmt"

// Kind is the backend family a target selects.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindPostgres Kind = "postgres"
	KindRemote   Kind = "remote"
	KindUnknown  Kind = "unknown"
)

// Target is a resolved target string.
type Target struct {
	Kind Kind
	// Raw is the input as given.
	Raw string
	// Normalized is the canonical form. For PostgreSQL it is the connection
	// string handed to pgx.
	Normalized string
	// Name is the memory store name.
	Name string
	// Addr is the host:port of a remote server.
	Addr string
	// TLS is set for grpcs:// targets.
	TLS bool
}

// String returns the normalized target.
func (t *Target) String() string { return t.Normalized }

// DSNInfo holds the parts of a PostgreSQL connection string.
type DSNInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   map[string]string
	Original string
}

// ParseError represents an error that occurred while parsing a target.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid target: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid target: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{
		DSN:    dsn,
		Reason: reason,
		Hint:   hint,
	}
}
