// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net"
	"strings"
)

const (
	defaultStore    = "default"
	defaultGRPCPort = "7070"
	defaultTLSPort  = "443"
)

// DetectKind detects the backend family from the target scheme.
func DetectKind(raw string) Kind {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(lower, "memory://"):
		return KindMemory
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres
	case strings.HasPrefix(lower, "grpc://"), strings.HasPrefix(lower, "grpcs://"):
		return KindRemote
	}
	return KindUnknown
}

// Resolve turns a target string into a Target.
//
//	memory://[name]            in-process store, "default" when unnamed
//	postgres(ql)://user@host/db PostgreSQL through pgx
//	grpc://host[:port]         bridge server, plaintext (port 7070)
//	grpcs://host[:port]        bridge server over TLS (port 443)
func Resolve(raw string) (*Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewParseError(raw, "empty target", "use memory://, postgres:// or grpc://")
	}
	t := &Target{Kind: DetectKind(raw), Raw: raw}

	switch t.Kind {
	case KindMemory:
		name := strings.Trim(raw[len("memory://"):], "/ ")
		if name == "" {
			name = defaultStore
		}
		if strings.ContainsAny(name, "/?#") {
			return nil, NewParseError(raw, "invalid store name "+name, "use memory://name")
		}
		t.Name = name
		t.Normalized = "memory://" + name
	case KindPostgres:
		normalized, err := NormalizePostgresDSN(raw)
		if err != nil {
			return nil, err
		}
		t.Normalized = normalized
	case KindRemote:
		scheme, hostport, _ := strings.Cut(raw, "://")
		t.TLS = strings.EqualFold(scheme, "grpcs")
		hostport = strings.TrimRight(hostport, "/")
		if hostport == "" {
			return nil, NewParseError(raw, "missing host", "use grpc://host:port")
		}
		if _, _, err := net.SplitHostPort(hostport); err != nil {
			port := defaultGRPCPort
			if t.TLS {
				port = defaultTLSPort
			}
			hostport = net.JoinHostPort(hostport, port)
		}
		t.Addr = hostport
		t.Normalized = strings.ToLower(scheme) + "://" + hostport
	default:
		return nil, NewParseError(raw, "unknown target type", "use memory://, postgres:// or grpc://")
	}
	return t, nil
}
