// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend opens the backend a resolved target names. The
// implementations live in the memory, postgres and remote subpackages.
package backend

import (
	"context"
	"log/slog"

	"cursorbridge/cli/internal/backend/memory"
	"cursorbridge/cli/internal/backend/postgres"
	"cursorbridge/cli/internal/backend/remote"
	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/dsn"
	errs "cursorbridge/cli/internal/errors"
)

// Options tune the backend Open creates.
type Options struct {
	// BatchSize is the prefetch hint of result cursors. Zero keeps the default.
	BatchSize int
	Logger    *slog.Logger
}

// Open creates the backend for target. PostgreSQL targets are pinged before
// returning; remote targets connect lazily on the first request.
// Backends holding resources implement io.Closer.
func Open(ctx context.Context, target *dsn.Target, opts Options) (bridge.Backend, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("target", target.Kind)

	switch target.Kind {
	case dsn.KindMemory:
		return memory.New(memory.OpenStore(target.Name),
			memory.WithBatchSize(opts.BatchSize),
			memory.WithLogger(log),
		), nil
	case dsn.KindPostgres:
		be, err := postgres.Open(ctx, target.Normalized,
			postgres.WithBatchSize(opts.BatchSize),
			postgres.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		return be, nil
	case dsn.KindRemote:
		ropts := []remote.ClientOption{
			remote.WithClientBatchSize(opts.BatchSize),
			remote.WithClientLogger(log),
		}
		if target.TLS {
			ropts = append(ropts, remote.WithTLS())
		}
		c, err := remote.Dial(target.Addr, ropts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, errs.Newf(errs.Unsupported, "unsupported target kind %q", target.Kind)
}

// Shared opens the resources of target once, a pool or a client connection,
// and returns a factory handing out a backend per call over them. Backends
// from the factory leave the shared resources open; release closes them.
func Shared(ctx context.Context, target *dsn.Target, opts Options) (factory remote.BackendFactory, release func() error, err error) {
	be, err := Open(ctx, target, opts)
	if err != nil {
		return nil, nil, err
	}
	release = func() error { return nil }

	switch b := be.(type) {
	case *memory.Backend:
		factory = func(context.Context) (bridge.Backend, error) {
			return memory.New(b.Store(), memory.WithBatchSize(opts.BatchSize), memory.WithLogger(opts.Logger)), nil
		}
	case *postgres.Backend:
		factory = func(context.Context) (bridge.Backend, error) {
			return postgres.New(b.Pool(), postgres.WithBatchSize(opts.BatchSize), postgres.WithLogger(opts.Logger)), nil
		}
		release = b.Close
	case *remote.Client:
		factory = func(context.Context) (bridge.Backend, error) {
			return remote.NewClient(b.Conn(), remote.WithClientBatchSize(opts.BatchSize), remote.WithClientLogger(opts.Logger)), nil
		}
		release = b.Close
	default:
		return nil, nil, errs.Newf(errs.Unsupported, "backend %T cannot be shared", be)
	}
	return factory, release, nil
}
