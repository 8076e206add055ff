package cmd

import (
	"context"
	"errors"
	"strings"

	"cursorbridge/cli/internal/backend"
	"cursorbridge/cli/internal/conn"
	"cursorbridge/cli/internal/dsn"
	"cursorbridge/cli/internal/keychain"
	"cursorbridge/cli/internal/neterrors"
)

// targetSource names where a target came from, for messages.
type targetSource string

const (
	sourceFlag     targetSource = "--target flag"
	sourceConfig   targetSource = "config"
	sourceKeychain targetSource = "OS keychain"
)

// resolveTarget picks the target from the flag, then the config (with its
// CURSORBRIDGE_BACKEND_TARGET override), then the DSN saved by connect.
func resolveTarget(flag string) (*dsn.Target, targetSource, error) {
	raw, source := strings.TrimSpace(flag), sourceFlag
	if raw == "" {
		raw, source = strings.TrimSpace(cfg.Backend.Target), sourceConfig
	}
	if raw == "" {
		km, err := keychain.GetManager()
		if err != nil {
			return nil, "", errors.New("no target given and secure storage is unavailable; pass --target")
		}
		if raw, err = km.LoadDBDSN(); err != nil {
			return nil, "", err
		}
		source = sourceKeychain
	}
	t, err := dsn.Resolve(raw)
	if err != nil {
		return nil, "", err
	}
	return t, source, nil
}

func backendOptions() backend.Options {
	return backend.Options{BatchSize: cfg.Backend.BatchSize, Logger: logger}
}

// handleOptions applies the configured feature overrides and logger.
func handleOptions() []conn.Option {
	opts := []conn.Option{conn.WithLogger(logger)}
	if len(cfg.Features) > 0 {
		features := make(map[conn.Feature]any, len(cfg.Features))
		for k, v := range cfg.Features {
			features[conn.Feature(k)] = v
		}
		opts = append(opts, conn.WithFeatures(features))
	}
	return opts
}

// openHandle opens the backend for t and a connection handle over it.
func openHandle(ctx context.Context, t *dsn.Target) (*conn.Handle, error) {
	be, err := backend.Open(ctx, t, backendOptions())
	if err != nil {
		return nil, neterrors.FormatNetworkError(err, "opening the "+string(t.Kind)+" backend", targetHost(t))
	}
	return conn.Open(be, handleOptions()...), nil
}

// targetHost returns host:port of network targets for messages.
func targetHost(t *dsn.Target) string {
	switch t.Kind {
	case dsn.KindRemote:
		return t.Addr
	case dsn.KindPostgres:
		if info, err := dsn.ParsePostgres(t.Normalized); err == nil {
			return info.Host + ":" + info.Port
		}
	}
	return ""
}

// contextOrBackground returns ctx, or a background context when cobra ran
// without one.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
