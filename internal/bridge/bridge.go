// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package bridge presents a backend that answers asynchronously, possibly in
// several shots, to a caller that issues one request and then blocks.
//
// A Container tracks exactly one in-flight request. The backend, running on its
// own goroutine, pushes responses into the container through the Responder
// methods; the caller waits for the first response and enumerates the ordered
// list afterwards. Responses for any request other than the tracked one are
// ignored, so late answers from a cancelled request cannot corrupt a newer one.
package bridge

import (
	"context"

	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
)

// Responder is the producer side of a Container. Every method reports whether
// the response was applied to the tracked request.
type Responder interface {
	ResponseResult(req model.Request, rows cursor.Cursor, keys cursor.Cursor) bool
	ResponseUpdateCount(req model.Request, count int64, keys cursor.Cursor) bool
	ResponseParameter(req model.Request, name, typ string, value any) (bool, error)
	ResponseFailed(req model.Request, cause error) bool
	ResponseFinish(req model.Request) bool
}

// Backend executes requests. Execute is called on a dedicated goroutine and must
// eventually call ResponseFinish for req, after zero or more results or after
// ResponseFailed. ctx is cancelled when the caller cancels the request.
type Backend interface {
	Execute(ctx context.Context, req model.Request, r Responder)
}

// FeatureProvider is implemented by backends that advertise default feature
// values for the connections opened on them.
type FeatureProvider interface {
	Features() map[string]any
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req model.Request, r Responder)

func (f BackendFunc) Execute(ctx context.Context, req model.Request, r Responder) { f(ctx, req, r) }
