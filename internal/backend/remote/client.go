// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// Client is a backend that forwards requests to a Bridge server and replays
// the streamed frames into the responder. Rows are pushed into the result
// cursor as they arrive.
type Client struct {
	conn      *grpc.ClientConn
	ownsConn  bool
	batchSize int
	log       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	tls       bool
	dialOpts  []grpc.DialOption
	batchSize int
	log       *slog.Logger
}

// WithTLS dials with TLS 1.2+ using the host part of the target as SNI.
func WithTLS() ClientOption {
	return func(o *clientOptions) { o.tls = true }
}

// WithDialOptions appends raw dial options.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithClientBatchSize sets the prefetch hint of result cursors built by the client.
func WithClientBatchSize(n int) ClientOption {
	return func(o *clientOptions) { o.batchSize = n }
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.log = l }
}

func buildOptions(opts []ClientOption) clientOptions {
	o := clientOptions{batchSize: cursor.DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	if o.batchSize <= 0 {
		o.batchSize = cursor.DefaultBatchSize
	}
	return o
}

// Dial creates a client for addr (host:port). The connection is established
// lazily on the first request.
func Dial(addr string, opts ...ClientOption) (*Client, error) {
	o := buildOptions(opts)

	creds := insecure.NewCredentials()
	if o.tls {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, o.dialOpts...)
	cc, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "failed to create grpc client", err)
	}
	c := NewClient(cc, opts...)
	c.ownsConn = true
	return c, nil
}

// NewClient wraps an existing connection. Closing the client leaves it open.
func NewClient(cc *grpc.ClientConn, opts ...ClientOption) *Client {
	o := buildOptions(opts)
	return &Client{conn: cc, batchSize: o.batchSize, log: o.log}
}

// Conn returns the underlying connection.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

// Close closes the connection when Dial created it.
func (c *Client) Close() error {
	if c.ownsConn {
		return c.conn.Close()
	}
	return nil
}

// Features advertises what the remote protocol carries.
func (c *Client) Features() map[string]any {
	return map[string]any{
		"generated_keys_by_default": false,
		"fetch_size":                c.batchSize,
		"streaming_results":         true,
		"out_parameters":            true,
		"multiple_results":          true,
	}
}

func transportErr(msg string, err error) error {
	if st, ok := status.FromError(err); ok {
		return errs.Wrap(errs.Transport, msg, errors.New(st.Code().String()+": "+st.Message()))
	}
	return errs.Wrap(errs.Transport, msg, err)
}

// Execute forwards req and replays the frames into r.
func (c *Client) Execute(ctx context.Context, req model.Request, r bridge.Responder) {
	defer r.ResponseFinish(req)

	cs, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Execute", ServerStreams: true}, ExecuteMethod)
	if err != nil {
		r.ResponseFailed(req, transportErr("failed to open stream", err))
		return
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	if err := stream.Send(encodeRequest(req)); err != nil {
		r.ResponseFailed(req, transportErr("failed to send request", err))
		return
	}
	if err := stream.CloseSend(); err != nil {
		r.ResponseFailed(req, transportErr("failed to close send side", err))
		return
	}

	// current is the result cursor still receiving rows.
	var current *cursor.Stream
	defer func() {
		if current != nil {
			current.Fail(errs.New(errs.Transport, "stream ended inside a result"))
		}
	}()

	for {
		f, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			terr := transportErr("stream failed", err)
			if current != nil {
				current.Fail(terr)
				current = nil
			}
			r.ResponseFailed(req, terr)
			return
		}
		if current, err = c.apply(req, r, f, current); err != nil {
			r.ResponseFailed(req, err)
			return
		}
	}
}

// apply replays one frame and returns the result cursor still open afterwards.
func (c *Client) apply(req model.Request, r bridge.Responder, f *structpb.Struct, current *cursor.Stream) (*cursor.Stream, error) {
	typ := str(f, "type")
	fields := f.GetFields()
	switch typ {
	case frameResult:
		if current != nil {
			return current, errs.New(errs.Transport, "result frame before previous result ended")
		}
		keys, err := decodeCursor(fields["keys"])
		if err != nil {
			return nil, err
		}
		s := cursor.NewStream(decodeColumns(fields["columns"]), req.BatchSize(c.batchSize))
		if !r.ResponseResult(req, s, keys) {
			_ = s.Close()
		}
		return s, nil
	case frameRow:
		if current == nil {
			return nil, errs.New(errs.Transport, "row frame outside a result")
		}
		// A consumer that closed the cursor early just drops the rest.
		_ = current.Push(cursor.RowOf(current.Columns(), fromList(fields["values"])))
		return current, nil
	case frameEnd:
		if current == nil {
			return nil, errs.New(errs.Transport, "end frame outside a result")
		}
		for _, w := range fields["warnings"].GetListValue().GetValues() {
			current.AddWarning(w.GetStringValue())
		}
		if str(f, "kind") != "" {
			current.Fail(decodeError(f))
		} else {
			current.Finish()
		}
		return nil, nil
	case frameUpdateCount:
		keys, err := decodeCursor(fields["keys"])
		if err != nil {
			return current, err
		}
		r.ResponseUpdateCount(req, int64(fields["count"].GetNumberValue()), keys)
	case frameParameter:
		if _, err := r.ResponseParameter(req, str(f, "name"), str(f, "type"), fields["value"].AsInterface()); err != nil {
			return current, err
		}
	case frameError:
		r.ResponseFailed(req, decodeError(f))
	default:
		c.log.Debug("ignoring unknown frame", "request_id", req.ID, "type", typ)
	}
	return current, nil
}
