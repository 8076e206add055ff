// Package remote exposes a backend over gRPC and provides the matching client
// backend. The service has a single server-streaming method whose request and
// frames are google.protobuf.Struct messages, so no generated code is needed.
package remote

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"cursorbridge/cli/internal/bridge"
	"cursorbridge/cli/internal/conn"
	"cursorbridge/cli/internal/cursor"
	"cursorbridge/cli/internal/logging"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "cursorbridge.v1.Bridge"
	// ExecuteMethod is the full method path of the Execute RPC.
	ExecuteMethod = "/" + ServiceName + "/Execute"
)

// BridgeServer is the server API of the Bridge service.
type BridgeServer interface {
	Execute(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func executeHandler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BridgeServer).Execute(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var executeStreamDesc = grpc.StreamDesc{
	StreamName:    "Execute",
	Handler:       executeHandler,
	ServerStreams: true,
}

// ServiceDesc describes the Bridge service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BridgeServer)(nil),
	Streams:     []grpc.StreamDesc{executeStreamDesc},
	Metadata:    "cursorbridge/v1/bridge.proto",
}

// BackendFactory opens the backend used for one call.
type BackendFactory func(ctx context.Context) (bridge.Backend, error)

// Server runs every call on its own connection handle.
type Server struct {
	factory BackendFactory
	opts    []conn.Option
	log     *slog.Logger
}

// NewServer returns a server opening backends through factory. opts apply to
// the handle of every call.
func NewServer(factory BackendFactory, log *slog.Logger, opts ...conn.Option) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{factory: factory, opts: append([]conn.Option{conn.WithLogger(log)}, opts...), log: log}
}

// Register adds the Bridge service to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&ServiceDesc, s)
}

// Execute runs one request and streams its responses as frames.
func (s *Server) Execute(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	req, err := decodeRequest(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	backend, err := s.factory(ctx)
	if err != nil {
		s.log.Error("backend unavailable", "error", logging.Mask(err.Error()))
		return status.Error(codes.Unavailable, logging.Mask(err.Error()))
	}
	h := conn.Open(backend, s.opts...)
	defer func() { _ = h.Close() }()

	if _, err := h.Execute(ctx, req); err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	s.log.Debug("remote request", "request_id", req.ID)

	for resp, err := range h.Container().All(ctx) {
		if err != nil {
			return status.FromContextError(err).Err()
		}
		if err := s.send(ctx, stream, resp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) send(ctx context.Context, stream grpc.ServerStreamingServer[structpb.Struct], resp *bridge.Response) error {
	switch resp.Kind() {
	case bridge.KindResult:
		return s.sendResult(ctx, stream, resp)
	case bridge.KindUpdateCount:
		keys, err := encodeCursor(ctx, resp.GeneratedKeys())
		if err != nil {
			return stream.Send(frame(frameError, errorFields(err)))
		}
		return stream.Send(frame(frameUpdateCount, map[string]*structpb.Value{
			"count": structpb.NewNumberValue(float64(resp.UpdateCount())),
			"keys":  keys,
		}))
	case bridge.KindParameter:
		p := resp.Parameter()
		return stream.Send(frame(frameParameter, map[string]*structpb.Value{
			"name":  structpb.NewStringValue(p.Name),
			"type":  structpb.NewStringValue(p.Type),
			"value": toValue(p.Value),
		}))
	default:
		return stream.Send(frame(frameError, errorFields(resp.Err())))
	}
}

// sendResult streams the result header, one frame per row and an end frame
// that carries the cursor failure, if any.
func (s *Server) sendResult(ctx context.Context, stream grpc.ServerStreamingServer[structpb.Struct], resp *bridge.Response) error {
	rows := resp.Cursor()
	if rows == nil {
		rows = cursor.NewMemoryRows(nil, nil)
	}
	defer func() { _ = rows.Close() }()

	keys, err := encodeCursor(ctx, resp.GeneratedKeys())
	if err != nil {
		keys = structpb.NewNullValue()
	}
	if err := stream.Send(frame(frameResult, map[string]*structpb.Value{
		"columns":    encodeColumns(rows.Columns()),
		"batch_size": structpb.NewNumberValue(float64(rows.BatchSize())),
		"keys":       keys,
	})); err != nil {
		return err
	}

	for _, err := range cursor.All(ctx, rows) {
		if err != nil {
			return stream.Send(frame(frameEnd, endFields(rows, errorFields(err))))
		}
		vals, err := cursor.Values(rows)
		if err != nil {
			return stream.Send(frame(frameEnd, endFields(rows, errorFields(err))))
		}
		if err := stream.Send(frame(frameRow, map[string]*structpb.Value{"values": toList(vals)})); err != nil {
			return err
		}
	}
	return stream.Send(frame(frameEnd, endFields(rows, nil)))
}

// endFields adds the cursor's warnings to the fields of an end frame.
func endFields(rows cursor.Cursor, fields map[string]*structpb.Value) map[string]*structpb.Value {
	w := rows.Warnings()
	if len(w) == 0 {
		return fields
	}
	if fields == nil {
		fields = map[string]*structpb.Value{}
	}
	list := make([]*structpb.Value, len(w))
	for i, msg := range w {
		list[i] = structpb.NewStringValue(msg)
	}
	fields["warnings"] = structpb.NewListValue(&structpb.ListValue{Values: list})
	return fields
}
