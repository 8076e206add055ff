package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"cursorbridge/cli/internal/bridge/model"
	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// Frame types streamed by the server, in the order the responses were produced.
const (
	frameResult      = "result"
	frameRow         = "row"
	frameEnd         = "end"
	frameUpdateCount = "update_count"
	frameParameter   = "parameter"
	frameError       = "error"
)

// toValue converts a Go value into a protobuf Value. Integers become numbers,
// times are sent as RFC3339 strings, 16-byte values as UUID strings and other
// byte slices as \x-prefixed hex. Anything else falls back to its fmt form.
func toValue(v any) *structpb.Value {
	switch x := v.(type) {
	case time.Time:
		return structpb.NewStringValue(x.Format(time.RFC3339Nano))
	case []byte:
		if len(x) == 16 {
			return structpb.NewStringValue(uuid.UUID(x).String())
		}
		return structpb.NewStringValue(fmt.Sprintf("\\x%x", x))
	case [16]byte:
		return structpb.NewStringValue(uuid.UUID(x).String())
	}
	pv, err := structpb.NewValue(v)
	if err != nil {
		return structpb.NewStringValue(fmt.Sprint(v))
	}
	return pv
}

func toList(vals []any) *structpb.Value {
	list := make([]*structpb.Value, len(vals))
	for i, v := range vals {
		list[i] = toValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func fromList(v *structpb.Value) []any {
	vals := v.GetListValue().GetValues()
	out := make([]any, len(vals))
	for i, pv := range vals {
		out[i] = pv.AsInterface()
	}
	return out
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func encodeRequest(req model.Request) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"request_id": structpb.NewStringValue(req.ID),
		"statement":  structpb.NewStringValue(req.Statement),
		"args":       toList(req.Args),
		"keys":       structpb.NewStringValue(req.Keys.String()),
		"fetch_size": structpb.NewNumberValue(float64(req.FetchSize)),
	}}
}

func decodeRequest(s *structpb.Struct) (model.Request, error) {
	req := model.Request{
		ID:        str(s, "request_id"),
		Statement: str(s, "statement"),
		Args:      fromList(s.GetFields()["args"]),
		FetchSize: max(int(s.GetFields()["fetch_size"].GetNumberValue()), 0),
	}
	if req.Statement == "" {
		return req, errs.New(errs.ProtocolMisuse, "request has no statement")
	}
	switch str(s, "keys") {
	case "return":
		req.Keys = model.ReturnGeneratedKeys
	case "none":
		req.Keys = model.NoGeneratedKeys
	default:
		req.Keys = model.DefaultGeneratedKeys
	}
	if req.ID == "" {
		req.ID = model.NewID()
	}
	return req, nil
}

func encodeColumns(cols []cursor.Column) *structpb.Value {
	list := make([]*structpb.Value, len(cols))
	for i, c := range cols {
		list[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name":    structpb.NewStringValue(c.Name),
			"type":    structpb.NewStringValue(c.Type),
			"table":   structpb.NewStringValue(c.Table),
			"catalog": structpb.NewStringValue(c.Catalog),
			"schema":  structpb.NewStringValue(c.Schema),
		}})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func decodeColumns(v *structpb.Value) []cursor.Column {
	vals := v.GetListValue().GetValues()
	cols := make([]cursor.Column, len(vals))
	for i, cv := range vals {
		s := cv.GetStructValue()
		cols[i] = cursor.Column{
			Name:    str(s, "name"),
			Type:    str(s, "type"),
			Table:   str(s, "table"),
			Catalog: str(s, "catalog"),
			Schema:  str(s, "schema"),
		}
	}
	return cols
}

// encodeCursor materialises c as {columns, rows}. A nil cursor encodes as null.
func encodeCursor(ctx context.Context, c cursor.Cursor) (*structpb.Value, error) {
	if c == nil {
		return structpb.NewNullValue(), nil
	}
	defer func() { _ = c.Close() }()
	data, err := cursor.Drain(ctx, c)
	if err != nil {
		return nil, err
	}
	rows := make([]*structpb.Value, len(data))
	for i, r := range data {
		rows[i] = toList(r)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"columns": encodeColumns(c.Columns()),
		"rows":    structpb.NewListValue(&structpb.ListValue{Values: rows}),
	}}), nil
}

func decodeCursor(v *structpb.Value) (cursor.Cursor, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, nil
	}
	rowVals := s.GetFields()["rows"].GetListValue().GetValues()
	data := make([][]any, len(rowVals))
	for i, rv := range rowVals {
		data[i] = fromList(rv)
	}
	return cursor.NewMemory(decodeColumns(s.GetFields()["columns"]), data)
}

func frame(typ string, fields map[string]*structpb.Value) *structpb.Struct {
	if fields == nil {
		fields = map[string]*structpb.Value{}
	}
	fields["type"] = structpb.NewStringValue(typ)
	return &structpb.Struct{Fields: fields}
}

func errorFields(err error) map[string]*structpb.Value {
	kind := errs.KindOf(err)
	if kind == "" {
		kind = errs.BackendFailure
	}
	return map[string]*structpb.Value{
		"kind":    structpb.NewStringValue(string(kind)),
		"message": structpb.NewStringValue(err.Error()),
	}
}

// decodeError rebuilds a typed error from an error frame or an end frame
// carrying a failure.
func decodeError(s *structpb.Struct) error {
	kind := errs.Kind(str(s, "kind"))
	if kind == "" {
		kind = errs.BackendFailure
	}
	return &errs.E{Kind: kind, Message: "remote: " + str(s, "message")}
}
