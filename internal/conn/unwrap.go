package conn

// StatementOwner is implemented by values produced by a statement, such as a
// result set.
type StatementOwner interface {
	Statement() any
}

// ConnectionOwner is implemented by values bound to a connection.
type ConnectionOwner interface {
	Connection() *Handle
}

// MetadataOwner is implemented by metadata objects that describe an owner.
type MetadataOwner interface {
	Owner() any
}

const maxUnwrapDepth = 8

// Unwrap returns candidate as T, following the containment chain
// result set -> statement -> connection, or metadata -> owner, until a value
// implements T.
func Unwrap[T any](candidate any) (T, bool) {
	var zero T
	cur := candidate
	for range maxUnwrapDepth {
		if cur == nil {
			return zero, false
		}
		if t, ok := cur.(T); ok {
			return t, true
		}
		switch o := cur.(type) {
		case StatementOwner:
			cur = o.Statement()
		case ConnectionOwner:
			h := o.Connection()
			if h == nil {
				return zero, false
			}
			cur = h
		case MetadataOwner:
			cur = o.Owner()
		default:
			return zero, false
		}
	}
	return zero, false
}
