package memory

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"cursorbridge/cli/internal/cursor"
	errs "cursorbridge/cli/internal/errors"
)

// KeyColumn is the column the store fills from its sequence when an insert
// leaves it unset.
const KeyColumn = "id"

// Store is an in-process set of named tables.
type Store struct {
	name   string
	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	name string
	cols []colDef
	rows [][]any
	seq  int64
}

var (
	sharedMu sync.Mutex
	shared   = map[string]*Store{}
)

// NewStore returns an empty, unshared store.
func NewStore(name string) *Store {
	return &Store{name: name, tables: map[string]*table{}}
}

// OpenStore returns the process-wide store registered under name, creating it
// on first use.
func OpenStore(name string) *Store {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if s, ok := shared[name]; ok {
		return s
	}
	s := NewStore(name)
	shared[name] = s
	return s
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Tables lists table names in sorted order.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for _, t := range s.tables {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) lookup(name string) (*table, error) {
	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return nil, errs.Newf(errs.BackendFailure, "table %q does not exist", name)
	}
	return t, nil
}

func (t *table) colIndex(name string) int {
	for i, c := range t.cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (t *table) column(i int) cursor.Column {
	return cursor.Column{Name: t.cols[i].Name, Type: t.cols[i].Type, Table: t.name}
}

func (s *Store) createTable(name string, cols []colDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := s.tables[key]; ok {
		return errs.Newf(errs.BackendFailure, "table %q already exists", name)
	}
	s.tables[key] = &table{name: name, cols: slices.Clone(cols)}
	return nil
}

func (s *Store) dropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(name); err != nil {
		return err
	}
	delete(s.tables, strings.ToLower(name))
	return nil
}

// insert appends rows and returns the key column type and the key of every
// inserted row. keyType is empty when the table has no key column.
func (s *Store) insert(name string, cols []string, rows [][]any) (keyType string, keys []any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(name)
	if err != nil {
		return "", nil, err
	}

	positions := make([]int, 0, len(t.cols))
	if cols == nil {
		for i := range t.cols {
			positions = append(positions, i)
		}
	} else {
		for _, c := range cols {
			i := t.colIndex(c)
			if i < 0 {
				return "", nil, errs.Newf(errs.InvalidColumn, "column %q does not exist in %q", c, t.name)
			}
			positions = append(positions, i)
		}
	}

	keyIdx := t.colIndex(KeyColumn)
	built := make([][]any, 0, len(rows))
	seq := t.seq
	for _, vals := range rows {
		if len(vals) != len(positions) {
			return "", nil, errs.Newf(errs.BackendFailure, "table %q expects %d values, got %d", t.name, len(positions), len(vals))
		}
		row := make([]any, len(t.cols))
		set := make([]bool, len(t.cols))
		for i, v := range vals {
			row[positions[i]] = normalize(v)
			set[positions[i]] = true
		}
		if keyIdx >= 0 {
			if !set[keyIdx] || row[keyIdx] == nil {
				seq++
				row[keyIdx] = seq
			} else if n, ok := row[keyIdx].(int64); ok && n > seq {
				seq = n
			}
			keys = append(keys, row[keyIdx])
		}
		built = append(built, row)
	}
	// Rows are only committed once every tuple validated.
	t.rows = append(t.rows, built...)
	t.seq = seq
	if keyIdx >= 0 {
		keyType = t.cols[keyIdx].Type
	}
	return keyType, keys, nil
}

// scan returns the selected columns and a snapshot of the matching rows.
func (s *Store) scan(name string, cols []string, where *whereEq, args []any) ([]cursor.Column, [][]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.lookup(name)
	if err != nil {
		return nil, nil, err
	}
	var positions []int
	if cols == nil {
		for i := range t.cols {
			positions = append(positions, i)
		}
	} else {
		for _, c := range cols {
			i := t.colIndex(c)
			if i < 0 {
				return nil, nil, errs.Newf(errs.InvalidColumn, "column %q does not exist in %q", c, t.name)
			}
			positions = append(positions, i)
		}
	}
	match, err := t.matcher(where, args)
	if err != nil {
		return nil, nil, err
	}
	columns := make([]cursor.Column, len(positions))
	for i, p := range positions {
		columns[i] = t.column(p)
	}
	var out [][]any
	for _, row := range t.rows {
		if !match(row) {
			continue
		}
		projected := make([]any, len(positions))
		for i, p := range positions {
			projected[i] = row[p]
		}
		out = append(out, projected)
	}
	return columns, out, nil
}

func (s *Store) update(name string, assigns []assignment, where *whereEq, args []any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	positions := make([]int, len(assigns))
	values := make([]any, len(assigns))
	for i, a := range assigns {
		positions[i] = t.colIndex(a.Column)
		if positions[i] < 0 {
			return 0, errs.Newf(errs.InvalidColumn, "column %q does not exist in %q", a.Column, t.name)
		}
		if values[i], err = bind(a.Value, args); err != nil {
			return 0, err
		}
	}
	match, err := t.matcher(where, args)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range t.rows {
		if !match(row) {
			continue
		}
		for i, p := range positions {
			row[p] = values[i]
		}
		n++
	}
	return n, nil
}

func (s *Store) delete(name string, where *whereEq, args []any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	match, err := t.matcher(where, args)
	if err != nil {
		return 0, err
	}
	kept := t.rows[:0]
	var n int64
	for _, row := range t.rows {
		if match(row) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	clear(t.rows[len(kept):])
	t.rows = kept
	return n, nil
}

func (t *table) matcher(where *whereEq, args []any) (func([]any) bool, error) {
	if where == nil {
		return func([]any) bool { return true }, nil
	}
	idx := t.colIndex(where.Column)
	if idx < 0 {
		return nil, errs.Newf(errs.InvalidColumn, "column %q does not exist in %q", where.Column, t.name)
	}
	want, err := bind(where.Value, args)
	if err != nil {
		return nil, err
	}
	return func(row []any) bool { return equal(row[idx], want) }, nil
}

// bind resolves a placeholder against the request arguments.
func bind(e expr, args []any) (any, error) {
	if e.Placeholder == 0 {
		return e.Value, nil
	}
	if e.Placeholder > len(args) {
		return nil, errs.Newf(errs.BackendFailure, "placeholder %d has no bound argument (%d given)", e.Placeholder, len(args))
	}
	return normalize(args[e.Placeholder-1]), nil
}

// normalize widens Go numeric kinds so values compare the same regardless of
// how they were bound.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

// equal follows SQL semantics for NULL: it never matches.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
