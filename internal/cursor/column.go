// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cursor

import (
	"strings"

	errs "cursorbridge/cli/internal/errors"
)

// Column describes one column of a cursor. It is immutable once built.
type Column struct {
	Name    string
	Type    string
	Table   string
	Catalog string
	Schema  string
}

// NewColumn validates and builds a Column. Name and type are required;
// an empty table, catalog or schema means "none".
func NewColumn(name, typ, table, catalog, schema string) (Column, error) {
	if strings.TrimSpace(name) == "" {
		return Column{}, errs.New(errs.InvalidColumn, "column name is required")
	}
	if strings.TrimSpace(typ) == "" {
		return Column{}, errs.Newf(errs.InvalidColumn, "column %q has no type", name)
	}
	return Column{Name: name, Type: typ, Table: table, Catalog: catalog, Schema: schema}, nil
}

// MustColumn is NewColumn for statically known definitions. It panics on invalid input.
func MustColumn(name, typ, table string) Column {
	c, err := NewColumn(name, typ, table, "", "")
	if err != nil {
		panic(err)
	}
	return c
}

// Equal compares name, type and table. Catalog and schema do not take part.
func (c Column) Equal(o Column) bool {
	return c.Name == o.Name && c.Type == o.Type && c.Table == o.Table
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
