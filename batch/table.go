package batch

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Column is one named column of a batch table. Numeric columns without
// nulls are stored as a dense float64 slice so compiled column operations
// run in a single pass; everything else is generic storage.
type Column struct {
	Name   string
	Kind   ValueKind
	floats []float64
	values []any
}

func (c *Column) Len() int {
	if c.floats != nil {
		return len(c.floats)
	}
	return len(c.values)
}

// Value returns the scalar at row i.
func (c *Column) Value(i int) any {
	if c.floats != nil {
		return c.floats[i]
	}
	return c.values[i]
}

// Floats returns a dense float64 view of the column, converting generic
// numeric storage if needed. The second return is false when any value is
// null or non-numeric.
func (c *Column) Floats() ([]float64, bool) {
	if c.floats != nil {
		return c.floats, true
	}
	out := make([]float64, len(c.values))
	for i, v := range c.values {
		f, ok := asFloat(v)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// Bools returns a dense bool view; false when any value is not a bool.
func (c *Column) Bools() ([]bool, bool) {
	if c.values == nil {
		return nil, false
	}
	out := make([]bool, len(c.values))
	for i, v := range c.values {
		b, ok := v.(bool)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case decimal.Decimal:
		return t.InexactFloat64(), true
	}
	return 0, false
}

// Table is an in-memory batch of employee rows with named, typed columns.
// Declared-input columns must exist before execution; the executor
// appends one column per step output. The table is consumed by one
// execution and not retained.
type Table struct {
	names []string
	cols  map[string]*Column
	rows  int
}

// NewTable creates an empty table with a fixed row count.
func NewTable(rows int) *Table {
	return &Table{cols: map[string]*Column{}, rows: rows}
}

// FromRows builds a table from row maps. Keys missing from a row become
// nulls. Numeric columns with no nulls get dense float storage.
func FromRows(rows []map[string]any) *Table {
	t := NewTable(len(rows))

	seen := map[string]bool{}
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				t.names = append(t.names, key)
			}
		}
	}
	// Row maps cannot preserve key order, so sort for a deterministic
	// column layout.
	sort.Strings(t.names)

	for _, name := range t.names {
		values := make([]any, len(rows))
		for i, row := range rows {
			values[i] = row[name]
		}
		t.cols[name] = buildColumn(name, values)
	}
	return t
}

// buildColumn densifies columns of native numbers. Decimal values stay in
// generic storage on purpose: exact-mode outputs must not be degraded to
// float64 between steps.
func buildColumn(name string, values []any) *Column {
	allFloat := len(values) > 0
	floats := make([]float64, len(values))
	kind := KindNull
	for i, v := range values {
		if k := kindOf(v); kind == KindNull {
			kind = k
		}
		f, ok := nativeFloat(v)
		if !ok {
			allFloat = false
			continue
		}
		floats[i] = f
	}
	if allFloat {
		return &Column{Name: name, Kind: KindNumber, floats: floats}
	}
	return &Column{Name: name, Kind: kind, values: values}
}

func nativeFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func (t *Table) Rows() int {
	return t.rows
}

// Names returns column names in table order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// SetFloats appends or replaces a dense numeric column.
func (t *Table) SetFloats(name string, vals []float64) error {
	if len(vals) != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(vals), t.rows)
	}
	if _, ok := t.cols[name]; !ok {
		t.names = append(t.names, name)
	}
	t.cols[name] = &Column{Name: name, Kind: KindNumber, floats: vals}
	return nil
}

// SetValues appends or replaces a generic column.
func (t *Table) SetValues(name string, vals []any) error {
	if len(vals) != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(vals), t.rows)
	}
	if _, ok := t.cols[name]; !ok {
		t.names = append(t.names, name)
	}
	t.cols[name] = buildColumn(name, vals)
	return nil
}

// Binding builds a fresh variable binding for row i. Fresh per evaluation;
// never shared or mutated across rows.
func (t *Table) Binding(i int) map[string]any {
	binding := make(map[string]any, len(t.names))
	for _, name := range t.names {
		binding[name] = t.cols[name].Value(i)
	}
	return binding
}

// RowMaps returns all rows as maps. Used for output rendering, not for
// evaluation.
func (t *Table) RowMaps() []map[string]any {
	out := make([]map[string]any, t.rows)
	for i := 0; i < t.rows; i++ {
		out[i] = t.Binding(i)
	}
	return out
}
