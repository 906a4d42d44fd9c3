// Package table implements the column oriented tables the pipeline stages pass around.
package table

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowCount        = errors.New("row count mismatch")
)

type Kind uint8

const (
	// Missing marks an absent value. Encoders also use it for values without a code.
	Missing Kind = iota
	Text
	Code
)

// Cell is a single table value. The zero Cell is Missing.
type Cell struct {
	Kind Kind
	Text string
	Code int
}

func Str(s string) Cell {
	return Cell{Kind: Text, Text: s}
}

func Int(code int) Cell {
	return Cell{Kind: Code, Code: code}
}

func Null() Cell {
	return Cell{}
}

func (c Cell) IsMissing() bool {
	return c.Kind == Missing
}

// Value returns the underlying Go value: a string, an int or nil.
func (c Cell) Value() interface{} {
	switch c.Kind {
	case Text:
		return c.Text
	case Code:
		return c.Code
	default:
		return nil
	}
}

// String returns the canonical string form of the cell. Missing cells render as "".
func (c Cell) String() string {
	switch c.Kind {
	case Text:
		return c.Text
	case Code:
		return strconv.Itoa(c.Code)
	default:
		return ""
	}
}

// Table is an ordered set of named columns of equal length.
type Table struct {
	columns []string
	data    map[string][]Cell
	rows    int
}

// New builds a table from column names and their values, checking that every
// column is present exactly once and that all columns have the same length.
func New(columns []string, data map[string][]Cell) (Table, error) {
	t := Table{
		columns: make([]string, len(columns)),
		data:    make(map[string][]Cell, len(columns)),
	}
	copy(t.columns, columns)

	for i, name := range columns {
		if _, seen := t.data[name]; seen {
			return Table{}, fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		values, ok := data[name]
		if !ok {
			return Table{}, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
		if i == 0 {
			t.rows = len(values)
		} else if len(values) != t.rows {
			return Table{}, fmt.Errorf("%w: column %s has %d rows, expected %d", ErrRowCount, name, len(values), t.rows)
		}
		t.data[name] = append([]Cell(nil), values...)
	}
	if len(data) != len(columns) {
		for name := range data {
			if _, ok := t.data[name]; !ok {
				return Table{}, fmt.Errorf("column %s has values but is not in the header", name)
			}
		}
	}
	return t, nil
}

// FromRecords builds a table from row records, all read as text. Short rows are
// padded with Missing cells.
func FromRecords(columns []string, records [][]string) (Table, error) {
	data := make(map[string][]Cell, len(columns))
	for _, name := range columns {
		data[name] = make([]Cell, len(records))
	}
	for r, record := range records {
		if len(record) > len(columns) {
			return Table{}, fmt.Errorf("%w: record %d has %d fields, header has %d", ErrRowCount, r, len(record), len(columns))
		}
		for i, value := range record {
			data[columns[i]][r] = Str(value)
		}
	}
	return New(columns, data)
}

func (t Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t Table) Rows() int {
	return t.rows
}

func (t Table) Has(column string) bool {
	_, ok := t.data[column]
	return ok
}

// Column returns a copy of the values of the named column.
func (t Table) Column(name string) ([]Cell, error) {
	values, ok := t.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return append([]Cell(nil), values...), nil
}

func (t Table) Cell(row int, column string) Cell {
	return t.data[column][row]
}

// Record returns row r rendered as strings, in column order.
func (t Table) Record(r int) []string {
	record := make([]string, len(t.columns))
	for i, name := range t.columns {
		record[i] = t.data[name][r].String()
	}
	return record
}

// Require fails with ErrColumnNotFound for the first absent column.
func (t Table) Require(columns ...string) error {
	for _, name := range columns {
		if !t.Has(name) {
			return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
	}
	return nil
}

// WithColumn returns a copy of the table where the named column holds values.
// A new column is appended at the end.
func (t Table) WithColumn(name string, values []Cell) (Table, error) {
	columns := t.columns
	if !t.Has(name) {
		columns = append(append([]string(nil), t.columns...), name)
	}
	data := make(map[string][]Cell, len(columns))
	for k, v := range t.data {
		data[k] = v
	}
	data[name] = values
	return New(columns, data)
}

// Map returns a copy of the table with fn applied to every cell of the named columns.
func (t Table) Map(columns []string, fn func(column string, c Cell) Cell) (Table, error) {
	if err := t.Require(columns...); err != nil {
		return Table{}, err
	}
	data := make(map[string][]Cell, len(t.columns))
	for k, v := range t.data {
		data[k] = v
	}
	for _, name := range columns {
		src := t.data[name]
		dst := make([]Cell, len(src))
		for i, c := range src {
			dst[i] = fn(name, c)
		}
		data[name] = dst
	}
	return New(t.columns, data)
}

// Drop returns a copy of the table without the named columns. Absent columns are ignored.
func (t Table) Drop(columns ...string) Table {
	drop := make(map[string]bool, len(columns))
	for _, name := range columns {
		drop[name] = true
	}
	out := Table{data: map[string][]Cell{}, rows: t.rows}
	for _, name := range t.columns {
		if drop[name] {
			continue
		}
		out.columns = append(out.columns, name)
		out.data[name] = t.data[name]
	}
	return out
}

// Select returns the rows at the given indices, in that order.
func (t Table) Select(indices []int) Table {
	out := Table{columns: t.Columns(), data: make(map[string][]Cell, len(t.columns)), rows: len(indices)}
	for _, name := range t.columns {
		src := t.data[name]
		dst := make([]Cell, len(indices))
		for i, idx := range indices {
			dst[i] = src[idx]
		}
		out.data[name] = dst
	}
	return out
}

// CountMissing returns the number of missing cells in the named column.
func (t Table) CountMissing(column string) int {
	n := 0
	for _, c := range t.data[column] {
		if c.IsMissing() {
			n++
		}
	}
	return n
}
