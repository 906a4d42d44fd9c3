package etl

import (
	"fmt"
	"strconv"

	"github.com/emirpasic/gods/sets/treeset"

	"creditrule/pkg/table"
)

// Encoder assigns dense integer codes to the distinct values of categorical columns.
type Encoder struct {
	Columns []string
}

// FittedEncoder holds one CategoryMap per column. It is not modified after Fit.
type FittedEncoder struct {
	Columns []string
	Maps    map[string]CategoryMap
}

// EncodeStats counts, per column, the present values that had no code.
type EncodeStats struct {
	Unmapped map[string]int
}

// Fit collects the distinct non-missing values of every column and numbers them
// from 0 in lexicographic order of their string form.
func (e Encoder) Fit(t table.Table) (*FittedEncoder, error) {
	if err := t.Require(e.Columns...); err != nil {
		return nil, err
	}
	fitted := &FittedEncoder{
		Columns: append([]string(nil), e.Columns...),
		Maps:    make(map[string]CategoryMap, len(e.Columns)),
	}
	for _, col := range e.Columns {
		values, _ := t.Column(col)
		distinct := treeset.NewWithStringComparator()
		for _, c := range values {
			if !c.IsMissing() {
				distinct.Add(c.String())
			}
		}
		m := NewCategoryMap()
		for i, v := range distinct.Values() {
			m.Set(v.(string), i)
		}
		fitted.Maps[col] = m
	}
	return fitted, nil
}

// Map returns the fitted map of a column.
func (f *FittedEncoder) Map(column string) (CategoryMap, bool) {
	m, ok := f.Maps[column]
	return m, ok
}

// Transform replaces every value with its code. Values without a code, missing
// ones included, become Missing cells.
func (f *FittedEncoder) Transform(t table.Table) (table.Table, EncodeStats, error) {
	stats := EncodeStats{Unmapped: map[string]int{}}
	out, err := t.Map(f.Columns, func(col string, c table.Cell) table.Cell {
		if c.IsMissing() {
			return c
		}
		code, ok := f.Maps[col].Code(c.String())
		if !ok {
			stats.Unmapped[col]++
			return table.Null()
		}
		return table.Int(code)
	})
	if err != nil {
		return table.Table{}, stats, fmt.Errorf("error encoding: %w", err)
	}
	return out, stats, nil
}

// Invert turns codes back into the values they were assigned to. Text cells are
// read as decimal codes, which is how coded columns come back from a dataset
// store. Codes without an inverse become Missing cells.
func (f *FittedEncoder) Invert(t table.Table) (table.Table, error) {
	out, err := t.Map(f.Columns, func(col string, c table.Cell) table.Cell {
		code := c.Code
		switch c.Kind {
		case table.Missing:
			return c
		case table.Text:
			parsed, err := strconv.Atoi(c.Text)
			if err != nil {
				return table.Null()
			}
			code = parsed
		}
		name, ok := f.Maps[col].Name(code)
		if !ok {
			return table.Null()
		}
		return table.Str(name)
	})
	if err != nil {
		return table.Table{}, fmt.Errorf("error decoding: %w", err)
	}
	return out, nil
}
