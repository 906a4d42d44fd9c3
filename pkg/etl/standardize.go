package etl

import (
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"creditrule/pkg/table"
)

// Standardizer rewrites categorical values to their canonical form: trimmed and
// title cased. Non-text cells are stringified first, so a coded column comes out
// as text. Missing cells are kept as they are.
type Standardizer struct {
	Columns []string
}

func (s Standardizer) Transform(t table.Table) (table.Table, error) {
	caser := cases.Title(language.Und)
	return t.Map(s.Columns, func(_ string, c table.Cell) table.Cell {
		if c.IsMissing() {
			return c
		}
		return table.Str(canonical(caser, cast.ToString(c.Value())))
	})
}

// canonical trims and title cases a single value.
func canonical(caser cases.Caser, value string) string {
	return caser.String(strings.TrimSpace(value))
}
