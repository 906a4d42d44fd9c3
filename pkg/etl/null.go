package etl

import (
	"regexp"

	"creditrule/pkg/table"
)

var (
	nullTokens  = map[string]bool{"": true, "NM": true, "Not Mentioned": true}
	specialOnly = regexp.MustCompile(`^[^a-zA-Z0-9]+$`)
)

// NullNormalizer replaces irregular placeholders in the configured columns with
// Missing cells: empty strings, the tokens "NM" and "Not Mentioned", and values made
// only of non-alphanumeric characters.
type NullNormalizer struct {
	Columns []string
}

func (n NullNormalizer) Transform(t table.Table) (table.Table, error) {
	return t.Map(n.Columns, func(_ string, c table.Cell) table.Cell {
		if c.IsMissing() {
			return c
		}
		s := c.String()
		if nullTokens[s] || specialOnly.MatchString(s) {
			return table.Null()
		}
		return c
	})
}
