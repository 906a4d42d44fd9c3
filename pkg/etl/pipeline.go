// Package etl cleans categorical credit application data: irregular placeholders
// become missing values, text is brought to a canonical form and every category
// is replaced by an integer code.
package etl

import (
	"fmt"

	"creditrule/pkg/table"
)

// DefaultColumns are the categorical columns of the generated credit dataset.
var DefaultColumns = []string{
	"antecedentes_criminais", "profissao", "carga_horaria",
	"estado_civil", "renda_familiar", "possui_imovel", "tempo_emprego",
	"garantias", "faixa_etaria", "tipo_operacao", "score_credito",
}

// Pipeline runs the null normalizer, the standardizer and the encoder, in that order,
// over the same set of columns.
type Pipeline struct {
	Columns []string
}

// FittedPipeline applies the fitted stages to tables with the same columns. Only the
// encoder carries state.
type FittedPipeline struct {
	Columns []string
	Encoder *FittedEncoder
}

// Stats describes what a transform did to each column.
type Stats struct {
	Rows int
	// Nulls counts cells turned into Missing by the null normalizer.
	Nulls map[string]int
	// Unmapped counts present values the encoder had no code for.
	Unmapped map[string]int
}

func (p Pipeline) clean(t table.Table) (table.Table, error) {
	normalized, err := NullNormalizer{Columns: p.Columns}.Transform(t)
	if err != nil {
		return table.Table{}, fmt.Errorf("error normalizing nulls: %w", err)
	}
	standardized, err := Standardizer{Columns: p.Columns}.Transform(normalized)
	if err != nil {
		return table.Table{}, fmt.Errorf("error standardizing categories: %w", err)
	}
	return standardized, nil
}

// Fit learns the category codes from the cleaned form of t.
func (p Pipeline) Fit(t table.Table) (*FittedPipeline, error) {
	cleaned, err := p.clean(t)
	if err != nil {
		return nil, err
	}
	encoder, err := Encoder{Columns: p.Columns}.Fit(cleaned)
	if err != nil {
		return nil, fmt.Errorf("error fitting encoder: %w", err)
	}
	return &FittedPipeline{Columns: append([]string(nil), p.Columns...), Encoder: encoder}, nil
}

// FitTransform fits the pipeline on t and returns t transformed by it.
func (p Pipeline) FitTransform(t table.Table) (*FittedPipeline, table.Table, Stats, error) {
	fitted, err := p.Fit(t)
	if err != nil {
		return nil, table.Table{}, Stats{}, err
	}
	out, stats, err := fitted.Transform(t)
	if err != nil {
		return nil, table.Table{}, Stats{}, err
	}
	return fitted, out, stats, nil
}

// Transform applies the three stages to t.
func (f *FittedPipeline) Transform(t table.Table) (table.Table, Stats, error) {
	p := Pipeline{Columns: f.Columns}
	stats := Stats{Rows: t.Rows(), Nulls: map[string]int{}}

	cleaned, err := p.clean(t)
	if err != nil {
		return table.Table{}, stats, err
	}
	for _, col := range f.Columns {
		stats.Nulls[col] = cleaned.CountMissing(col) - t.CountMissing(col)
	}

	encoded, encodeStats, err := f.Encoder.Transform(cleaned)
	if err != nil {
		return table.Table{}, stats, err
	}
	stats.Unmapped = encodeStats.Unmapped
	if encoded.Rows() != t.Rows() {
		return table.Table{}, stats, fmt.Errorf("%w: pipeline produced %d rows from %d", table.ErrRowCount, encoded.Rows(), t.Rows())
	}
	return encoded, stats, nil
}

// Decode maps coded columns back to their canonical values.
func (f *FittedPipeline) Decode(t table.Table) (table.Table, error) {
	return f.Encoder.Invert(t)
}
