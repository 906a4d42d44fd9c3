package pkg

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"creditrule/pkg/config"
	"creditrule/pkg/etl"
	"creditrule/pkg/io"
	"creditrule/pkg/metrics"
	"creditrule/pkg/model"
	"creditrule/pkg/source"
	"creditrule/pkg/table"
)

// Generator produces raw rows for a schema.
type Generator interface {
	Generate(ctx context.Context, schema source.Schema, count int) (table.Table, error)
}

// Env carries what every stage needs.
type Env struct {
	Settings config.Settings
	Store    io.Store
	Metrics  *metrics.Metrics
}

// OpenEnv opens the configured dataset store. The returned function releases it.
func OpenEnv(settings config.Settings) (*Env, func() error, error) {
	env := &Env{Settings: settings, Metrics: metrics.New()}
	switch settings.Data.Store {
	case config.StoreSQLite:
		store, err := io.OpenSQLite(settings.Data.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		env.Store = store
		return env, store.Close, nil
	default:
		env.Store = io.NewCSVStore()
		return env, func() error { return nil }, nil
	}
}

// Generate fetches raw rows from the generator and saves them as the raw dataset.
func Generate(ctx context.Context, env *Env, generator Generator) (table.Table, error) {
	s := env.Settings.Mockaroo
	schema, err := source.LoadSchema(s.SchemaPath)
	if err != nil {
		return table.Table{}, err
	}

	raw, err := generator.Generate(ctx, schema, s.Count)
	if err != nil {
		env.Metrics.GenerationFailures.Inc()
		return table.Table{}, fmt.Errorf("error generating data: %w", err)
	}
	env.Metrics.RowsProcessed.WithLabelValues("generate").Add(float64(raw.Rows()))

	location := env.Settings.Data.Path("raw")
	if err := env.Store.Save(location, raw); err != nil {
		return table.Table{}, fmt.Errorf("error saving raw dataset: %w", err)
	}
	log.Info().Int("Rows", raw.Rows()).Str("Location", location).Msg("raw dataset created")
	return raw, nil
}

// Clean fits the ETL pipeline on the raw dataset, saves the cleaned dataset and
// writes the fitted pipeline to the model file so later stages can decode.
func Clean(env *Env) (*etl.FittedPipeline, table.Table, error) {
	raw, err := env.Store.Load(env.Settings.Data.Path("raw"))
	if err != nil {
		return nil, table.Table{}, fmt.Errorf("error loading raw dataset: %w", err)
	}
	fitted, cleaned, err := CleanTable(env, raw)
	if err != nil {
		return nil, table.Table{}, err
	}

	location := env.Settings.Data.Path("cleaned")
	if err := env.Store.Save(location, cleaned); err != nil {
		return nil, table.Table{}, fmt.Errorf("error saving cleaned dataset: %w", err)
	}
	m := &model.Model{
		Pipeline:     fitted,
		ScoreColumn:  env.Settings.Model.ScoreColumn,
		TargetColumn: env.Settings.Model.TargetColumn,
	}
	if err := io.SaveModelFile(m, env.Settings.Data.ModelPath()); err != nil {
		return nil, table.Table{}, err
	}
	log.Info().Int("Rows", cleaned.Rows()).Str("Location", location).Msg("cleaned dataset created")
	return fitted, cleaned, nil
}

// CleanTable runs the ETL pipeline over raw in a single fit/transform pass.
func CleanTable(env *Env, raw table.Table) (*etl.FittedPipeline, table.Table, error) {
	pipeline := etl.Pipeline{Columns: env.Settings.Columns}
	fitted, cleaned, stats, err := pipeline.FitTransform(raw)
	if err != nil {
		return nil, table.Table{}, fmt.Errorf("error running pipeline: %w", err)
	}

	env.Metrics.RowsProcessed.WithLabelValues("clean").Add(float64(stats.Rows))
	for col, n := range stats.Nulls {
		env.Metrics.NullsNormalized.WithLabelValues(col).Add(float64(n))
	}
	for col, n := range stats.Unmapped {
		env.Metrics.UnmappedValues.WithLabelValues(col).Add(float64(n))
	}
	return fitted, cleaned, nil
}
