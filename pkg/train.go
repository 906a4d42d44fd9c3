package pkg

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"creditrule/pkg/etl"
	"creditrule/pkg/io"
	"creditrule/pkg/model"
	"creditrule/pkg/runs"
)

func approvalParameters(env *Env) ApprovalParameters {
	m := env.Settings.Model
	return ApprovalParameters{
		ScoreColumn:        m.ScoreColumn,
		TargetColumn:       m.TargetColumn,
		PredictionColumn:   m.PredictionColumn,
		TestSize:           m.TestSize,
		Seed:               m.Seed,
		ImbalanceThreshold: m.ImbalanceThreshold,
		Verbose:            m.Verbose,
	}
}

// Train fits the credit approval model on the cleaned dataset, saves the processed
// dataset, updates the model file and records the run.
func Train(env *Env) (*CreditApproval, error) {
	pipeline, err := loadPipeline(env.Settings.Data.ModelPath())
	if err != nil {
		return nil, err
	}
	decoder := pipeline
	if !env.Settings.Model.Decode {
		decoder = nil
	} else if pipeline == nil {
		log.Warn().Msg("no fitted pipeline found, processed dataset will not be decoded")
	}

	location := env.Settings.Data.Path("cleaned")
	approval := NewCreditApproval(approvalParameters(env), env.Store, env.Metrics)
	run := runs.NewRun(location)

	importance, err := approval.RunPipeline(location)
	if err != nil {
		return nil, err
	}
	train, test := approval.Reports()
	env.Metrics.RowsProcessed.WithLabelValues("train").Add(float64(train.Total + test.Total))
	log.Info().Str("BestFeature", importance.BestFeature).
		Int("DefaultClass", importance.DefaultClass).
		Int("Values", len(importance.Rules)).
		Msg("feature importance")

	processed, err := approval.Process(decoder)
	if err != nil {
		return nil, err
	}
	if err := env.Store.Save(env.Settings.Data.Path("processed"), processed); err != nil {
		return nil, fmt.Errorf("error saving processed dataset: %w", err)
	}

	m := &model.Model{
		Pipeline:     pipeline,
		Rule:         approval.Rule(),
		ScoreColumn:  env.Settings.Model.ScoreColumn,
		TargetColumn: env.Settings.Model.TargetColumn,
	}
	if err := io.SaveModelFile(m, env.Settings.Data.ModelPath()); err != nil {
		return nil, err
	}

	run.Rows = train.Total + test.Total
	run.BestFeature = importance.BestFeature
	run.DefaultClass = importance.DefaultClass
	run.TrainErrors = approval.Rule().Errors
	run.TrainAccuracy = train.Accuracy
	run.TestAccuracy = test.Accuracy
	run.Imbalanced = approval.Balance().Imbalanced
	if err := recordRun(env, run); err != nil {
		return nil, err
	}
	return approval, nil
}

// loadPipeline returns the fitted pipeline of the saved model, or nil when there is
// no model file or the file carries no pipeline.
func loadPipeline(path string) (*etl.FittedPipeline, error) {
	saved, err := io.LoadModelFile(path)
	switch {
	case err == nil:
		return saved.Pipeline, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	default:
		return nil, err
	}
}

func recordRun(env *Env, run runs.Run) error {
	registry, err := runs.Open(env.Settings.Data.RunsPath())
	if err != nil {
		return err
	}
	defer registry.Close()
	if err := registry.Record(run); err != nil {
		return fmt.Errorf("error recording run: %w", err)
	}
	log.Info().Str("Run", run.ID).Msg("run recorded")
	return nil
}

// Run executes generate, clean and train in sequence. Any failure stops the run.
func Run(ctx context.Context, env *Env, generator Generator) (*CreditApproval, error) {
	if _, err := Generate(ctx, env, generator); err != nil {
		return nil, err
	}
	if _, _, err := Clean(env); err != nil {
		return nil, err
	}
	return Train(env)
}

// WriteMetrics writes the run metrics when a metrics file is configured.
func WriteMetrics(env *Env) error {
	if env.Settings.Data.MetricsFile == "" {
		return nil
	}
	return env.Metrics.WriteTextfile(env.Settings.Data.MetricsFile)
}
