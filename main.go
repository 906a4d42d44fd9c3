package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"creditrule/pkg"
	"creditrule/pkg/config"
	"creditrule/pkg/runs"
	"creditrule/pkg/source"
)

var logLevel string
var logFormat string
var configFile string

// withEnv loads the settings, opens the dataset store and runs fn. Metrics are
// written after fn whether or not it failed.
func withEnv(overrides func(*config.Settings), fn func(env *pkg.Env) error) error {
	settings, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if overrides != nil {
		overrides(&settings)
	}
	env, closeEnv, err := pkg.OpenEnv(settings)
	if err != nil {
		return err
	}
	defer closeEnv()

	runErr := fn(env)
	if err := pkg.WriteMetrics(env); err != nil {
		log.Error().Err(err).Msg("")
	}
	return runErr
}

func newGenerator(s config.Settings) *source.Mockaroo {
	return source.NewMockaroo(s.Mockaroo.URL, s.Mockaroo.Key, s.Mockaroo.Timeout, s.Mockaroo.Retries)
}

func GenerateCommand() *cobra.Command {
	var count int

	var cmd = &cobra.Command{
		Use:   "generate [-n count]",
		Short: "Generates synthetic credit applications and saves them as the raw dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(s *config.Settings) {
				if count > 0 {
					s.Mockaroo.Count = count
				}
			}, func(env *pkg.Env) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), requestDeadline(env.Settings))
				defer cancel()
				_, err := pkg.Generate(ctx, env, newGenerator(env.Settings))
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of rows to generate (overrides configuration)")
	return cmd
}

func CleanCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "clean",
		Short: "Normalizes, standardizes and encodes the raw dataset into the cleaned dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(nil, func(env *pkg.Env) error {
				_, _, err := pkg.Clean(env)
				return err
			})
		},
	}
	return cmd
}

func TrainCommand() *cobra.Command {
	var testSize float64
	var seed uint64
	var verbose bool
	var noDecode bool

	var cmd = &cobra.Command{
		Use:   "train [--test-size 0.2] [--random-seed 42]",
		Short: "Trains the OneRule credit approval model on the cleaned dataset and reports its performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(s *config.Settings) {
				applyModelFlags(cmd, s, testSize, seed, verbose, noDecode)
			}, func(env *pkg.Env) error {
				_, err := pkg.Train(env)
				return err
			})
		},
	}

	addModelFlags(cmd, &testSize, &seed, &verbose, &noDecode)
	return cmd
}

func RunCommand() *cobra.Command {
	var testSize float64
	var seed uint64
	var verbose bool
	var noDecode bool

	var cmd = &cobra.Command{
		Use:   "run",
		Short: "Runs the full pipeline: generate, clean and train",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(s *config.Settings) {
				applyModelFlags(cmd, s, testSize, seed, verbose, noDecode)
			}, func(env *pkg.Env) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), requestDeadline(env.Settings))
				defer cancel()
				_, err := pkg.Run(ctx, env, newGenerator(env.Settings))
				return err
			})
		},
	}

	addModelFlags(cmd, &testSize, &seed, &verbose, &noDecode)
	return cmd
}

func RunsCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "runs",
		Short: "Lists past training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			registry, err := runs.Open(settings.Data.RunsPath())
			if err != nil {
				return err
			}
			defer registry.Close()

			history, err := registry.List()
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			for _, run := range history {
				if err := encoder.Encode(run); err != nil {
					return fmt.Errorf("error writing run %s: %w", run.ID, err)
				}
			}
			return nil
		},
	}
	return cmd
}

func addModelFlags(cmd *cobra.Command, testSize *float64, seed *uint64, verbose, noDecode *bool) {
	cmd.Flags().Float64VarP(testSize, "test-size", "t", 0.2, "fraction of rows held out for testing")
	cmd.Flags().Uint64VarP(seed, "random-seed", "x", 42, "random seed of the train/test split")
	cmd.Flags().BoolVarP(verbose, "verbose", "v", false, "log the rule of every candidate feature")
	cmd.Flags().BoolVarP(noDecode, "no-decode", "", false, "keep category codes in the processed dataset")
}

// applyModelFlags lets explicitly set flags win over the configuration.
func applyModelFlags(cmd *cobra.Command, s *config.Settings, testSize float64, seed uint64, verbose, noDecode bool) {
	if cmd.Flags().Changed("test-size") {
		s.Model.TestSize = testSize
	}
	if cmd.Flags().Changed("random-seed") {
		s.Model.Seed = seed
	}
	if verbose {
		s.Model.Verbose = true
	}
	if noDecode {
		s.Model.Decode = false
	}
}

// requestDeadline bounds the data generation call, retries included.
func requestDeadline(s config.Settings) time.Duration {
	timeout := s.Mockaroo.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout * time.Duration(s.Mockaroo.Retries+1)
}

func main() {

	Main := &cobra.Command{Use: "creditrule", PersistentPreRun: setupLogging, SilenceUsage: true}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")
	Main.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file (defaults to $CREDITRULE_CONFIG)")

	Main.AddCommand(GenerateCommand())
	Main.AddCommand(CleanCommand())
	Main.AddCommand(TrainCommand())
	Main.AddCommand(RunCommand())
	Main.AddCommand(RunsCommand())

	if err := Main.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) {

	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		panic("Invalid logging level specified")
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		panic("Invalid log format specified")

	}

}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		default:
			return fmt.Sprintf("%s", i)
		}

	}
	log.Logger = log.Output(writer)

}
