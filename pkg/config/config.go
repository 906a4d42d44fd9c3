// Package config loads settings from an optional YAML file, a .env file and the
// environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"creditrule/pkg/etl"
)

const (
	StoreCSV    = "csv"
	StoreSQLite = "sqlite"
)

type Settings struct {
	Mockaroo Mockaroo `yaml:"mockaroo"`
	Data     Data     `yaml:"data"`
	Model    Model    `yaml:"model"`
	Columns  []string `yaml:"columns"`
}

type Mockaroo struct {
	URL        string        `yaml:"url"`
	Key        string        `yaml:"key"`
	Count      int           `yaml:"count"`
	SchemaPath string        `yaml:"schemaPath"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
}

type Data struct {
	Dir string `yaml:"dir"`
	// Store is "csv" (one file per dataset under Dir) or "sqlite" (one table per
	// dataset in Dir/credit.db).
	Store       string `yaml:"store"`
	MetricsFile string `yaml:"metricsFile"`
}

type Model struct {
	ScoreColumn        string  `yaml:"scoreColumn"`
	TargetColumn       string  `yaml:"targetColumn"`
	PredictionColumn   string  `yaml:"predictionColumn"`
	TestSize           float64 `yaml:"testSize"`
	Seed               uint64  `yaml:"seed"`
	ImbalanceThreshold float64 `yaml:"imbalanceThreshold"`
	Decode             bool    `yaml:"decode"`
	Verbose            bool    `yaml:"verbose"`
}

func Defaults() Settings {
	return Settings{
		Mockaroo: Mockaroo{
			URL:        "https://api.mockaroo.com/api/generate.json",
			Count:      1000,
			SchemaPath: "fields.json",
			Timeout:    30 * time.Second,
		},
		Data: Data{
			Dir:   "data",
			Store: StoreCSV,
		},
		Model: Model{
			ScoreColumn:        "score_credito",
			TargetColumn:       "aprovacao_credito",
			PredictionColumn:   "aprovacao_prevista",
			TestSize:           0.2,
			Seed:               42,
			ImbalanceThreshold: 0.7,
			Decode:             true,
		},
		Columns: append([]string(nil), etl.DefaultColumns...),
	}
}

// Load builds the settings. path may be empty, in which case CREDITRULE_CONFIG is
// consulted; with neither set only defaults and the environment apply.
func Load(path string) (Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	settings := Defaults()
	if path == "" {
		path = os.Getenv("CREDITRULE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := validate(settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func applyEnv(s *Settings) error {
	s.Mockaroo.Key = getEnvOrDefault("MOCKAROO_KEY", s.Mockaroo.Key)
	s.Mockaroo.URL = getEnvOrDefault("MOCKAROO_URL", s.Mockaroo.URL)
	s.Data.Dir = getEnvOrDefault("DATA_DIR", s.Data.Dir)
	s.Data.Store = getEnvOrDefault("STORE_DRIVER", s.Data.Store)

	var err error
	if s.Mockaroo.Count, err = getIntOrDefault("MOCKAROO_COUNT", s.Mockaroo.Count); err != nil {
		return err
	}
	if s.Model.TestSize, err = getFloatOrDefault("TEST_SIZE", s.Model.TestSize); err != nil {
		return err
	}
	if s.Model.ImbalanceThreshold, err = getFloatOrDefault("IMBALANCE_THRESHOLD", s.Model.ImbalanceThreshold); err != nil {
		return err
	}
	if v := os.Getenv("RANDOM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid RANDOM_SEED %q: %w", v, err)
		}
		s.Model.Seed = seed
	}
	return nil
}

func validate(s Settings) error {
	if s.Mockaroo.Count <= 0 {
		return fmt.Errorf("mockaroo count must be positive, got %d", s.Mockaroo.Count)
	}
	if s.Mockaroo.Retries < 0 {
		return fmt.Errorf("mockaroo retries must not be negative, got %d", s.Mockaroo.Retries)
	}
	if s.Model.TestSize <= 0 || s.Model.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1), got %f", s.Model.TestSize)
	}
	if s.Model.ImbalanceThreshold <= 0 || s.Model.ImbalanceThreshold > 1 {
		return fmt.Errorf("imbalance threshold must be in (0, 1], got %f", s.Model.ImbalanceThreshold)
	}
	if s.Model.ScoreColumn == "" || s.Model.TargetColumn == "" || s.Model.PredictionColumn == "" {
		return fmt.Errorf("score, target and prediction column names are required")
	}
	switch s.Data.Store {
	case StoreCSV, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", s.Data.Store)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("at least one categorical column is required")
	}
	return nil
}

// Path returns the location of a dataset ("raw", "cleaned", "processed") for the
// configured store: a CSV file under the data directory, or a table name.
func (d Data) Path(dataset string) string {
	if d.Store == StoreSQLite {
		return dataset
	}
	return filepath.Join(d.Dir, dataset, "dataset.csv")
}

func (d Data) SQLitePath() string {
	return filepath.Join(d.Dir, "credit.db")
}

func (d Data) ModelPath() string {
	return filepath.Join(d.Dir, "models", "onerule.gob")
}

func (d Data) RunsPath() string {
	return filepath.Join(d.Dir, "runs.db")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

func getFloatOrDefault(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
