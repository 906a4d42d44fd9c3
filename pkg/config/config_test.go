package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREDITRULE_CONFIG", "")
	settings, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 0.2, settings.Model.TestSize)
	require.Equal(t, uint64(42), settings.Model.Seed)
	require.Equal(t, 0.7, settings.Model.ImbalanceThreshold)
	require.Equal(t, "score_credito", settings.Model.ScoreColumn)
	require.Equal(t, 1000, settings.Mockaroo.Count)
	require.Equal(t, StoreCSV, settings.Data.Store)
	require.Contains(t, settings.Columns, "profissao")
	require.Equal(t, filepath.Join("data", "cleaned", "dataset.csv"), settings.Data.Path("cleaned"))
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mockaroo:
  key: from-file
  count: 50
  timeout: 5s
  retries: 2
data:
  dir: /tmp/credit
  store: sqlite
model:
  testSize: 0.3
  seed: 7
columns: [profissao, score_credito]
`)
	t.Setenv("MOCKAROO_KEY", "from-env")
	t.Setenv("RANDOM_SEED", "11")

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", settings.Mockaroo.Key)
	require.Equal(t, 50, settings.Mockaroo.Count)
	require.Equal(t, 5*time.Second, settings.Mockaroo.Timeout)
	require.Equal(t, 2, settings.Mockaroo.Retries)
	require.Equal(t, 0.3, settings.Model.TestSize)
	require.Equal(t, uint64(11), settings.Model.Seed)
	require.Equal(t, []string{"profissao", "score_credito"}, settings.Columns)
	require.Equal(t, "cleaned", settings.Data.Path("cleaned"))
	require.Equal(t, filepath.Join("/tmp/credit", "credit.db"), settings.Data.SQLitePath())
	// untouched keys keep their defaults
	require.Equal(t, "aprovacao_credito", settings.Model.TargetColumn)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "test size", content: "model:\n  testSize: 1.5\n"},
		{name: "threshold", content: "model:\n  imbalanceThreshold: 0\n"},
		{name: "store", content: "data:\n  store: parquet\n"},
		{name: "count", content: "", env: map[string]string{"MOCKAROO_COUNT": "-1"}},
		{name: "bad number", content: "", env: map[string]string{"TEST_SIZE": "abc"}},
		{name: "bad yaml", content: "model: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
