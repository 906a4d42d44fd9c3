package pkg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"creditrule/pkg/config"
	"creditrule/pkg/io"
	"creditrule/pkg/model"
	"creditrule/pkg/runs"
	"creditrule/pkg/source"
	"creditrule/pkg/table"
)

type fakeGenerator struct {
	rows int
	err  error
}

func (f fakeGenerator) Generate(_ context.Context, schema source.Schema, count int) (table.Table, error) {
	if f.err != nil {
		return table.Table{}, f.err
	}
	professions := []string{"medico", "ADVOGADO ", "NM", "pedreiro"}
	scores := map[string]string{"medico": "Bom", "ADVOGADO ": "bom", "NM": "Regular", "pedreiro": "RUIM"}
	guarantees := []string{"Imovel", "Veiculo", "--"}

	records := make([][]string, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		p := professions[i%4]
		records = append(records, []string{p, guarantees[i%3], scores[p]})
	}
	return table.FromRecords([]string{"profissao", "garantias", "score_credito"}, records)
}

func testEnv(t *testing.T, store string) *Env {
	t.Helper()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "fields.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`[{"name":"profissao"},{"name":"garantias"},{"name":"score_credito"}]`), 0o600))

	settings := config.Defaults()
	settings.Data.Dir = dir
	settings.Data.Store = store
	settings.Data.MetricsFile = filepath.Join(dir, "creditrule.prom")
	settings.Mockaroo.SchemaPath = schemaPath
	settings.Mockaroo.Count = 100
	settings.Columns = []string{"profissao", "garantias", "score_credito"}

	env, closeEnv, err := OpenEnv(settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeEnv() })
	return env
}

func TestDeriveTarget(t *testing.T) {
	scores := []table.Cell{table.Str("0"), table.Int(0), table.Str("1"), table.Int(2), table.Null()}
	require.Equal(t, []int{1, 1, 0, 0, 0}, DeriveTarget(scores))
}

func TestCheckBalance(t *testing.T) {
	labels := func(ones, zeros int) []int {
		out := make([]int, 0, ones+zeros)
		for i := 0; i < ones; i++ {
			out = append(out, 1)
		}
		for i := 0; i < zeros; i++ {
			out = append(out, 0)
		}
		return out
	}

	skewed := CheckBalance(labels(80, 20), 0.7)
	require.True(t, skewed.Imbalanced)
	require.Equal(t, 0.8, skewed.MajorityShare)
	require.Equal(t, map[int]int{0: 20, 1: 80}, skewed.Counts)

	balanced := CheckBalance(labels(60, 40), 0.7)
	require.False(t, balanced.Imbalanced)

	require.False(t, CheckBalance(nil, 0.7).Imbalanced)
}

func TestPrepareMissingScoreColumn(t *testing.T) {
	data, err := table.FromRecords([]string{"profissao"}, [][]string{{"0"}, {"1"}})
	require.NoError(t, err)

	approval := NewCreditApproval(approvalParameters(testEnv(t, config.StoreCSV)), io.NewCSVStore(), nil)
	err = approval.Prepare(data)
	require.ErrorIs(t, err, ErrMissingColumn)
	require.Contains(t, err.Error(), "score_credito")
}

func TestTrainSingleClass(t *testing.T) {
	records := make([][]string, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, []string{"1", "0"})
	}
	data, err := table.FromRecords([]string{"profissao", "score_credito"}, records)
	require.NoError(t, err)

	approval := NewCreditApproval(approvalParameters(testEnv(t, config.StoreCSV)), io.NewCSVStore(), nil)
	require.NoError(t, approval.Prepare(data))
	require.ErrorIs(t, approval.Train(), model.ErrSingleClass)

	_, ok := approval.FeatureImportance()
	require.False(t, ok)
}

func TestCreditApprovalEndToEnd(t *testing.T) {
	for _, store := range []string{config.StoreCSV, config.StoreSQLite} {
		t.Run(store, func(t *testing.T) {
			env := testEnv(t, store)
			approval, err := Run(context.Background(), env, fakeGenerator{rows: 100})
			require.NoError(t, err)

			importance, ok := approval.FeatureImportance()
			require.True(t, ok)
			require.Equal(t, "profissao", importance.BestFeature)
			require.Equal(t, 0, approval.Rule().Errors)
			require.Len(t, importance.Rules, 3)

			split := approval.Split()
			require.Len(t, split.Test, 20)
			require.Len(t, split.Train, 80)
			require.False(t, approval.Balance().Imbalanced)

			train, test := approval.Reports()
			require.Equal(t, 1.0, train.Accuracy)
			require.Equal(t, 1.0, test.Accuracy)

			cleaned, err := env.Store.Load(env.Settings.Data.Path("cleaned"))
			require.NoError(t, err)
			require.Equal(t, "1", cleaned.Cell(0, "profissao").String())
			require.True(t, cleaned.Cell(2, "profissao").IsMissing())
			require.True(t, cleaned.Cell(2, "garantias").IsMissing())
			require.Equal(t, "0", cleaned.Cell(0, "score_credito").String())

			processed, err := env.Store.Load(env.Settings.Data.Path("processed"))
			require.NoError(t, err)
			require.Equal(t, []string{"profissao", "garantias", "score_credito", "aprovacao_credito", "aprovacao_prevista"}, processed.Columns())
			require.Equal(t, []string{"Medico", "Imovel", "Bom", "1", "1"}, processed.Record(0))
			require.Equal(t, []string{"Advogado", "Veiculo", "Bom", "1", "1"}, processed.Record(1))
			require.Equal(t, []string{"Pedreiro", "Imovel", "Ruim", "0", "0"}, processed.Record(3))
			require.True(t, processed.Cell(2, "profissao").IsMissing())
			require.Equal(t, "Regular", processed.Cell(2, "score_credito").String())

			saved, err := io.LoadModelFile(env.Settings.Data.ModelPath())
			require.NoError(t, err)
			require.Equal(t, "profissao", saved.Rule.BestFeature)
			require.NotNil(t, saved.Pipeline)

			registry, err := runs.Open(env.Settings.Data.RunsPath())
			require.NoError(t, err)
			defer registry.Close()
			history, err := registry.List()
			require.NoError(t, err)
			require.Len(t, history, 1)
			require.Equal(t, "profissao", history[0].BestFeature)
			require.Equal(t, 1.0, history[0].TestAccuracy)

			require.NoError(t, WriteMetrics(env))
			content, err := os.ReadFile(env.Settings.Data.MetricsFile)
			require.NoError(t, err)
			require.True(t, strings.Contains(string(content), `creditrule_rows_processed_total{stage="clean"} 100`))
		})
	}
}

func TestRunStopsWhenGenerationFails(t *testing.T) {
	env := testEnv(t, config.StoreCSV)
	_, err := Run(context.Background(), env, fakeGenerator{err: source.ErrNoData})
	require.ErrorIs(t, err, source.ErrNoData)

	_, err = os.Stat(env.Settings.Data.Path("raw"))
	require.True(t, os.IsNotExist(err))
}

func TestTrainWithoutDecodeKeepsPipeline(t *testing.T) {
	env := testEnv(t, config.StoreCSV)
	_, err := Run(context.Background(), env, fakeGenerator{rows: 100})
	require.NoError(t, err)

	env.Settings.Model.Decode = false
	_, err = Train(env)
	require.NoError(t, err)

	saved, err := io.LoadModelFile(env.Settings.Data.ModelPath())
	require.NoError(t, err)
	require.NotNil(t, saved.Pipeline)
	require.NotNil(t, saved.Rule)

	processed, err := env.Store.Load(env.Settings.Data.Path("processed"))
	require.NoError(t, err)
	require.Equal(t, []string{"1", "0", "0", "1", "1"}, processed.Record(0))

	env.Settings.Model.Decode = true
	_, err = Train(env)
	require.NoError(t, err)

	processed, err = env.Store.Load(env.Settings.Data.Path("processed"))
	require.NoError(t, err)
	require.Equal(t, []string{"Medico", "Imovel", "Bom", "1", "1"}, processed.Record(0))
}

func TestTrainWithoutModelFileWritesCodes(t *testing.T) {
	env := testEnv(t, config.StoreCSV)
	_, err := Generate(context.Background(), env, fakeGenerator{rows: 100})
	require.NoError(t, err)
	_, _, err = Clean(env)
	require.NoError(t, err)
	require.NoError(t, os.Remove(env.Settings.Data.ModelPath()))

	_, err = Train(env)
	require.NoError(t, err)

	processed, err := env.Store.Load(env.Settings.Data.Path("processed"))
	require.NoError(t, err)
	require.Equal(t, []string{"1", "0", "0", "1", "1"}, processed.Record(0))

	saved, err := io.LoadModelFile(env.Settings.Data.ModelPath())
	require.NoError(t, err)
	require.Nil(t, saved.Pipeline)
	require.Equal(t, "profissao", saved.Rule.BestFeature)
}
