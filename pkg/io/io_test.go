package io

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"creditrule/pkg/etl"
	"creditrule/pkg/model"
	"creditrule/pkg/table"
)

const sample = `profissao,score_credito,garantias
Medico,0,Imovel
,1,
Advogado,2,Veiculo
`

func TestCSVStoreRoundTrip(t *testing.T) {
	store := NewCSVStore()
	tb, err := store.Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, []string{"profissao", "score_credito", "garantias"}, tb.Columns())
	require.Equal(t, 3, tb.Rows())
	require.True(t, tb.Cell(1, "profissao").IsMissing())
	require.Equal(t, "2", tb.Cell(2, "score_credito").String())

	path := filepath.Join(t.TempDir(), "cleaned", "dataset.csv")
	require.NoError(t, store.Save(path, tb))

	loaded, err := store.Load(path)
	require.NoError(t, err)
	require.Equal(t, tb.Columns(), loaded.Columns())
	for r := 0; r < tb.Rows(); r++ {
		require.Equal(t, tb.Record(r), loaded.Record(r))
	}

	var b bytes.Buffer
	require.NoError(t, store.Write(&b, loaded))
	require.Equal(t, sample, b.String())
}

func TestCSVStoreErrors(t *testing.T) {
	store := NewCSVStore()
	_, err := store.Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	_, err = store.Read(strings.NewReader(""))
	require.Error(t, err)

	_, err = store.Read(strings.NewReader("a,b\n1\n"))
	require.Error(t, err)
}

func TestModelFileRoundTrip(t *testing.T) {
	raw, err := table.FromRecords([]string{"profissao"}, [][]string{{"A"}, {"B"}})
	require.NoError(t, err)
	fitted, err := etl.Pipeline{Columns: []string{"profissao"}}.Fit(raw)
	require.NoError(t, err)

	m := &model.Model{
		Pipeline: fitted,
		Rule: &model.Rule{
			BestFeature:       "profissao",
			Rules:             map[string]model.RuleEntry{"0": {Class: 1, Confidence: 1, Support: 2}},
			DefaultClass:      1,
			ClassDistribution: map[int]float64{0: 0.25, 1: 0.75},
		},
		ScoreColumn:  "score_credito",
		TargetColumn: "aprovacao_credito",
	}
	path := filepath.Join(t.TempDir(), "models", "onerule.gob")
	require.NoError(t, SaveModelFile(m, path))

	loaded, err := LoadModelFile(path)
	require.NoError(t, err)
	require.Equal(t, m.Rule, loaded.Rule)
	require.Equal(t, m.Pipeline.Encoder.Maps, loaded.Pipeline.Encoder.Maps)
	require.Equal(t, "aprovacao_credito", loaded.TargetColumn)
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		if i%4 == 0 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	split, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	require.Len(t, split.Test, 20)
	require.Len(t, split.Train, 80)

	count := func(indices []int, label int) int {
		n := 0
		for _, i := range indices {
			if labels[i] == label {
				n++
			}
		}
		return n
	}
	require.Equal(t, 5, count(split.Test, 1))
	require.Equal(t, 15, count(split.Test, 0))
	require.Equal(t, 20, count(split.Train, 1))

	seen := map[int]bool{}
	for _, i := range append(append([]int(nil), split.Train...), split.Test...) {
		require.False(t, seen[i])
		seen[i] = true
	}
	require.Len(t, seen, 100)

	again, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	require.Equal(t, split, again)
}

func TestStratifiedSplitRounding(t *testing.T) {
	labels := []int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}
	split, err := StratifiedSplit(labels, 0.25, 7)
	require.NoError(t, err)
	require.Len(t, split.Test, 3)
	require.Len(t, split.Train, 7)
}

func TestStratifiedSplitInvalid(t *testing.T) {
	_, err := StratifiedSplit([]int{0, 1}, 0, 1)
	require.Error(t, err)
	_, err = StratifiedSplit([]int{0, 1}, 1.5, 1)
	require.Error(t, err)
	_, err = StratifiedSplit(nil, 0.2, 1)
	require.Error(t, err)
}
