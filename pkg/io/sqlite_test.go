package io

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"creditrule/pkg/table"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "credit.db"))
	require.NoError(t, err)
	defer store.Close()

	tb, err := table.New([]string{"profissao", "score credito"}, map[string][]table.Cell{
		"profissao":     {table.Str("Medico"), table.Null(), table.Str(`Quote"d`)},
		"score credito": {table.Int(0), table.Int(2), table.Null()},
	})
	require.NoError(t, err)

	var _ Store = store
	require.NoError(t, store.Save("cleaned", tb))
	// saving twice replaces the table
	require.NoError(t, store.Save("cleaned", tb))

	loaded, err := store.Load("cleaned")
	require.NoError(t, err)
	require.Equal(t, tb.Columns(), loaded.Columns())
	require.Equal(t, 3, loaded.Rows())
	require.True(t, loaded.Cell(1, "profissao").IsMissing())
	require.Equal(t, `Quote"d`, loaded.Cell(2, "profissao").String())
	require.Equal(t, "2", loaded.Cell(1, "score credito").String())
	require.True(t, loaded.Cell(2, "score credito").IsMissing())

	_, err = store.Load("processed")
	require.Error(t, err)
}
