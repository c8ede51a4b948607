package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBatch_AllOrNothingOnDimensionMismatch(t *testing.T) {
	ix, err := New(t.TempDir())
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 4)
	require.NoError(t, err)

	rows := []Row{
		{ID: 1, Embedding: []float32{1, 0, 0, 0}},
		{ID: 2, Embedding: []float32{1, 0, 0}}, // wrong width
	}

	err = table.InsertBatch(context.Background(), rows)
	require.Error(t, err)
	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)

	assert.Equal(t, 0, table.Count(), "no row may be inserted when any row in the batch is invalid")
}

func TestInsertBatchQuery_ReturnsNearestNeighbor(t *testing.T) {
	ix, err := New(t.TempDir())
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 3)
	require.NoError(t, err)

	rows := []Row{
		{ID: 1, Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"lang": "go"}},
		{ID: 2, Embedding: []float32{0, 1, 0}, Metadata: map[string]string{"lang": "python"}},
		{ID: 3, Embedding: []float32{0.9, 0.1, 0}, Metadata: map[string]string{"lang": "go"}},
	}
	require.NoError(t, table.InsertBatch(context.Background(), rows))
	assert.Equal(t, 3, table.Count())

	results, err := table.Query(context.Background(), []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].ID, "the exact match must rank first")
}

func TestQuery_FilterRestrictsResults(t *testing.T) {
	ix, err := New(t.TempDir())
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 3)
	require.NoError(t, err)

	rows := []Row{
		{ID: 1, Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"lang": "go"}},
		{ID: 2, Embedding: []float32{0.99, 0.01, 0}, Metadata: map[string]string{"lang": "python"}},
	}
	require.NoError(t, table.InsertBatch(context.Background(), rows))

	results, err := table.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{"lang": "python"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestDeleteByID_IsIdempotentAndExcludesFromQuery(t *testing.T) {
	ix, err := New(t.TempDir())
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 2)
	require.NoError(t, err)

	require.NoError(t, table.InsertBatch(context.Background(), []Row{
		{ID: 1, Embedding: []float32{1, 0}},
		{ID: 2, Embedding: []float32{0, 1}},
	}))

	require.NoError(t, table.DeleteByID(1))
	require.NoError(t, table.DeleteByID(1)) // idempotent: no error on repeat

	assert.Equal(t, 1, table.Count())

	results, err := table.Query(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(1), r.ID)
	}
}

// P6 (query determinism): repeated identical queries over fixed contents
// must produce identical ordered results.
func TestQuery_IsDeterministic(t *testing.T) {
	ix, err := New(t.TempDir())
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 3)
	require.NoError(t, err)

	require.NoError(t, table.InsertBatch(context.Background(), []Row{
		{ID: 1, Embedding: []float32{1, 0, 0}},
		{ID: 2, Embedding: []float32{0, 1, 0}},
		{ID: 3, Embedding: []float32{0, 0, 1}},
	}))

	first, err := table.Query(context.Background(), []float32{0.5, 0.5, 0.5}, 3, nil)
	require.NoError(t, err)
	second, err := table.Query(context.Background(), []float32{0.5, 0.5, 0.5}, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// P5 (index-reuse): saving and reopening a table must preserve has_index
// and answer queries without requiring a fresh CreateANNIndex call.
func TestSaveOpenTable_PreservesHasIndexAndData(t *testing.T) {
	dir := t.TempDir()
	ix, err := New(dir)
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 3)
	require.NoError(t, err)

	require.NoError(t, table.InsertBatch(context.Background(), []Row{
		{ID: 1, Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"k": "v"}},
	}))
	require.NoError(t, table.CreateANNIndex())
	require.NoError(t, ix.Save("t"))

	assert.True(t, ix.HasIndex("t"))

	reopened, err := New(dir)
	require.NoError(t, err)
	assert.True(t, reopened.HasIndex("t"))

	reopenedTable, err := reopened.OpenTable("t")
	require.NoError(t, err)

	results, err := reopenedTable.Query(context.Background(), []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, "v", results[0].Metadata["k"])
}

func TestQuery_DimensionMismatch(t *testing.T) {
	ix, err := New(t.TempDir())
	require.NoError(t, err)
	table, err := ix.CreateTable("t", 4)
	require.NoError(t, err)

	_, err = table.Query(context.Background(), []float32{1, 0, 0}, 1, nil)
	require.Error(t, err)
	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
}
