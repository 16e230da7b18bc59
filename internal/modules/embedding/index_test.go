package embedding

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/modules/catalog"
)

func newTestIndex(t *testing.T) (*Index, *Store) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "catalog.db"),
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	cat := catalog.New(db, zerolog.Nop())
	require.NoError(t, cat.Refresh(context.Background()))

	store := NewStore(filepath.Join(t.TempDir(), "embeddings"))
	idx := NewIndex(cat, NewHashEmbedder(128), store, nil, time.Hour, zerolog.Nop())
	require.NoError(t, idx.EnsureBuilt(context.Background()))
	return idx, store
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	e := NewHashEmbedder(64)

	vec, err := e.Embed(context.Background(), "current product prices per platform")
	require.NoError(t, err)
	require.Len(t, vec, 64)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "cheapest onions")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "cheapest onions")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestRelevantTablesRanksPriceTables(t *testing.T) {
	idx, _ := newTestIndex(t)

	hits, err := idx.RelevantTables(context.Background(), "current price of products on each platform", 5, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 5)

	// Descending similarity
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}

	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.Table)
	}
	assert.Contains(t, names, "current_prices")
}

func TestRelevantTablesThresholdFilters(t *testing.T) {
	idx, _ := newTestIndex(t)

	hits, err := idx.RelevantTables(context.Background(), "price", 0, 0.99)
	require.NoError(t, err)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.99)
	}
}

func TestRelevantColumns(t *testing.T) {
	idx, _ := newTestIndex(t)

	byTable, err := idx.RelevantColumns(context.Background(), "discount percentage", []string{"current_prices"}, 3)
	require.NoError(t, err)
	hits := byTable["current_prices"]
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 3)
	assert.Equal(t, "discount_percentage", hits[0].Column)
}

func TestJoinSuggestionsUseForeignKeys(t *testing.T) {
	idx, _ := newTestIndex(t)

	suggestions := idx.JoinSuggestions([]string{"current_prices", "products", "platforms"})
	require.NotEmpty(t, suggestions)

	var fkBacked int
	for _, s := range suggestions {
		if s.Confidence == 1.0 {
			fkBacked++
		}
	}
	assert.GreaterOrEqual(t, fkBacked, 2, "current_prices links to both products and platforms")
}

func TestEnsureBuiltReloadsFreshBlob(t *testing.T) {
	idx, store := newTestIndex(t)

	blob, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "hash", blob.EmbedderName)
	assert.NotEmpty(t, blob.Tables)

	// A second EnsureBuilt on a fresh blob loads rather than rebuilds;
	// either way the index must answer queries.
	require.NoError(t, idx.EnsureBuilt(context.Background()))
	hits, err := idx.RelevantTables(context.Background(), "platforms", 3, 0.0)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestStoreRejectsWrongVersion(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "embeddings"))
	require.NoError(t, store.Save(&Blob{Version: blobVersion - 1, Tables: map[string][]float64{}}))

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "embeddings"))
	in := &Blob{
		Version:        blobVersion,
		SchemaChecksum: "abc",
		EmbedderName:   "hash",
		CreatedAt:      time.Now(),
		Tables:         map[string][]float64{"products": {0.1, 0.2}},
		Columns:        map[string][]float64{"products.name": {0.3, 0.4}},
	}
	require.NoError(t, store.Save(in))

	out, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, in.SchemaChecksum, out.SchemaChecksum)
	assert.Equal(t, in.Tables, out.Tables)
	assert.Equal(t, in.Columns, out.Columns)

	age, ok := store.Age()
	require.True(t, ok)
	assert.Less(t, age, time.Minute)
}
