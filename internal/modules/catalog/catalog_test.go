package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/database"
)

func newTestCatalog(t *testing.T) (*Catalog, *database.DB) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "catalog.db"),
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	c := New(db, zerolog.Nop())
	require.NoError(t, c.Refresh(context.Background()))
	return c, db
}

func TestRefreshDiscoversSchema(t *testing.T) {
	c, _ := newTestCatalog(t)

	for _, table := range []string{"platforms", "products", "current_prices", "price_history"} {
		assert.True(t, c.Has(table), table)
	}
	assert.False(t, c.Has("no_such_table"))
	assert.False(t, c.Has("sqlite_sequence"))
}

func TestTableMetadata(t *testing.T) {
	c, _ := newTestCatalog(t)

	table, ok := c.Table("current_prices")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, table.PrimaryKey)

	cols := make(map[string]Column)
	for _, col := range table.Columns {
		cols[col.Name] = col
	}
	require.Contains(t, cols, "price")
	assert.Equal(t, "REAL", cols["price"].Type)
	assert.False(t, cols["price"].Nullable)
	assert.True(t, cols["original_price"].Nullable)
}

func TestForeignKeysDiscovered(t *testing.T) {
	c, _ := newTestCatalog(t)

	fks, ok := c.ForeignKeys("current_prices")
	require.True(t, ok)

	targets := make(map[string]bool)
	for _, fk := range fks {
		targets[fk.ToTable] = true
		require.NotEmpty(t, fk.FromColumns)
		require.Len(t, fk.ToColumns, len(fk.FromColumns))
	}
	assert.True(t, targets["products"])
	assert.True(t, targets["platforms"])
}

func TestIndexesDiscovered(t *testing.T) {
	c, _ := newTestCatalog(t)

	table, ok := c.Table("current_prices")
	require.True(t, ok)
	assert.True(t, table.HasIndexOn("price"))
	assert.True(t, table.HasIndexOn("platform_id"))
	assert.False(t, table.HasIndexOn("last_updated"))
}

func TestEstimatedRowsTracksData(t *testing.T) {
	c, db := newTestCatalog(t)

	table, _ := c.Table("platforms")
	assert.EqualValues(t, 0, table.EstimatedRows)

	_, err := db.Exec("INSERT INTO platforms (name, display_name) VALUES ('Blinkit', 'Blinkit'), ('Zepto', 'Zepto')")
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))

	table, _ = c.Table("platforms")
	assert.EqualValues(t, 2, table.EstimatedRows)
}

func TestChecksumStableAcrossDataChanges(t *testing.T) {
	c, db := newTestCatalog(t)
	before := c.Checksum()
	require.NotEmpty(t, before)

	// Data changes do not move the structural checksum
	_, err := db.Exec("INSERT INTO brands (name) VALUES ('Amul')")
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, before, c.Checksum())

	// Schema changes do
	_, err = db.Exec("CREATE TABLE scratch (id INTEGER PRIMARY KEY, note TEXT)")
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))
	assert.NotEqual(t, before, c.Checksum())
}

func TestSnapshotIsConsistent(t *testing.T) {
	c, _ := newTestCatalog(t)

	snap := c.Snapshot()
	assert.Equal(t, c.Checksum(), snap.Checksum)
	assert.Len(t, snap.Tables, len(c.Tables()))
}
