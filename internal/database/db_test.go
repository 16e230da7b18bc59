package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrateCreatesCatalogTables(t *testing.T) {
	db := newTestDB(t, "catalog")

	for _, table := range []string{"platforms", "products", "current_prices", "price_history"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t, "catalog")
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := newTestDB(t, "catalog")

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO platforms (name, display_name) VALUES ('Instamart', 'Instamart')"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM platforms").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithWriteLockCommits(t *testing.T) {
	db := newTestDB(t, "catalog")

	err := db.WithWriteLock(context.Background(), func(tx *TxConn) error {
		_, err := tx.ExecContext(context.Background(),
			"INSERT INTO platforms (name, display_name) VALUES ('Blinkit', 'Blinkit')")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM platforms").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithWriteLockRollsBackOnError(t *testing.T) {
	db := newTestDB(t, "catalog")

	err := db.WithWriteLock(context.Background(), func(tx *TxConn) error {
		if _, err := tx.ExecContext(context.Background(),
			"INSERT INTO platforms (name, display_name) VALUES ('Zepto', 'Zepto')"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM platforms").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithWriteLockSerialisesWriters(t *testing.T) {
	db := newTestDB(t, "catalog")
	_, err := db.Exec("INSERT INTO platforms (name, display_name) VALUES ('Blinkit', 'Blinkit')")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.WithWriteLock(context.Background(), func(tx *TxConn) error {
				_, err := tx.ExecContext(context.Background(),
					"UPDATE platforms SET display_name = display_name || 'x' WHERE name = 'Blinkit'")
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var display string
	require.NoError(t, db.QueryRow(
		"SELECT display_name FROM platforms WHERE name = 'Blinkit'").Scan(&display))
	assert.Len(t, display, len("Blinkit")+workers)
}

func TestObserverSeesQueries(t *testing.T) {
	db := newTestDB(t, "catalog")

	var mu sync.Mutex
	var observed []string
	db.SetObserver(observerFunc(func(sqlText string, _ time.Duration, _ int64, _ error) {
		mu.Lock()
		observed = append(observed, sqlText)
		mu.Unlock()
	}))

	_, err := db.Exec("INSERT INTO brands (name) VALUES ('Amul')")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	assert.Contains(t, observed[len(observed)-1], "INSERT INTO brands")
}

type observerFunc func(string, time.Duration, int64, error)

func (f observerFunc) ObserveQuery(sqlText string, d time.Duration, rows int64, err error) {
	f(sqlText, d, rows, err)
}

func TestQuickCheck(t *testing.T) {
	db := newTestDB(t, "catalog")
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestRowsToMaps(t *testing.T) {
	db := newTestDB(t, "catalog")
	_, err := db.Exec("INSERT INTO brands (name) VALUES ('Amul'), ('Tata')")
	require.NoError(t, err)

	rows, err := db.Query("SELECT id, name FROM brands ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()

	maps, err := RowsToMaps(rows)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "Amul", maps[0]["name"])
	assert.Equal(t, "Tata", maps[1]["name"])
}
