package pricing

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/config"
	"github.com/pricelens/pricelens/internal/database"
)

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Enabled:      true,
		Interval:     time.Second,
		BatchSize:    50,
		Workers:      4,
		MaxChangePct: 0.15,
		DiscountProb: 0.15,
		SurgeProb:    0.05,
		PriceFloor:   5.00,
		MaxRetries:   3,
	}
}

func newTestEngine(t *testing.T, rows int) (*Engine, *database.DB) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "catalog.db"),
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	_, err = db.Exec(`INSERT INTO platforms (name, display_name) VALUES ('Blinkit', 'Blinkit')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO categories (name, slug) VALUES ('Staples', 'staples')`)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec(`INSERT INTO products (name, slug, category_id) VALUES (?, ?, 1)`,
			fmt.Sprintf("Rice Pack %d", i+1), fmt.Sprintf("rice-pack-%d", i+1))
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO current_prices (product_id, platform_id, price) VALUES (?, 1, ?)`,
			i+1, 50.0+float64(i))
		require.NoError(t, err)
	}

	return NewEngine(db, testEngineConfig(), nil, zerolog.Nop()), db
}

func TestRunCycleJournalsEveryCommit(t *testing.T) {
	e, db := newTestEngine(t, 10)

	e.RunCycle(context.Background())

	var updates int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM price_history WHERE source = 'engine'").Scan(&updates))
	snap := e.metrics.snapshot()
	assert.EqualValues(t, snap.SuccessfulUpdates, updates,
		"exactly one history row per committed update")
	assert.EqualValues(t, 10, snap.TotalUpdates)
	assert.Zero(t, snap.FailedUpdates)
}

func TestPricesNeverDropBelowFloor(t *testing.T) {
	e, db := newTestEngine(t, 8)

	// Start near the floor so downward moves would cross it
	_, err := db.Exec("UPDATE current_prices SET price = 5.50")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		e.RunCycle(context.Background())
	}

	rows, err := db.Query("SELECT price FROM current_prices")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var price float64
		require.NoError(t, rows.Scan(&price))
		assert.GreaterOrEqual(t, price, 5.00)
	}
	require.NoError(t, rows.Err())
}

func TestDiscountConsistency(t *testing.T) {
	e, db := newTestEngine(t, 20)

	for i := 0; i < 10; i++ {
		e.RunCycle(context.Background())
	}

	rows, err := db.Query(`
		SELECT price, original_price, discount_percentage
		FROM current_prices WHERE discount_percentage IS NOT NULL`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var price, original, pct float64
		require.NoError(t, rows.Scan(&price, &original, &pct))
		require.Greater(t, original, 0.0)
		implied := 100 * (1 - price/original)
		assert.InDelta(t, implied, pct, 1.0, "discount percentage matches prices")
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
	}
	require.NoError(t, rows.Err())
}

func TestChangeTypeMatchesDelta(t *testing.T) {
	e, db := newTestEngine(t, 15)

	e.RunCycle(context.Background())

	rows, err := db.Query("SELECT change_type, change_amount FROM price_history")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var changeType string
		var amount float64
		require.NoError(t, rows.Scan(&changeType, &amount))
		switch changeType {
		case "increase":
			assert.Greater(t, amount, 0.0)
		case "decrease":
			assert.Less(t, amount, 0.0)
		case "no_change":
			assert.InDelta(t, 0.0, amount, 0.01)
		default:
			t.Fatalf("unexpected change_type %q", changeType)
		}
	}
	require.NoError(t, rows.Err())
}

func TestStockStatusCoherence(t *testing.T) {
	e, db := newTestEngine(t, 30)

	for i := 0; i < 10; i++ {
		e.RunCycle(context.Background())
	}

	var incoherent int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM current_prices
		WHERE (is_available = 1 AND stock_status = 'out_of_stock')
		   OR (is_available = 0 AND stock_status != 'out_of_stock')`).Scan(&incoherent))
	assert.Zero(t, incoherent)
}

func TestClassifyChange(t *testing.T) {
	assert.Equal(t, "increase", classifyChange(1.5))
	assert.Equal(t, "decrease", classifyChange(-0.25))
	assert.Equal(t, "no_change", classifyChange(0))
	assert.Equal(t, "no_change", classifyChange(0.003))
	assert.Equal(t, "no_change", classifyChange(-0.003))
}

func TestComputeNextUndoesDiscountBaseline(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	e.cfg.DiscountProb = 0
	e.cfg.SurgeProb = 0
	e.cfg.MaxChangePct = 0.01

	state := rowState{
		Price:              70.0,
		OriginalPrice:      sql.NullFloat64{Float64: 100.0, Valid: true},
		DiscountPercentage: sql.NullFloat64{Float64: 30.0, Valid: true},
		IsAvailable:        true,
		StockStatus:        "in_stock",
	}

	// With the discount branch off, the next price re-anchors on the
	// original price rather than the discounted one.
	for i := 0; i < 20; i++ {
		next := e.computeNext("Rice Pack A", state)
		assert.Greater(t, next.price, 90.0)
		assert.LessOrEqual(t, next.price, 110.0)
	}
}

func TestConflictRetryCountsOnlyResolvedConflicts(t *testing.T) {
	busyErr := fmt.Errorf("database is locked (5) (SQLITE_BUSY)")

	t.Run("clean first attempt is not a conflict", func(t *testing.T) {
		e, _ := newTestEngine(t, 1)
		_, err := e.withConflictRetry(context.Background(), func() (updateOutcome, error) {
			return updateOutcome{}, nil
		})
		require.NoError(t, err)
		assert.Zero(t, e.metrics.snapshot().ConflictsResolved)
	})

	t.Run("retry after contention counts once", func(t *testing.T) {
		e, _ := newTestEngine(t, 1)
		calls := 0
		_, err := e.withConflictRetry(context.Background(), func() (updateOutcome, error) {
			calls++
			if calls < 3 {
				return updateOutcome{}, busyErr
			}
			return updateOutcome{}, nil
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, e.metrics.snapshot().ConflictsResolved)
	})

	t.Run("exhausted retries resolve nothing", func(t *testing.T) {
		e, _ := newTestEngine(t, 1)
		_, err := e.withConflictRetry(context.Background(), func() (updateOutcome, error) {
			return updateOutcome{}, busyErr
		})
		require.Error(t, err)
		assert.Zero(t, e.metrics.snapshot().ConflictsResolved)
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		e, _ := newTestEngine(t, 1)
		calls := 0
		_, err := e.withConflictRetry(context.Background(), func() (updateOutcome, error) {
			calls++
			return updateOutcome{}, assert.AnError
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Zero(t, e.metrics.snapshot().ConflictsResolved)
	})
}

func TestStopPreventsFurtherCycles(t *testing.T) {
	e, db := newTestEngine(t, 5)

	e.Stop(time.Second)
	e.RunCycle(context.Background())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&count))
	assert.Zero(t, count)
	assert.False(t, e.Status().Running)
}

func TestSigmaFor(t *testing.T) {
	assert.Greater(t, sigmaFor("Tomato Hybrid 500g"), sigmaFor("Rice Basmati 5kg"))
	assert.Greater(t, sigmaFor("Onion Red 1kg"), sigmaFor("Amul Milk 500ml"))
	assert.Equal(t, defaultSigma, sigmaFor("Mystery Item"))
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(assert.AnError))
	assert.True(t, isBusy(fmt.Errorf("database is locked (5) (SQLITE_BUSY)")))
}
