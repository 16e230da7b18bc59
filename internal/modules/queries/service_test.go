package queries

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "catalog.db"),
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	seedCatalog(t, db)
	return NewService(db, nil, nil, nil, zerolog.Nop())
}

func seedCatalog(t *testing.T, db *database.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO platforms (name, display_name) VALUES
			('Blinkit', 'Blinkit'), ('Zepto', 'Zepto'),
			('Instamart', 'Instamart'), ('BigBasket', 'BigBasket')`,
		`INSERT INTO categories (name, slug) VALUES
			('Fruits', 'fruits'), ('Dairy', 'dairy')`,
		`INSERT INTO products (name, slug, category_id) VALUES
			('Banana Robusta 500g', 'banana-robusta-500g', 1),
			('Mango Alphonso 1kg', 'mango-alphonso-1kg', 1),
			('Amul Milk 500ml', 'amul-milk-500ml', 2)`,
		// Banana on all four platforms, mango on two, milk on one
		`INSERT INTO current_prices (product_id, platform_id, price, original_price, discount_percentage, is_available) VALUES
			(1, 1, 28.0, 35.0, 20.0, 1),
			(1, 2, 31.0, NULL, NULL, 1),
			(1, 3, 26.0, 40.0, 35.0, 1),
			(1, 4, 30.0, NULL, NULL, 1),
			(2, 1, 180.0, 200.0, 10.0, 1),
			(2, 2, 175.0, NULL, NULL, 1),
			(3, 1, 33.0, NULL, NULL, 0)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestMatchFastPath(t *testing.T) {
	tests := []struct {
		query   string
		want    FastPath
		matched bool
	}{
		{"Which app has the cheapest bananas right now?", PathCheapestProduct, true},
		{"lowest price for milk", PathCheapestProduct, true},
		{"Show me products with 30%+ discounts on Blinkit", PathDiscountSearch, true},
		{"any offers today", PathDiscountSearch, true},
		{"Compare fruit prices between Zepto and Instamart", PathPlatformComparison, true},
		{"blinkit vs zepto for dairy", PathPlatformComparison, true},
		{"budget grocery list under ₹1000", PathBudgetDeals, true},
		{"best deals under rs. 500", PathBudgetDeals, true},
		// Comparison wins even when cheapest keywords are present
		{"compare cheapest banana", PathPlatformComparison, true},
		{"what is the average price of onions", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchFastPath(tt.query)
		assert.Equal(t, tt.matched, ok, tt.query)
		if tt.matched {
			assert.Equal(t, tt.want, got, tt.query)
		}
	}
}

func TestExtractionHelpers(t *testing.T) {
	assert.Equal(t, []string{"Zepto", "Instamart"}, platformsIn("compare zepto and instamart"))
	assert.Empty(t, platformsIn("cheapest banana"))

	assert.Equal(t, 30.0, minDiscountIn("items with 30%+ off"))
	assert.Equal(t, 0.0, minDiscountIn("any discounts"))

	assert.Equal(t, 1000.0, budgetIn("list under ₹1000"))
	assert.Equal(t, 500.0, budgetIn("deals under rs. 500"))
	assert.Equal(t, 0.0, budgetIn("no budget here"))
}

func TestRunCheapestOrdersByPriceAscending(t *testing.T) {
	s := newTestService(t)

	rows, tables, err := s.runCheapest(context.Background(), "cheapest banana")
	require.NoError(t, err)
	assert.Equal(t, baseTables, tables)
	require.Len(t, rows, 4)

	prev := -1.0
	for _, row := range rows {
		price, ok := toFloat(row["current_price"])
		require.True(t, ok)
		assert.GreaterOrEqual(t, price, prev)
		prev = price
	}
	assert.Equal(t, "Instamart", rows[0]["platform_name"])
}

func TestRunCheapestSkipsUnavailable(t *testing.T) {
	s := newTestService(t)

	rows, _, err := s.runCheapest(context.Background(), "cheapest milk")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunDiscountsFiltersAndOrders(t *testing.T) {
	s := newTestService(t)

	rows, _, err := s.runDiscounts(context.Background(), "show products with 15%+ discounts")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, _ := toFloat(rows[0]["discount_percentage"])
	second, _ := toFloat(rows[1]["discount_percentage"])
	assert.Equal(t, 35.0, first)
	assert.Equal(t, 20.0, second)
}

func TestRunDiscountsPlatformFilter(t *testing.T) {
	s := newTestService(t)

	rows, _, err := s.runDiscounts(context.Background(), "discounts on Blinkit")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "Blinkit", row["platform_name"])
	}
}

func TestRunComparisonGroupsWiderCoverageFirst(t *testing.T) {
	s := newTestService(t)

	rows, _, err := s.runComparison(context.Background(), "compare fruit prices between Blinkit and Zepto")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// Banana is on both requested platforms, mango too; banana sorts
	// first alphabetically within the same coverage tier.
	assert.Contains(t, rows[0]["product_name"], "Banana")
	for _, row := range rows {
		assert.NotContains(t, row, "platform_count")
	}
}

func TestRunBudgetRespectsBudgetAndCategoryCap(t *testing.T) {
	s := newTestService(t)

	rows, tables, err := s.runBudget(context.Background(), "budget list under ₹100")
	require.NoError(t, err)
	assert.Contains(t, tables, "categories")

	total := 0.0
	seen := map[string]bool{}
	perCategory := map[string]int{}
	for _, row := range rows {
		price, ok := toFloat(row["current_price"])
		require.True(t, ok)
		total += price

		product := row["product_name"].(string)
		assert.False(t, seen[product], "product repeated in basket")
		seen[product] = true
		perCategory["fruits"]++
	}
	assert.LessOrEqual(t, total, 100.0)
	assert.LessOrEqual(t, len(rows), 20)
}

func TestFastPathsExcludeInactivePlatforms(t *testing.T) {
	s := newTestService(t)
	_, err := s.db.Exec("UPDATE platforms SET is_active = 0 WHERE name = 'Instamart'")
	require.NoError(t, err)

	// Instamart had the cheapest banana while active
	rows, _, err := s.runCheapest(context.Background(), "cheapest banana")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.NotEqual(t, "Instamart", row["platform_name"])
	}
	assert.Equal(t, "Blinkit", rows[0]["platform_name"])

	// Its 35% discount disappears from the discount sweep too
	rows, _, err = s.runDiscounts(context.Background(), "show discounts")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.NotEqual(t, "Instamart", row["platform_name"])
	}
}

func TestUnion(t *testing.T) {
	got := union([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
