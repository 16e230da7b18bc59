package planner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/modules/catalog"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "catalog.db"),
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	stmts := []string{
		`INSERT INTO platforms (name, display_name) VALUES ('Blinkit', 'Blinkit')`,
		`INSERT INTO categories (name, slug) VALUES ('Fruits', 'fruits')`,
		`INSERT INTO products (name, slug, category_id) VALUES
			('Banana', 'banana', 1), ('Mango', 'mango', 1), ('Apple', 'apple', 1)`,
		`INSERT INTO current_prices (product_id, platform_id, price) VALUES
			(1, 1, 28.0), (2, 1, 180.0), (3, 1, 90.0)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	cat := catalog.New(db, zerolog.Nop())
	require.NoError(t, cat.Refresh(context.Background()))
	return New(cat, nil, zerolog.Nop())
}

func TestPlanCoversAllTables(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan("cheapest banana", []string{"products", "current_prices", "platforms"}, "")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"products", "current_prices", "platforms"}, plan.Tables)
	assert.Len(t, plan.JoinOrder, 3)
	assert.Len(t, plan.JoinPaths, 2, "spanning tree over 3 tables has 2 edges")
	assert.Greater(t, plan.ComplexityScore, 0)
	assert.NotEmpty(t, plan.Complexity)
	assert.Greater(t, plan.EstimatedTimeSeconds, 0.0)
}

func TestPlanStartsFromSmallestTable(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan("q", []string{"products", "platforms"}, "")
	require.NoError(t, err)
	require.Len(t, plan.JoinOrder, 2)
	// One platform row vs three product rows
	assert.Equal(t, "platforms", plan.JoinOrder[0])
}

func TestPlanUsesForeignKeysWithFullConfidence(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan("q", []string{"products", "current_prices"}, "")
	require.NoError(t, err)
	require.Len(t, plan.JoinPaths, 1)
	assert.Equal(t, 1.0, plan.JoinPaths[0].Confidence)
	assert.Contains(t, plan.JoinPaths[0].Condition, "product_id")
}

func TestPlanRejectsUnknownTables(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Plan("q", []string{"products", "warehouse_stock"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse_stock")
}

func TestPlanRejectsEmptyTableSet(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.Plan("q", nil, "")
	require.Error(t, err)
}

func TestPlanDeduplicatesTables(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan("q", []string{"products", "products", "platforms"}, "")
	require.NoError(t, err)
	assert.Len(t, plan.Tables, 2)
}

func TestPlanSingleTable(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan("q", []string{"products"}, "")
	require.NoError(t, err)
	assert.Empty(t, plan.JoinPaths)
	assert.Equal(t, []string{"products"}, plan.JoinOrder)
	assert.Equal(t, ComplexitySimple, plan.Complexity)
}

func TestComplexityLevels(t *testing.T) {
	assert.Equal(t, ComplexitySimple, complexityLevel(3))
	assert.Equal(t, ComplexityModerate, complexityLevel(6))
	assert.Equal(t, ComplexityComplex, complexityLevel(9))
	assert.Equal(t, ComplexityVeryComplex, complexityLevel(10))
}

func TestApplyHintsAddsLimitForComplexPlans(t *testing.T) {
	p := newTestPlanner(t)

	plan := &ExecutionPlan{Complexity: ComplexityComplex}
	out := p.ApplyHints("SELECT * FROM products;", plan)
	assert.Contains(t, out, "LIMIT 100")

	plan.Complexity = ComplexitySimple
	out = p.ApplyHints("SELECT * FROM products", plan)
	assert.NotContains(t, out, "LIMIT")
}

func TestApplyHintsKeepsExistingLimit(t *testing.T) {
	p := newTestPlanner(t)

	plan := &ExecutionPlan{Complexity: ComplexityVeryComplex}
	out := p.ApplyHints("SELECT * FROM products LIMIT 5", plan)
	assert.NotContains(t, out, "LIMIT 100")
}
