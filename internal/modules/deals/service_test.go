package deals

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/apierror"
	"github.com/pricelens/pricelens/internal/database"
)

var knownPlatforms = []string{"Blinkit", "Zepto", "Instamart"}

func newDealsService(t *testing.T) (*Service, *database.DB) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "catalog.db"),
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	exec := func(sqlText string, args ...any) {
		_, err := db.Exec(sqlText, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO platforms (name, display_name) VALUES
		('Blinkit', 'Blinkit'), ('Zepto', 'Zepto'), ('Instamart', 'Swiggy Instamart')`)
	exec(`INSERT INTO categories (name, slug) VALUES ('Fruits', 'fruits'), ('Dairy', 'dairy')`)
	exec(`INSERT INTO products (name, slug, category_id) VALUES
		('Banana Robusta 1kg', 'banana-robusta-1kg', 1),
		('Mango Alphonso 1kg', 'mango-alphonso-1kg', 1),
		('Amul Milk 500ml', 'amul-milk-500ml', 2)`)
	exec(`INSERT INTO current_prices
		(product_id, platform_id, price, original_price, discount_percentage, is_available) VALUES
		(1, 1, 26.0, 40.0, 35.0, 1),
		(1, 2, 28.0, 35.0, 20.0, 1),
		(2, 1, 90.0, 100.0, 10.0, 1),
		(2, 3, 85.0, 100.0, 15.0, 0),
		(3, 2, 33.0, NULL, NULL, 1)`)
	return NewService(db, zerolog.Nop()), db
}

func TestFilterValidate(t *testing.T) {
	cases := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"defaults ok", Filter{}, false},
		{"negative discount", Filter{MinDiscount: -1}, true},
		{"discount above 100", Filter{MinDiscount: 101}, true},
		{"limit above cap", Filter{Limit: maxLimit + 1}, true},
		{"negative limit", Filter{Limit: -5}, true},
		{"unknown platform", Filter{Platform: "DMart"}, true},
		{"known platform", Filter{Platform: "Zepto"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate(knownPlatforms)
			if tc.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, apierror.CodeValidation, err.Code)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestFilterValidateNormalises(t *testing.T) {
	f := Filter{Platform: "blinkit"}
	require.Nil(t, f.Validate(knownPlatforms))
	assert.Equal(t, "Blinkit", f.Platform, "platform casing folds to the catalog spelling")
	assert.Equal(t, 50, f.Limit, "zero limit becomes the default page size")
}

func TestListOrdersByDiscount(t *testing.T) {
	s, _ := newDealsService(t)

	f := Filter{}
	require.Nil(t, f.Validate(knownPlatforms))
	out, err := s.List(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out, 3, "unavailable and undiscounted rows are excluded")

	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].DiscountPercentage, out[i].DiscountPercentage)
	}
	assert.Equal(t, "Banana Robusta 1kg", out[0].ProductName)
	assert.Equal(t, 35.0, out[0].DiscountPercentage)
	require.NotNil(t, out[0].OriginalPrice)
	assert.InDelta(t, 14.0, out[0].Savings, 1e-9)
}

func TestListMinDiscountAndPlatform(t *testing.T) {
	s, _ := newDealsService(t)

	f := Filter{MinDiscount: 15, Platform: "Blinkit"}
	require.Nil(t, f.Validate(knownPlatforms))
	out, err := s.List(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Banana Robusta 1kg", out[0].ProductName)
	assert.Equal(t, "Blinkit", out[0].PlatformName)
}

func TestListCategoryFilter(t *testing.T) {
	s, _ := newDealsService(t)

	f := Filter{Category: "fruit"}
	require.Nil(t, f.Validate(knownPlatforms))
	out, err := s.List(context.Background(), f)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, d := range out {
		assert.Contains(t, []string{"Banana Robusta 1kg", "Mango Alphonso 1kg"}, d.ProductName)
	}
}

func TestListFeaturedOnly(t *testing.T) {
	s, db := newDealsService(t)

	_, err := db.Exec(`INSERT INTO promotional_campaigns
		(name, description, platform_id, starts_at, ends_at, is_featured, is_active) VALUES
		('Fruit Fest', 'seasonal fruit deals', 1, datetime('now', '-1 day'), datetime('now', '+1 day'), 1, 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO campaign_products (campaign_id, product_id, campaign_price) VALUES (1, 1, 25.0)`)
	require.NoError(t, err)

	f := Filter{FeaturedOnly: true}
	require.Nil(t, f.Validate(knownPlatforms))
	out, err := s.List(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out, 2, "banana on both platforms is in the featured campaign")
	for _, d := range out {
		assert.Equal(t, "Banana Robusta 1kg", d.ProductName)
	}
}

func TestListExcludesInactivePlatforms(t *testing.T) {
	s, db := newDealsService(t)

	// Blinkit holds the 35% and 10% deals; deactivating it must hide both
	_, err := db.Exec("UPDATE platforms SET is_active = 0 WHERE name = 'Blinkit'")
	require.NoError(t, err)

	f := Filter{}
	require.Nil(t, f.Validate(knownPlatforms))
	out, err := s.List(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Zepto", out[0].PlatformName)
}

func TestActiveCampaigns(t *testing.T) {
	s, db := newDealsService(t)

	_, err := db.Exec(`INSERT INTO promotional_campaigns
		(name, platform_id, starts_at, ends_at, is_featured, is_active) VALUES
		('Dairy Days', 2, datetime('now', '-1 day'), datetime('now', '+2 day'), 0, 1),
		('Fruit Fest', 1, datetime('now', '-1 day'), datetime('now', '+1 day'), 1, 1),
		('Ended Sale', NULL, datetime('now', '-10 day'), datetime('now', '-1 day'), 1, 1),
		('Disabled', NULL, datetime('now', '-1 day'), datetime('now', '+1 day'), 1, 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO campaign_products (campaign_id, product_id) VALUES (2, 1), (2, 2), (1, 3)`)
	require.NoError(t, err)

	out, err := s.ActiveCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2, "expired and inactive campaigns are excluded")

	assert.Equal(t, "Fruit Fest", out[0].Name, "featured campaigns sort first")
	assert.True(t, out[0].IsFeatured)
	assert.Equal(t, 2, out[0].ProductCount)
	assert.Equal(t, "Blinkit", out[0].PlatformName)

	assert.Equal(t, "Dairy Days", out[1].Name)
	assert.Equal(t, 1, out[1].ProductCount)
}
