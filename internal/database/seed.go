package database

import (
	"database/sql"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"
)

// seedPlatforms is the known set of quick-commerce platforms.
var seedPlatforms = []struct {
	Name    string
	Display string
}{
	{"Blinkit", "Blinkit"},
	{"Zepto", "Zepto"},
	{"Instamart", "Swiggy Instamart"},
	{"BigBasket", "BigBasket Now"},
}

var seedCategories = []string{
	"Fruits", "Vegetables", "Dairy", "Staples", "Snacks", "Beverages", "Bakery", "Household",
}

// seedProducts: name, category, pack size, base price.
var seedProducts = []struct {
	Name     string
	Category string
	Pack     string
	Base     float64
}{
	{"Onion", "Vegetables", "1 kg", 38},
	{"Tomato", "Vegetables", "1 kg", 42},
	{"Potato", "Vegetables", "1 kg", 30},
	{"Carrot", "Vegetables", "500 g", 35},
	{"Spinach", "Vegetables", "250 g", 25},
	{"Capsicum", "Vegetables", "500 g", 48},
	{"Banana", "Fruits", "6 pcs", 45},
	{"Apple Shimla", "Fruits", "1 kg", 160},
	{"Mango Alphonso", "Fruits", "1 kg", 320},
	{"Orange", "Fruits", "1 kg", 90},
	{"Grapes Green", "Fruits", "500 g", 75},
	{"Pomegranate", "Fruits", "1 kg", 180},
	{"Milk Toned", "Dairy", "500 ml", 28},
	{"Curd", "Dairy", "400 g", 35},
	{"Paneer", "Dairy", "200 g", 85},
	{"Butter", "Dairy", "100 g", 58},
	{"Cheese Slices", "Dairy", "200 g", 125},
	{"Basmati Rice", "Staples", "5 kg", 520},
	{"Wheat Flour", "Staples", "5 kg", 240},
	{"Toor Dal", "Staples", "1 kg", 165},
	{"Sunflower Oil", "Staples", "1 L", 140},
	{"Sugar", "Staples", "1 kg", 45},
	{"Salt Iodised", "Staples", "1 kg", 25},
	{"Potato Chips", "Snacks", "90 g", 30},
	{"Salted Peanuts", "Snacks", "200 g", 55},
	{"Dark Chocolate", "Snacks", "100 g", 110},
	{"Instant Noodles", "Snacks", "280 g", 56},
	{"Cola", "Beverages", "750 ml", 40},
	{"Mango Juice", "Beverages", "1 L", 110},
	{"Green Tea", "Beverages", "25 bags", 145},
	{"Brown Bread", "Bakery", "400 g", 45},
	{"Eggs", "Bakery", "12 pcs", 84},
	{"Dish Soap", "Household", "500 ml", 99},
	{"Detergent", "Household", "1 kg", 180},
}

// Seed populates the catalogue with platforms, categories, and a demo
// product set when the database is empty. Prices are randomised around each
// product's base price per platform; the update engine takes over from there.
func Seed(db *DB, log zerolog.Logger) error {
	var productCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&productCount); err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if productCount > 0 {
		return nil
	}

	log.Info().Msg("Empty catalogue detected, seeding demo data")

	return WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		platformIDs := make(map[string]int64)
		for _, p := range seedPlatforms {
			res, err := tx.Exec(
				"INSERT INTO platforms (name, display_name, is_active) VALUES (?, ?, 1)",
				p.Name, p.Display,
			)
			if err != nil {
				return fmt.Errorf("failed to seed platform %s: %w", p.Name, err)
			}
			id, _ := res.LastInsertId()
			platformIDs[p.Name] = id
		}

		categoryIDs := make(map[string]int64)
		for _, c := range seedCategories {
			res, err := tx.Exec(
				"INSERT INTO categories (name, slug, is_active) VALUES (?, ?, 1)",
				c, slugify(c),
			)
			if err != nil {
				return fmt.Errorf("failed to seed category %s: %w", c, err)
			}
			id, _ := res.LastInsertId()
			categoryIDs[c] = id
		}

		res, err := tx.Exec("INSERT INTO brands (name, is_active) VALUES ('Fresh Local', 1)")
		if err != nil {
			return fmt.Errorf("failed to seed brand: %w", err)
		}
		brandID, _ := res.LastInsertId()

		rng := rand.New(rand.NewSource(42)) // deterministic demo catalogue

		for _, prod := range seedProducts {
			res, err := tx.Exec(
				"INSERT INTO products (name, slug, category_id, brand_id, pack_size, is_active) VALUES (?, ?, ?, ?, ?, 1)",
				prod.Name, slugify(prod.Name), categoryIDs[prod.Category], brandID, prod.Pack,
			)
			if err != nil {
				return fmt.Errorf("failed to seed product %s: %w", prod.Name, err)
			}
			productID, _ := res.LastInsertId()

			for _, p := range seedPlatforms {
				// Each platform prices within +/-10% of the base
				price := prod.Base * (0.9 + rng.Float64()*0.2)
				if price < 5 {
					price = 5
				}
				_, err := tx.Exec(
					`INSERT INTO current_prices (product_id, platform_id, price, is_available, stock_status)
					 VALUES (?, ?, ?, 1, 'in_stock')`,
					productID, platformIDs[p.Name], round2(price),
				)
				if err != nil {
					return fmt.Errorf("failed to seed price for %s on %s: %w", prod.Name, p.Name, err)
				}
			}
		}

		return nil
	})
}

func slugify(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
