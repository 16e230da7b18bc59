package products

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/apierror"
	"github.com/pricelens/pricelens/internal/database"
)

// PlatformPrice is one platform's offer inside a comparison.
type PlatformPrice struct {
	PlatformName       string   `json:"platform_name"`
	Price              float64  `json:"price"`
	OriginalPrice      *float64 `json:"original_price,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
	IsAvailable        bool     `json:"is_available"`
	LastUpdated        string   `json:"last_updated"`
}

// ProductComparison groups one product's prices across platforms,
// cheapest first.
type ProductComparison struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	PackSize    string          `json:"pack_size,omitempty"`
	Platforms   []PlatformPrice `json:"platforms"`
	Cheapest    string          `json:"cheapest_platform"`
	BestPrice   float64         `json:"best_price"`
	MaxSavings  float64         `json:"max_savings"`
}

// ComparisonResult is the compare endpoint payload.
type ComparisonResult struct {
	ProductName string              `json:"product_name"`
	Products    []ProductComparison `json:"products"`
	Total       int                 `json:"total"`
}

// ComparisonService answers cross-platform price comparisons.
type ComparisonService struct {
	db  *database.DB
	log zerolog.Logger
}

func NewComparisonService(db *database.DB, log zerolog.Logger) *ComparisonService {
	return &ComparisonService{db: db, log: log.With().Str("component", "comparison").Logger()}
}

// Compare finds products matching name and groups their prices per
// platform. An empty platforms filter means all platforms.
func (s *ComparisonService) Compare(ctx context.Context, name string, platforms []string, category string) (*ComparisonResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apierror.Validation("product_name is required")
	}

	sqlText := `
		SELECT p.id, p.name, COALESCE(p.pack_size, ''), pl.name,
		       cp.price, cp.original_price, cp.discount_percentage,
		       cp.is_available, cp.last_updated
		FROM current_prices cp
		JOIN products p ON cp.product_id = p.id
		JOIN platforms pl ON cp.platform_id = pl.id
		WHERE pl.is_active = 1 AND LOWER(p.name) LIKE ?`
	args := []any{"%" + strings.ToLower(strings.TrimSpace(name)) + "%"}

	if len(platforms) > 0 {
		sqlText += " AND pl.name IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(platforms)), ", ") + ")"
		for _, p := range platforms {
			args = append(args, p)
		}
	}
	if category != "" {
		sqlText += " AND p.category_id IN (SELECT id FROM categories WHERE LOWER(name) LIKE ?)"
		args = append(args, "%"+strings.ToLower(category)+"%")
	}
	sqlText += " ORDER BY p.name, cp.price ASC"

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, apierror.Database("comparison query failed", err)
	}
	defer rows.Close()

	grouped := make(map[int64]*ProductComparison)
	var order []int64
	for rows.Next() {
		var (
			productID          int64
			productName, pack  string
			platformName       string
			price              float64
			originalPrice      sql.NullFloat64
			discountPercentage sql.NullFloat64
			isAvailable        bool
			lastUpdated        string
		)
		if err := rows.Scan(&productID, &productName, &pack, &platformName,
			&price, &originalPrice, &discountPercentage, &isAvailable, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan comparison row: %w", err)
		}

		entry, ok := grouped[productID]
		if !ok {
			entry = &ProductComparison{ProductID: productID, ProductName: productName, PackSize: pack}
			grouped[productID] = entry
			order = append(order, productID)
		}
		entry.Platforms = append(entry.Platforms, PlatformPrice{
			PlatformName:       platformName,
			Price:              price,
			OriginalPrice:      nullableFloat(originalPrice),
			DiscountPercentage: nullableFloat(discountPercentage),
			IsAvailable:        isAvailable,
			LastUpdated:        lastUpdated,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("comparison row iteration failed: %w", err)
	}

	if len(order) == 0 {
		return nil, apierror.ProductNotFound(name)
	}

	result := &ComparisonResult{ProductName: name, Total: len(order)}
	for _, id := range order {
		entry := grouped[id]
		// Rows arrive price-ascending per product
		entry.Cheapest = entry.Platforms[0].PlatformName
		entry.BestPrice = entry.Platforms[0].Price
		worst := entry.Platforms[len(entry.Platforms)-1].Price
		entry.MaxSavings = math.Round((worst-entry.BestPrice)*100) / 100
		result.Products = append(result.Products, *entry)
	}
	return result, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
