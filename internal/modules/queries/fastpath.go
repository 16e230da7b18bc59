package queries

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/suggest"
)

// FastPath is one keyword-matched canonical query.
type FastPath string

const (
	PathCheapestProduct    FastPath = "cheapest_product"
	PathDiscountSearch     FastPath = "discount_search"
	PathPlatformComparison FastPath = "platform_comparison"
	PathBudgetDeals        FastPath = "budget_deals"
)

// KnownPlatforms is the fixed marketplace set.
var KnownPlatforms = []string{"Blinkit", "Zepto", "Instamart", "BigBasket"}

var (
	discountPctRe = regexp.MustCompile(`(\d{1,3})\s*%`)
	budgetRe      = regexp.MustCompile(`(?:₹|rs\.?\s*|inr\s*)(\d+)`)
)

// MatchFastPath returns the fast path for the query, if any keyword set
// matches. Comparison wins over cheapest so "compare cheapest X" groups.
func MatchFastPath(query string) (FastPath, bool) {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "compare") || strings.Contains(lower, " vs ") || strings.Contains(lower, "versus"):
		return PathPlatformComparison, true
	case budgetRe.MatchString(lower) && (strings.Contains(lower, "budget") || strings.Contains(lower, "deal") || strings.Contains(lower, "list") || strings.Contains(lower, "under")):
		return PathBudgetDeals, true
	case strings.Contains(lower, "discount") || strings.Contains(lower, "% off") || strings.Contains(lower, "offer"):
		return PathDiscountSearch, true
	case strings.Contains(lower, "cheapest") || strings.Contains(lower, "cheap") || strings.Contains(lower, "lowest price"):
		return PathCheapestProduct, true
	}
	return "", false
}

// platformsIn extracts known platform names mentioned in the query.
func platformsIn(query string) []string {
	lower := strings.ToLower(query)
	var out []string
	for _, p := range KnownPlatforms {
		if strings.Contains(lower, strings.ToLower(p)) {
			out = append(out, p)
		}
	}
	return out
}

// minDiscountIn extracts a discount threshold like "30%+" or "30% off".
func minDiscountIn(query string) float64 {
	match := discountPctRe.FindStringSubmatch(query)
	if match == nil {
		return 0
	}
	pct, err := strconv.ParseFloat(match[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0
	}
	return pct
}

// budgetIn extracts a rupee budget like "₹1000".
func budgetIn(query string) float64 {
	match := budgetRe.FindStringSubmatch(strings.ToLower(query))
	if match == nil {
		return 0
	}
	amount, _ := strconv.ParseFloat(match[1], 64)
	return amount
}

const resultColumns = `p.id AS product_id, p.name AS product_name, pl.name AS platform_name,
	cp.price AS current_price, cp.original_price, cp.discount_percentage,
	cp.is_available, cp.last_updated`

// Inactive platforms never surface prices, so the join itself excludes them.
const resultJoins = `FROM current_prices cp
	JOIN products p ON cp.product_id = p.id
	JOIN platforms pl ON cp.platform_id = pl.id AND pl.is_active = 1`

// runCheapest returns available matches sorted by price ascending.
func (s *Service) runCheapest(ctx context.Context, query string) ([]map[string]any, []string, error) {
	token := suggest.ProductToken(query)

	sqlText := "SELECT " + resultColumns + " " + resultJoins + " WHERE cp.is_available = 1"
	var args []any
	if token != "" {
		sqlText += " AND LOWER(p.name) LIKE ?"
		args = append(args, "%"+strings.ToLower(token)+"%")
	}
	sqlText += " ORDER BY cp.price ASC LIMIT 20"

	rows, err := s.queryMaps(ctx, sqlText, args...)
	if err != nil {
		return nil, nil, err
	}
	return rows, baseTables, nil
}

// runDiscounts returns discounted items, optionally filtered by platform
// and minimum discount, sorted by discount descending.
func (s *Service) runDiscounts(ctx context.Context, query string) ([]map[string]any, []string, error) {
	sqlText := "SELECT " + resultColumns + " " + resultJoins +
		" WHERE cp.is_available = 1 AND cp.discount_percentage IS NOT NULL AND cp.discount_percentage > 0"
	var args []any

	if minPct := minDiscountIn(query); minPct > 0 {
		sqlText += " AND cp.discount_percentage >= ?"
		args = append(args, minPct)
	}
	if platforms := platformsIn(query); len(platforms) > 0 {
		sqlText += " AND pl.name IN (" + placeholders(len(platforms)) + ")"
		for _, p := range platforms {
			args = append(args, p)
		}
	}
	sqlText += " ORDER BY cp.discount_percentage DESC LIMIT 50"

	rows, err := s.queryMaps(ctx, sqlText, args...)
	if err != nil {
		return nil, nil, err
	}
	return rows, baseTables, nil
}

// runComparison returns rows for the mentioned platforms (all platforms if
// none named), products present on more platforms first, then by name and
// price.
func (s *Service) runComparison(ctx context.Context, query string) ([]map[string]any, []string, error) {
	platforms := platformsIn(query)
	if len(platforms) == 0 {
		platforms = KnownPlatforms
	}

	token := suggest.ProductToken(query)
	sqlText := "SELECT " + resultColumns + ", " +
		"COUNT(*) OVER (PARTITION BY p.id) AS platform_count " +
		resultJoins +
		" WHERE cp.is_available = 1 AND pl.name IN (" + placeholders(len(platforms)) + ")"
	var args []any
	for _, p := range platforms {
		args = append(args, p)
	}
	if token != "" {
		sqlText += " AND (LOWER(p.name) LIKE ? OR LOWER(p.name) LIKE ?)"
		args = append(args, "%"+strings.ToLower(token)+"%", "%"+categoryHint(query)+"%")
	}
	sqlText += " ORDER BY platform_count DESC, p.name ASC, cp.price ASC LIMIT 50"

	rows, err := s.queryMaps(ctx, sqlText, args...)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		delete(row, "platform_count")
	}
	return rows, baseTables, nil
}

// categoryHint maps broad words like "fruit" to a name fragment usable in
// a LIKE filter.
func categoryHint(query string) string {
	lower := strings.ToLower(query)
	for _, hint := range []string{"fruit", "vegetable", "dairy", "snack", "beverage", "staple"} {
		if strings.Contains(lower, hint) {
			return hint
		}
	}
	return strings.ToLower(suggest.ProductToken(query))
}

// runBudget builds a greedy basket: cheapest-first across categories, at
// most 3 items per category and 20 overall, total within the budget.
func (s *Service) runBudget(ctx context.Context, query string) ([]map[string]any, []string, error) {
	budget := budgetIn(query)
	if budget <= 0 {
		budget = 1000
	}

	sqlText := "SELECT " + resultColumns + ", p.category_id " + resultJoins +
		" WHERE cp.is_available = 1 AND cp.price <= ? ORDER BY cp.discount_percentage DESC, cp.price ASC LIMIT 200"
	candidates, err := s.queryMaps(ctx, sqlText, budget)
	if err != nil {
		return nil, nil, err
	}

	const (
		maxItems       = 20
		maxPerCategory = 3
	)
	perCategory := make(map[string]int)
	seenProducts := make(map[string]bool)
	total := 0.0
	var basket []map[string]any

	for _, row := range candidates {
		if len(basket) >= maxItems {
			break
		}
		price, ok := toFloat(row["current_price"])
		if !ok || total+price > budget {
			continue
		}
		category := fmt.Sprint(row["category_id"])
		if perCategory[category] >= maxPerCategory {
			continue
		}
		product := fmt.Sprint(row["product_id"])
		if seenProducts[product] {
			continue
		}

		delete(row, "category_id")
		basket = append(basket, row)
		seenProducts[product] = true
		perCategory[category]++
		total += price
	}

	return basket, append(baseTables, "categories"), nil
}

var baseTables = []string{"products", "current_prices", "platforms"}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *Service) queryMaps(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return database.RowsToMaps(rows)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
