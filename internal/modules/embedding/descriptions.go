package embedding

import (
	"fmt"
	"strings"

	"github.com/pricelens/pricelens/internal/modules/catalog"
)

// domainHints maps known tables to a short natural-language purpose line.
// These anchor the table vectors to the vocabulary users actually query with.
var domainHints = map[string]string{
	"current_prices":        "tracks real-time product prices across delivery platforms including discounts and stock status",
	"price_history":         "append-only journal of every price change with deltas and change direction",
	"products":              "grocery and household products sold on quick-commerce apps with category and pack size",
	"platforms":             "quick-commerce delivery platforms such as Blinkit Zepto Instamart BigBasket",
	"categories":            "product categories such as fruits vegetables dairy staples snacks",
	"brands":                "product brands",
	"discounts":             "time-bounded discount offers by platform category or product",
	"promotional_campaigns": "marketing campaigns with validity windows and featured deals",
	"campaign_products":     "products included in promotional campaigns with campaign prices",
}

// semanticBucket classifies a column into the coarse type vocabulary used
// in descriptions: text, number, monetary, boolean, temporal.
func semanticBucket(col catalog.Column) string {
	name := strings.ToLower(col.Name)
	switch {
	case strings.Contains(name, "price") || strings.Contains(name, "amount") ||
		strings.Contains(name, "cost") || strings.Contains(name, "savings"):
		return "monetary"
	case strings.HasSuffix(name, "_at") || strings.Contains(name, "date") ||
		strings.Contains(name, "time") || name == "last_updated":
		return "temporal"
	case strings.HasPrefix(name, "is_") || strings.HasPrefix(name, "has_"):
		return "boolean"
	}
	switch {
	case strings.Contains(col.Type, "INT") || strings.Contains(col.Type, "REAL") ||
		strings.Contains(col.Type, "NUMERIC") || strings.Contains(col.Type, "DECIMAL"):
		return "number"
	default:
		return "text"
	}
}

// TableDescription synthesises the natural-language description embedded
// for a table: name, purpose hint, column inventory by semantic bucket, and
// FK relationships.
func TableDescription(t *catalog.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %s", humanise(t.Name))

	if hint, ok := domainHints[t.Name]; ok {
		fmt.Fprintf(&b, ": %s", hint)
	}

	buckets := make(map[string][]string)
	for _, col := range t.Columns {
		bucket := semanticBucket(col)
		buckets[bucket] = append(buckets[bucket], humanise(col.Name))
	}
	for _, bucket := range []string{"monetary", "temporal", "boolean", "number", "text"} {
		if cols, ok := buckets[bucket]; ok {
			fmt.Fprintf(&b, ". %s columns: %s", bucket, strings.Join(cols, ", "))
		}
	}

	for _, fk := range t.ForeignKeys {
		fmt.Fprintf(&b, ". related to %s", humanise(fk.ToTable))
	}

	return b.String()
}

// ColumnDescription synthesises the description embedded for one column.
func ColumnDescription(t *catalog.Table, col catalog.Column) string {
	desc := fmt.Sprintf("column %s of table %s, a %s field",
		humanise(col.Name), humanise(t.Name), semanticBucket(col))
	if hint, ok := domainHints[t.Name]; ok {
		desc += ", " + hint
	}
	return desc
}

func humanise(identifier string) string {
	return strings.ReplaceAll(identifier, "_", " ")
}
