package suggest

import (
	"context"
	"fmt"
	"strings"
)

// SchemaContext is what a suggester gets to know about the schema: the
// tables judged relevant to the query and candidate join conditions.
type SchemaContext struct {
	Tables []string
	Joins  []string
}

// Suggester turns a natural-language query plus schema context into one
// candidate SQL statement. Implementations may call out to a model; the
// default is template-backed and fully local. Every candidate goes through
// ValidateCandidateSQL before execution, regardless of provider.
type Suggester interface {
	SuggestSQL(ctx context.Context, query string, schema SchemaContext) (string, error)
	Name() string
}

// TemplateSuggester composes a SELECT over the canonical price tables. It
// ignores most of the schema context on purpose: the product catalogue is
// small and the three-table join answers nearly every price question.
type TemplateSuggester struct{}

func NewTemplateSuggester() *TemplateSuggester { return &TemplateSuggester{} }

func (s *TemplateSuggester) Name() string { return "template" }

func (s *TemplateSuggester) SuggestSQL(_ context.Context, query string, _ SchemaContext) (string, error) {
	lower := strings.ToLower(query)

	var b strings.Builder
	b.WriteString("SELECT p.id AS product_id, p.name AS product_name, pl.name AS platform_name, ")
	b.WriteString("cp.price AS current_price, cp.original_price, cp.discount_percentage, ")
	b.WriteString("cp.is_available, cp.last_updated ")
	b.WriteString("FROM current_prices cp ")
	b.WriteString("JOIN products p ON cp.product_id = p.id ")
	b.WriteString("JOIN platforms pl ON cp.platform_id = pl.id ")
	b.WriteString("WHERE pl.is_active = 1 AND cp.is_available = 1")

	if token := ProductToken(query); token != "" {
		fmt.Fprintf(&b, " AND LOWER(p.name) LIKE '%%%s%%'", strings.ToLower(token))
	}

	switch {
	case strings.Contains(lower, "discount") || strings.Contains(lower, "deal") || strings.Contains(lower, "off"):
		b.WriteString(" AND cp.discount_percentage > 0 ORDER BY cp.discount_percentage DESC")
	case strings.Contains(lower, "expensive") || strings.Contains(lower, "highest"):
		b.WriteString(" ORDER BY cp.price DESC")
	default:
		b.WriteString(" ORDER BY cp.price ASC")
	}

	b.WriteString(" LIMIT 50")
	return b.String(), nil
}

// stopwords are skipped when extracting a product token from query text.
var stopwords = map[string]bool{
	"which": true, "what": true, "where": true, "show": true, "find": true,
	"the": true, "has": true, "have": true, "app": true, "apps": true,
	"cheapest": true, "cheap": true, "best": true, "price": true,
	"prices": true, "right": true, "now": true, "for": true, "with": true,
	"and": true, "between": true, "compare": true, "discount": true,
	"discounts": true, "deal": true, "deals": true, "on": true, "of": true,
	"in": true, "me": true, "a": true, "an": true, "is": true, "are": true,
	"products": true, "product": true, "items": true, "item": true,
	"today": true, "list": true, "grocery": true, "more": true, "most": true,
	"blinkit": true, "zepto": true, "instamart": true, "bigbasket": true,
}

// ProductToken extracts the most likely product word from a query. It
// returns the first non-stopword token of three or more letters, singular
// form preferred over a trailing s.
func ProductToken(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == ' ' {
			return r
		}
		return ' '
	}, query)

	for _, word := range strings.Fields(strings.ToLower(cleaned)) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
			return word[:len(word)-1]
		}
		return word
	}
	return ""
}
