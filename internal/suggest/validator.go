package suggest

import (
	"fmt"
	"strings"

	"github.com/pricelens/pricelens/internal/apierror"
)

// forbiddenTokens are rejected in natural-language query text. Anything on
// this list signals either an injection attempt or a raw SQL paste.
var forbiddenTokens = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE", "TRUNCATE",
	"EXEC", "GRANT", "REVOKE", "UNION",
	"--", "/*", ";", "OR 1=1",
}

// MaxQueryLength caps natural-language query text.
const MaxQueryLength = 500

// ValidateNaturalQuery checks user query text before any processing.
func ValidateNaturalQuery(query string) *apierror.Error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return apierror.Validation("query must not be empty",
			"ask something like: which app has cheapest onions right now")
	}
	if len(trimmed) > MaxQueryLength {
		return apierror.Validation(
			fmt.Sprintf("query exceeds %d characters", MaxQueryLength),
			"shorten the question to its essentials")
	}
	if len(trimmed) < 3 {
		return apierror.Validation("query is too short to interpret",
			"describe the product or deal you are looking for",
			"example: show products with 30% discount on Blinkit")
	}

	upper := strings.ToUpper(trimmed)
	for _, token := range forbiddenTokens {
		if strings.Contains(upper, token) {
			return apierror.Validation(
				fmt.Sprintf("query contains a forbidden token (%s)", token),
				"use plain language, not SQL")
		}
	}
	return nil
}

// ValidateCandidateSQL checks suggester output before execution. Only
// single SELECT statements survive; everything else is rejected and never
// executed.
func ValidateCandidateSQL(sqlText string) *apierror.Error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return apierror.InvalidQuery("candidate SQL is empty")
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return apierror.InvalidQuery("only SELECT statements may be executed")
	}

	// A trailing semicolon is tolerated; an interior one means stacking
	if idx := strings.Index(trimmed, ";"); idx >= 0 && idx != len(trimmed)-1 {
		return apierror.InvalidQuery("stacked statements are not allowed")
	}

	for _, token := range []string{
		"DROP ", "DELETE ", "UPDATE ", "INSERT ", "ALTER ", "CREATE ",
		"TRUNCATE ", "EXEC ", "GRANT ", "REVOKE ", "PRAGMA ", "ATTACH ",
		"--", "/*", "OR 1=1",
	} {
		if strings.Contains(upper, token) {
			return apierror.InvalidQuery(fmt.Sprintf("candidate SQL contains a forbidden token (%s)", strings.TrimSpace(token)))
		}
	}
	return nil
}
