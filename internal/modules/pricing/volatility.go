package pricing

import (
	"strings"
	"time"
)

// Volatility sigma by product category, inferred from name keywords.
// Perishables move a lot, staples barely move.
var volatilityKeywords = []struct {
	keywords []string
	sigma    float64
}{
	{[]string{"tomato", "onion", "potato", "spinach", "coriander", "chilli", "capsicum", "cucumber", "carrot", "cauliflower", "vegetable"}, 0.8},
	{[]string{"banana", "apple", "mango", "orange", "grape", "pomegranate", "fruit"}, 0.7},
	{[]string{"milk", "curd", "paneer", "butter", "cheese", "egg", "bread"}, 0.4},
	{[]string{"chips", "biscuit", "chocolate", "juice", "cola", "namkeen", "snack"}, 0.3},
	{[]string{"rice", "atta", "wheat", "dal", "sugar", "salt", "oil", "ghee", "flour"}, 0.1},
}

const defaultSigma = 0.25

// sigmaFor returns the volatility for a product name.
func sigmaFor(productName string) float64 {
	lower := strings.ToLower(productName)
	for _, group := range volatilityKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.sigma
			}
		}
	}
	return defaultSigma
}

// timeOfDayBias returns the additive bias range (lo, hi) as fractions for
// the given hour. Peak ordering windows push prices up, late night pulls
// them down.
func timeOfDayBias(t time.Time) (lo, hi float64) {
	hour := t.Hour()
	switch {
	case hour >= 7 && hour < 9, hour >= 18 && hour < 20:
		return 0, 0.02
	case hour >= 23 || hour < 6:
		return -0.01, 0
	default:
		return 0, 0
	}
}
