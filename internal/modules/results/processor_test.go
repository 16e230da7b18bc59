package results

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceRows(n int) []map[string]any {
	platforms := []string{"Blinkit", "Zepto", "Instamart", "BigBasket"}
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"product_id":          int64(i + 1),
			"product_name":        fmt.Sprintf("Product %03d", i+1),
			"platform_name":       platforms[i%len(platforms)],
			"current_price":       float64(10 + i),
			"original_price":      nil,
			"discount_percentage": nil,
			"is_available":        int64(1),
			"last_updated":        time.Now().Add(-time.Duration(i) * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func TestRequiredSampleSize(t *testing.T) {
	assert.Equal(t, 0, RequiredSampleSize(0))
	assert.Equal(t, 10, RequiredSampleSize(10)) // tiny populations need everything
	// Classic values for 95% confidence, 5% margin
	assert.InDelta(t, 278, RequiredSampleSize(1000), 3)
	assert.InDelta(t, 370, RequiredSampleSize(10000), 5)
	// Required size grows sublinearly and never exceeds ~385
	assert.LessOrEqual(t, RequiredSampleSize(1_000_000), 385)
}

func TestSampleNeverDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rows := priceRows(500)

	for _, method := range []SamplingMethod{SamplingRandom, SamplingSystematic, SamplingStratified, SamplingTopN} {
		sampled := Sample(rows, method, 50, "", rng)
		assert.LessOrEqual(t, len(sampled), 50, string(method))
		assert.NotEmpty(t, sampled, string(method))

		seen := make(map[any]bool)
		for _, row := range sampled {
			id := row["product_id"]
			assert.False(t, seen[id], "method %s duplicated row %v", method, id)
			seen[id] = true
		}
	}
	// Input not mutated
	assert.Len(t, rows, 500)
}

func TestSampleSmallInputPassesThrough(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rows := priceRows(5)
	sampled := Sample(rows, SamplingRandom, 50, "", rng)
	assert.Equal(t, rows, sampled)
}

func TestSampleCapsAtRequiredSize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rows := priceRows(1000)
	// Requesting more than the statistically required size caps at it
	sampled := Sample(rows, SamplingRandom, 900, "", rng)
	assert.Equal(t, RequiredSampleSize(1000), len(sampled))
}

func TestStratifiedSampleCoversStrata(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rows := priceRows(400)

	sampled := Sample(rows, SamplingStratified, 40, "platform_name", rng)
	strata := make(map[string]int)
	for _, row := range sampled {
		strata[row["platform_name"].(string)]++
	}
	assert.Len(t, strata, 4, "every platform stratum represented")
}

func TestPaginationInvariants(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	rows := priceRows(45)

	out := p.Process("test", rows, Options{Page: 2, PageSize: 20})
	pg := out.Metadata.Pagination
	assert.Equal(t, 45, pg.TotalCount)
	assert.Equal(t, 3, pg.TotalPages)
	assert.True(t, pg.HasNext)
	assert.True(t, pg.HasPrevious)
	assert.Equal(t, 20, pg.StartIndex)
	assert.Equal(t, 40, pg.EndIndex)
	assert.Len(t, out.Results.([]map[string]any), 20)
}

func TestPaginationPastEndIsEmptyNotError(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	rows := priceRows(10)

	out := p.Process("test", rows, Options{Page: 9, PageSize: 20})
	pg := out.Metadata.Pagination
	assert.Equal(t, 10, pg.TotalCount)
	assert.False(t, pg.HasNext)
	assert.Empty(t, out.Results.([]map[string]any))
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{Page: -3, PageSize: 5000}
	opts.Normalize()
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, MaxPageSize, opts.PageSize)
	assert.Equal(t, SamplingNone, opts.Sampling)
	assert.Equal(t, FormatRaw, opts.Format)
}

func TestStructuredFormatComputesSavings(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	rows := []map[string]any{{
		"product_id":    int64(1),
		"product_name":  "Banana",
		"platform_name": "Blinkit",
		"current_price": 28.0, "original_price": 35.0,
		"discount_percentage": 20.0,
		"is_available":        int64(1),
		"last_updated":        time.Now().UTC().Format(time.RFC3339),
	}}

	out := p.Process("test", rows, Options{Format: FormatStructured})
	items := out.Results.([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, 7.0, items[0]["savings"])
}

func TestSummaryFormat(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	out := p.Process("test", priceRows(10), Options{Format: FormatSummary})

	summary := out.Results.(map[string]any)
	assert.Equal(t, 10, summary["total_results"])
	assert.Equal(t, 10, summary["unique_products"])
	assert.Equal(t, 4, summary["unique_platforms"])
	assert.Equal(t, 10.0, summary["min_price"])
	assert.Equal(t, 19.0, summary["max_price"])
	assert.Equal(t, 14.5, summary["mean_price"])
}

func TestComparisonFormatOrdersByCheapest(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	rows := []map[string]any{
		{"product_name": "Banana", "platform_name": "Zepto", "current_price": 31.0, "is_available": int64(1)},
		{"product_name": "Banana", "platform_name": "Instamart", "current_price": 26.0, "is_available": int64(1)},
		{"product_name": "Banana", "platform_name": "Blinkit", "current_price": 28.0, "is_available": int64(1)},
	}

	out := p.Process("test", rows, Options{Format: FormatComparison})
	comp := out.Results.(map[string]any)
	products := comp["products"].([]map[string]any)
	require.Len(t, products, 1)
	assert.Equal(t, "Instamart", products[0]["cheapest"])
	assert.Equal(t, "Zepto", products[0]["most_expensive"])
	assert.Equal(t, 5.0, products[0]["price_range"])
}

func TestChartDataBuckets(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	rows := []map[string]any{
		{"product_name": "A", "platform_name": "Blinkit", "current_price": 25.0},
		{"product_name": "B", "platform_name": "Blinkit", "current_price": 75.0},
		{"product_name": "C", "platform_name": "Zepto", "current_price": 600.0},
	}

	out := p.Process("test", rows, Options{Format: FormatChartData})
	chart := out.Results.(map[string]any)
	distribution := chart["price_distribution"].([]map[string]any)
	require.Len(t, distribution, 5)
	assert.Equal(t, 1, distribution[0]["count"]) // 0-50
	assert.Equal(t, 1, distribution[1]["count"]) // 50-100
	assert.Equal(t, 1, distribution[4]["count"]) // 500+
}

func TestFreshnessAndQualityMetadata(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	out := p.Process("test", priceRows(5), Options{})

	require.NotNil(t, out.Metadata.Freshness)
	assert.GreaterOrEqual(t, out.Metadata.Freshness.OldestSeconds, out.Metadata.Freshness.NewestSeconds)

	require.NotNil(t, out.Metadata.Quality)
	assert.Equal(t, 100.0, out.Metadata.Quality.Completeness["product_name"])
	assert.Equal(t, 100.0, out.Metadata.Quality.AvailabilityRate)
}

func TestEmptyRowsProduceCleanMetadata(t *testing.T) {
	p := NewProcessor(nil, zerolog.Nop())
	out := p.Process("test", nil, Options{})

	assert.Equal(t, 0, out.Metadata.Pagination.TotalCount)
	assert.Equal(t, 0, out.Metadata.Pagination.TotalPages)
	assert.Nil(t, out.Metadata.Freshness)
	assert.Nil(t, out.Metadata.Quality)
}
