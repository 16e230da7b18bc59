// Package results post-processes executor row sets: sampling, pagination,
// output shaping, freshness and quality metadata, and response caching.
package results

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/pricelens/pricelens/internal/cache"
)

// Processor shapes raw row sets for the HTTP surface.
type Processor struct {
	cache *cache.Manager
	rng   *rand.Rand
	log   zerolog.Logger
}

func NewProcessor(cacheMgr *cache.Manager, log zerolog.Logger) *Processor {
	return &Processor{
		cache: cacheMgr,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		log:   log.With().Str("component", "results").Logger(),
	}
}

// Process runs the full pipeline on rows. The query string participates
// only in the cache key.
func (p *Processor) Process(query string, rows []map[string]any, opts Options) *Processed {
	start := time.Now()
	opts.Normalize()

	cacheKey := p.cacheKey(query, opts)
	if p.cache != nil {
		var cached Processed
		if p.cache.GetQueryResult(cacheKey, &cached) {
			now := time.Now()
			cached.Metadata.CachedAt = &now
			return &cached
		}
	}

	sampled := rows
	wasSampled := false
	if opts.Sampling != SamplingNone && opts.SampleSize > 0 && len(rows) > opts.SampleSize {
		sampled = Sample(rows, opts.Sampling, opts.SampleSize, opts.StratifyBy, p.rng)
		wasSampled = true
	}

	page, pagination := paginate(sampled, opts.Page, opts.PageSize)

	out := &Processed{
		Results: p.format(page, opts.Format),
		Metadata: Metadata{
			Sampled:    wasSampled,
			Pagination: pagination,
			Freshness:  freshness(page),
			Quality:    quality(page),
			Format:     opts.Format,
		},
	}
	if wasSampled {
		out.Metadata.SamplingMethod = opts.Sampling
		out.Metadata.SampleSize = len(sampled)
	}
	out.Metadata.ProcessingTime = time.Since(start).Seconds()

	if p.cache != nil {
		p.cache.CacheQueryResult(cacheKey, out, 0, []string{"current_prices", "products", "platforms"})
	}
	return out
}

func (p *Processor) cacheKey(query string, opts Options) string {
	return cache.HashKey("result",
		query,
		strconv.Itoa(opts.Page), strconv.Itoa(opts.PageSize),
		string(opts.Sampling), strconv.Itoa(opts.SampleSize), opts.StratifyBy,
		string(opts.Format))
}

func paginate(rows []map[string]any, page, pageSize int) ([]map[string]any, Pagination) {
	total := len(rows)
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	var window []map[string]any
	if start < total {
		if end > total {
			end = total
		}
		window = rows[start:end]
	} else {
		start, end = total, total
	}

	return window, Pagination{
		Page:        page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
		StartIndex:  start,
		EndIndex:    end,
	}
}

func (p *Processor) format(rows []map[string]any, format Format) any {
	switch format {
	case FormatStructured:
		return structured(rows)
	case FormatSummary:
		return summarise(rows)
	case FormatComparison:
		return comparison(rows)
	case FormatChartData:
		return chartData(rows)
	default:
		return rows
	}
}

// structured maps rows onto the canonical result fields and computes
// savings where an original price is present.
func structured(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		item := map[string]any{
			"product_id":          row["product_id"],
			"product_name":        row["product_name"],
			"platform_name":       row["platform_name"],
			"current_price":       row["current_price"],
			"original_price":      row["original_price"],
			"discount_percentage": row["discount_percentage"],
			"is_available":        row["is_available"],
			"last_updated":        row["last_updated"],
		}
		price, okP := toFloat(row["current_price"])
		original, okO := toFloat(row["original_price"])
		if okP && okO && original > price {
			item["savings"] = math.Round((original-price)*100) / 100
		}
		out = append(out, item)
	}
	return out
}

func summarise(rows []map[string]any) map[string]any {
	var prices []float64
	products := make(map[string]bool)
	platforms := make(map[string]bool)
	for _, row := range rows {
		if price, ok := toFloat(row["current_price"]); ok {
			prices = append(prices, price)
		}
		if name := toString(row["product_name"]); name != "" {
			products[name] = true
		}
		if name := toString(row["platform_name"]); name != "" {
			platforms[name] = true
		}
	}

	summary := map[string]any{
		"total_results":    len(rows),
		"unique_products":  len(products),
		"unique_platforms": len(platforms),
		"platforms":        sortedKeys(platforms),
	}
	if len(prices) > 0 {
		sort.Float64s(prices)
		summary["min_price"] = prices[0]
		summary["max_price"] = prices[len(prices)-1]
		summary["mean_price"] = math.Round(stat.Mean(prices, nil)*100) / 100
		summary["median_price"] = stat.Quantile(0.5, stat.Empirical, prices, nil)
	}
	return summary
}

// comparison groups rows by product with platforms sorted by price.
func comparison(rows []map[string]any) map[string]any {
	type entry struct {
		platform string
		price    float64
		row      map[string]any
	}
	groups := make(map[string][]entry)
	var order []string
	for _, row := range rows {
		name := toString(row["product_name"])
		price, ok := toFloat(row["current_price"])
		if name == "" || !ok {
			continue
		}
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], entry{toString(row["platform_name"]), price, row})
	}

	products := make([]map[string]any, 0, len(order))
	for _, name := range order {
		entries := groups[name]
		sort.Slice(entries, func(i, j int) bool { return entries[i].price < entries[j].price })

		platforms := make([]map[string]any, 0, len(entries))
		var prices []float64
		for _, e := range entries {
			platforms = append(platforms, map[string]any{
				"platform_name": e.platform,
				"price":         e.price,
				"is_available":  e.row["is_available"],
			})
			prices = append(prices, e.price)
		}

		products = append(products, map[string]any{
			"product_name":   name,
			"platforms":      platforms,
			"cheapest":       entries[0].platform,
			"most_expensive": entries[len(entries)-1].platform,
			"price_range":    math.Round((prices[len(prices)-1]-prices[0])*100) / 100,
			"avg_price":      math.Round(stat.Mean(prices, nil)*100) / 100,
		})
	}

	// Products available on more platforms first
	sort.SliceStable(products, func(i, j int) bool {
		return len(products[i]["platforms"].([]map[string]any)) > len(products[j]["platforms"].([]map[string]any))
	})

	return map[string]any{"products": products, "total_products": len(products)}
}

// chartData buckets prices into distribution bands and aggregates per
// platform.
func chartData(rows []map[string]any) map[string]any {
	buckets := []struct {
		label string
		lo    float64
		hi    float64
	}{
		{"0-50", 0, 50},
		{"50-100", 50, 100},
		{"100-200", 100, 200},
		{"200-500", 200, 500},
		{"500+", 500, math.Inf(1)},
	}
	distribution := make([]map[string]any, len(buckets))
	counts := make([]int, len(buckets))

	platformPrices := make(map[string][]float64)
	for _, row := range rows {
		price, ok := toFloat(row["current_price"])
		if !ok {
			continue
		}
		for i, b := range buckets {
			if price >= b.lo && price < b.hi {
				counts[i]++
				break
			}
		}
		if platform := toString(row["platform_name"]); platform != "" {
			platformPrices[platform] = append(platformPrices[platform], price)
		}
	}

	for i, b := range buckets {
		distribution[i] = map[string]any{"range": b.label, "count": counts[i]}
	}

	platforms := make([]map[string]any, 0, len(platformPrices))
	for _, name := range sortedKeys(boolKeys(platformPrices)) {
		prices := platformPrices[name]
		platforms = append(platforms, map[string]any{
			"platform_name": name,
			"count":         len(prices),
			"avg_price":     math.Round(stat.Mean(prices, nil)*100) / 100,
		})
	}

	return map[string]any{
		"price_distribution": distribution,
		"platforms":          platforms,
	}
}

func freshness(rows []map[string]any) *Freshness {
	now := time.Now()
	var ages []float64
	for _, row := range rows {
		raw := toString(row["last_updated"])
		if raw == "" {
			continue
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			continue
		}
		ages = append(ages, now.Sub(ts).Seconds())
	}
	if len(ages) == 0 {
		return nil
	}
	sort.Float64s(ages)
	return &Freshness{
		OldestSeconds:  ages[len(ages)-1],
		NewestSeconds:  ages[0],
		AverageSeconds: stat.Mean(ages, nil),
	}
}

func quality(rows []map[string]any) *Quality {
	if len(rows) == 0 {
		return nil
	}

	fields := []string{"product_name", "platform_name", "current_price", "last_updated"}
	completeness := make(map[string]float64, len(fields))
	for _, field := range fields {
		present := 0
		for _, row := range rows {
			if v, ok := row[field]; ok && v != nil && toString(v) != "" {
				present++
			}
		}
		completeness[field] = math.Round(float64(present)/float64(len(rows))*10000) / 100
	}

	available := 0
	counted := 0
	for _, row := range rows {
		if avail, ok := toBool(row["is_available"]); ok {
			counted++
			if avail {
				available++
			}
		}
	}
	rate := 0.0
	if counted > 0 {
		rate = math.Round(float64(available)/float64(counted)*10000) / 100
	}

	return &Quality{Completeness: completeness, AvailabilityRate: rate}
}

// parseTimestamp accepts RFC3339 and the SQLite datetime() shape.
func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02 15:04:05", raw)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolKeys(m map[string][]float64) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
