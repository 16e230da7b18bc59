// Package planner builds cost-estimated execution plans over the schema's
// foreign-key join graph. Edges are weighted by estimated join cost
// (|L| x |R| / 1e6, reduced 0.3x per indexed join column); the join order is
// a minimum spanning tree walked greedily from the smallest table.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/cache"
	"github.com/pricelens/pricelens/internal/modules/catalog"
)

// Complexity buckets an execution plan's difficulty.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// indexCostFactor is the multiplicative cost reduction applied when the join
// column on the probed side is indexed.
const indexCostFactor = 0.3

// Join is one edge of the chosen join path.
type Join struct {
	FromTable  string  `json:"from_table" msgpack:"from_table"`
	ToTable    string  `json:"to_table" msgpack:"to_table"`
	Condition  string  `json:"condition" msgpack:"condition"`
	JoinType   string  `json:"join_type" msgpack:"join_type"`
	Cost       float64 `json:"cost" msgpack:"cost"`
	Confidence float64 `json:"confidence" msgpack:"confidence"`
}

// ExecutionPlan is the planner's output for one query.
type ExecutionPlan struct {
	Tables                  []string   `json:"tables" msgpack:"tables"`
	JoinOrder               []string   `json:"join_order" msgpack:"join_order"`
	JoinPaths               []Join     `json:"join_paths" msgpack:"join_paths"`
	EstimatedCost           float64    `json:"estimated_cost" msgpack:"estimated_cost"`
	ComplexityScore         int        `json:"complexity_score" msgpack:"complexity_score"`
	Complexity              Complexity `json:"complexity" msgpack:"complexity"`
	OptimizationSuggestions []string   `json:"optimization_suggestions" msgpack:"optimization_suggestions"`
	IndexRecommendations    []string   `json:"index_recommendations" msgpack:"index_recommendations"`
	EstimatedTimeSeconds    float64    `json:"estimated_time_seconds" msgpack:"estimated_time_seconds"`
}

// Planner computes and caches execution plans.
type Planner struct {
	catalog *catalog.Catalog
	cache   *cache.Manager
	log     zerolog.Logger
}

// New creates a query planner.
func New(cat *catalog.Catalog, cacheMgr *cache.Manager, log zerolog.Logger) *Planner {
	return &Planner{
		catalog: cat,
		cache:   cacheMgr,
		log:     log.With().Str("component", "planner").Logger(),
	}
}

// Plan computes an execution plan for the query over the relevant tables.
// Plans are cached for 30 minutes keyed by (query, sorted tables, context).
func (p *Planner) Plan(query string, relevantTables []string, queryContext string) (*ExecutionPlan, error) {
	if len(relevantTables) == 0 {
		return nil, fmt.Errorf("no relevant tables to plan over")
	}

	tables := dedupeSorted(relevantTables)
	cacheKey := cache.HashKey(append([]string{"plan", query, queryContext}, tables...)...)

	var cached ExecutionPlan
	if p.cache != nil && p.cache.GetExecutionPlan(cacheKey, &cached) {
		return &cached, nil
	}

	// Unknown tables cannot be planned
	for _, t := range tables {
		if !p.catalog.Has(t) {
			return nil, fmt.Errorf("unknown table %q", t)
		}
	}

	edges := p.buildEdges(tables)
	plan := &ExecutionPlan{Tables: tables}

	// Disconnected table sets are planned per component, in component order
	for _, component := range connectedComponents(tables, edges) {
		componentEdges := filterEdges(edges, component)
		mst := minimumSpanningTree(component, componentEdges)

		order := p.greedyJoinOrder(component, mst)
		plan.JoinOrder = append(plan.JoinOrder, order...)

		for _, e := range orientEdges(mst, order) {
			plan.JoinPaths = append(plan.JoinPaths, Join{
				FromTable:  e.From,
				ToTable:    e.To,
				Condition:  fmt.Sprintf("%s.%s = %s.%s", e.From, e.FromColumn, e.To, e.ToColumn),
				JoinType:   "INNER",
				Cost:       e.Cost,
				Confidence: e.Confidence,
			})
			plan.EstimatedCost += e.Cost
		}
	}

	plan.ComplexityScore = p.complexityScore(tables, plan.JoinPaths)
	plan.Complexity = complexityLevel(plan.ComplexityScore)
	plan.OptimizationSuggestions = p.suggestions(tables, plan)
	plan.IndexRecommendations = p.indexRecommendations(tables)
	plan.EstimatedTimeSeconds = estimateTime(plan.EstimatedCost, plan.Complexity)

	if p.cache != nil {
		p.cache.CacheExecutionPlan(cacheKey, plan, tables)
	}

	p.log.Debug().
		Strs("tables", tables).
		Str("complexity", string(plan.Complexity)).
		Float64("cost", plan.EstimatedCost).
		Msg("Execution plan computed")
	return plan, nil
}

// buildEdges derives join-graph edges from FK metadata, falling back to
// common column names, and as a last resort to id = id with confidence 0.5.
func (p *Planner) buildEdges(tables []string) []edge {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	var edges []edge
	linked := make(map[string]bool)
	pairKey := func(a, b string) string {
		if a > b {
			a, b = b, a
		}
		return a + "|" + b
	}

	for _, from := range tables {
		fks, _ := p.catalog.ForeignKeys(from)
		for _, fk := range fks {
			if !inSet[fk.ToTable] || len(fk.FromColumns) == 0 {
				continue
			}
			edges = append(edges, edge{
				From:       from,
				To:         fk.ToTable,
				FromColumn: fk.FromColumns[0],
				ToColumn:   fk.ToColumns[0],
				Cost:       p.joinCost(from, fk.ToTable, fk.FromColumns[0], fk.ToColumns[0]),
				Confidence: 1.0,
			})
			linked[pairKey(from, fk.ToTable)] = true
		}
	}

	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			a, b := tables[i], tables[j]
			if linked[pairKey(a, b)] {
				continue
			}
			if col, ok := sharedColumn(p.catalog, a, b); ok {
				edges = append(edges, edge{
					From: a, To: b,
					FromColumn: col, ToColumn: col,
					Cost:       p.joinCost(a, b, col, col),
					Confidence: 0.7,
				})
			} else {
				// Last resort keeps the graph connected so a plan always exists
				edges = append(edges, edge{
					From: a, To: b,
					FromColumn: "id", ToColumn: "id",
					Cost:       p.joinCost(a, b, "id", "id"),
					Confidence: 0.5,
				})
			}
		}
	}

	return edges
}

// joinCost is (|L| x |R|) / 1e6, reduced when the probed column is indexed.
func (p *Planner) joinCost(left, right, leftCol, rightCol string) float64 {
	lt, _ := p.catalog.Table(left)
	rt, _ := p.catalog.Table(right)
	lRows, rRows := int64(1), int64(1)
	if lt != nil && lt.EstimatedRows > 0 {
		lRows = lt.EstimatedRows
	}
	if rt != nil && rt.EstimatedRows > 0 {
		rRows = rt.EstimatedRows
	}

	cost := float64(lRows) * float64(rRows) / 1e6
	if lt != nil && lt.HasIndexOn(leftCol) {
		cost *= indexCostFactor
	}
	if rt != nil && rt.HasIndexOn(rightCol) {
		cost *= indexCostFactor
	}
	return cost
}

// greedyJoinOrder starts at the smallest table by estimated rows and keeps
// appending the unjoined table with the cheapest edge into the joined set.
func (p *Planner) greedyJoinOrder(tables []string, mst []edge) []string {
	if len(tables) == 0 {
		return nil
	}

	start := tables[0]
	startRows := p.estimatedRows(start)
	for _, t := range tables[1:] {
		if rows := p.estimatedRows(t); rows < startRows {
			start, startRows = t, rows
		}
	}

	order := []string{start}
	joined := map[string]bool{start: true}

	for len(order) < len(tables) {
		bestTable := ""
		bestCost := 0.0
		for _, e := range mst {
			var candidate string
			switch {
			case joined[e.From] && !joined[e.To]:
				candidate = e.To
			case joined[e.To] && !joined[e.From]:
				candidate = e.From
			default:
				continue
			}
			if bestTable == "" || e.Cost < bestCost {
				bestTable, bestCost = candidate, e.Cost
			}
		}
		if bestTable == "" {
			// No MST edge reaches the remainder; append what is left by size
			for _, t := range tables {
				if !joined[t] {
					bestTable = t
					break
				}
			}
		}
		joined[bestTable] = true
		order = append(order, bestTable)
	}

	return order
}

func (p *Planner) estimatedRows(table string) int64 {
	if t, ok := p.catalog.Table(table); ok {
		return t.EstimatedRows
	}
	return 0
}

// complexityScore is a bounded sum of bucketed table count, join count, and
// estimated total rows.
func (p *Planner) complexityScore(tables []string, joins []Join) int {
	score := 0

	switch n := len(tables); {
	case n <= 1:
		score += 1
	case n <= 3:
		score += 2
	case n <= 5:
		score += 4
	default:
		score += 6
	}

	switch n := len(joins); {
	case n == 0:
	case n <= 2:
		score += 2
	case n <= 4:
		score += 3
	default:
		score += 5
	}

	var totalRows int64
	for _, t := range tables {
		totalRows += p.estimatedRows(t)
	}
	switch {
	case totalRows <= 1_000:
	case totalRows <= 100_000:
		score += 1
	case totalRows <= 1_000_000:
		score += 2
	default:
		score += 4
	}

	if score > 15 {
		score = 15
	}
	return score
}

func complexityLevel(score int) Complexity {
	switch {
	case score <= 3:
		return ComplexitySimple
	case score <= 6:
		return ComplexityModerate
	case score <= 9:
		return ComplexityComplex
	default:
		return ComplexityVeryComplex
	}
}

func estimateTime(cost float64, complexity Complexity) float64 {
	base := 0.005 + cost*0.01
	switch complexity {
	case ComplexityComplex:
		base *= 2
	case ComplexityVeryComplex:
		base *= 4
	}
	return base
}

// suggestions produces the human-readable optimisation hints attached to a plan.
func (p *Planner) suggestions(tables []string, plan *ExecutionPlan) []string {
	var out []string

	if plan.Complexity == ComplexityComplex || plan.Complexity == ComplexityVeryComplex {
		out = append(out, "add a LIMIT clause to bound the result set")
	}
	if len(plan.JoinPaths) >= 3 {
		out = append(out, "filter large tables before joining to reduce intermediate rows")
	}
	for _, j := range plan.JoinPaths {
		if j.Confidence < 1.0 {
			out = append(out, fmt.Sprintf("verify join condition %s (no foreign key backs it)", j.Condition))
		}
	}
	for _, t := range tables {
		if p.estimatedRows(t) > 100_000 {
			out = append(out, fmt.Sprintf("table %s is large; push filters into the scan", t))
		}
	}

	return out
}

// indexRecommendations emits CREATE INDEX statements for FK columns that
// have no index yet.
func (p *Planner) indexRecommendations(tables []string) []string {
	var out []string
	for _, name := range tables {
		table, ok := p.catalog.Table(name)
		if !ok {
			continue
		}
		for _, fk := range table.ForeignKeys {
			for _, col := range fk.FromColumns {
				if !table.HasIndexOn(col) {
					out = append(out, fmt.Sprintf(
						"CREATE INDEX idx_%s_%s ON %s(%s);", name, col, name, col))
				}
			}
		}
	}
	return out
}

// ApplyHints annotates candidate SQL with a LIMIT when the plan is complex
// and appends the suggestions as a trailing comment.
func (p *Planner) ApplyHints(sqlText string, plan *ExecutionPlan) string {
	out := strings.TrimRight(strings.TrimSpace(sqlText), ";")

	if plan.Complexity == ComplexityComplex || plan.Complexity == ComplexityVeryComplex {
		if !strings.Contains(strings.ToUpper(out), "LIMIT") {
			out += " LIMIT 100"
		}
	}

	if len(plan.OptimizationSuggestions) > 0 {
		out += "\n-- hints: " + strings.Join(plan.OptimizationSuggestions, "; ")
	}
	return out
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func filterEdges(edges []edge, nodes []string) []edge {
	inSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}
	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		if inSet[e.From] && inSet[e.To] {
			out = append(out, e)
		}
	}
	return out
}

// orientEdges orders MST edges to follow the join order, flipping edges so
// the already-joined side appears on the left.
func orientEdges(mst []edge, order []string) []edge {
	pos := make(map[string]int, len(order))
	for i, t := range order {
		pos[t] = i
	}

	out := make([]edge, 0, len(mst))
	for _, e := range mst {
		if pos[e.From] > pos[e.To] {
			e.From, e.To = e.To, e.From
			e.FromColumn, e.ToColumn = e.ToColumn, e.FromColumn
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return pos[out[i].To] < pos[out[j].To]
	})
	return out
}

// sharedColumn finds a column name present in both tables, preferring *_id.
func sharedColumn(cat *catalog.Catalog, a, b string) (string, bool) {
	colsA, okA := cat.Columns(a)
	colsB, okB := cat.Columns(b)
	if !okA || !okB {
		return "", false
	}
	namesB := make(map[string]bool, len(colsB))
	for _, c := range colsB {
		namesB[c.Name] = true
	}
	var fallback string
	for _, c := range colsA {
		if c.Name == "id" || !namesB[c.Name] {
			continue
		}
		if strings.HasSuffix(c.Name, "_id") {
			return c.Name, true
		}
		if fallback == "" {
			fallback = c.Name
		}
	}
	return fallback, fallback != ""
}
