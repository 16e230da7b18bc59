package planner

import (
	"strings"
	"time"
)

// PerformanceRating buckets an observed execution time.
type PerformanceRating string

const (
	RatingExcellent  PerformanceRating = "excellent"
	RatingGood       PerformanceRating = "good"
	RatingAcceptable PerformanceRating = "acceptable"
	RatingSlow       PerformanceRating = "slow"
	RatingVerySlow   PerformanceRating = "very_slow"
)

// PerformanceAnalysis is the result of analysing one executed statement.
type PerformanceAnalysis struct {
	Rating          PerformanceRating `json:"rating"`
	Bottlenecks     []string          `json:"bottlenecks"`
	Recommendations []string          `json:"recommendations"`
}

// AnalysePerformance rates an observed execution and extracts likely
// bottlenecks from the SQL text by simple parsing.
func (p *Planner) AnalysePerformance(sqlText string, observed time.Duration) PerformanceAnalysis {
	analysis := PerformanceAnalysis{Rating: rate(observed)}

	upper := strings.ToUpper(sqlText)

	if strings.Contains(upper, "SELECT *") {
		analysis.Bottlenecks = append(analysis.Bottlenecks, "SELECT * fetches every column")
		analysis.Recommendations = append(analysis.Recommendations, "project only the columns you need")
	}
	if !strings.Contains(upper, "LIMIT") {
		analysis.Bottlenecks = append(analysis.Bottlenecks, "unbounded result set")
		analysis.Recommendations = append(analysis.Recommendations, "add a LIMIT clause")
	}
	if joins := strings.Count(upper, " JOIN "); joins >= 3 {
		analysis.Bottlenecks = append(analysis.Bottlenecks, "three or more joins in one statement")
		analysis.Recommendations = append(analysis.Recommendations, "check join columns are indexed")
	}
	if strings.Contains(upper, " LIKE '%") || strings.Contains(upper, " LIKE \"%") ||
		strings.Contains(upper, "ILIKE '%") {
		analysis.Bottlenecks = append(analysis.Bottlenecks, "leading-wildcard pattern match defeats indexes")
		analysis.Recommendations = append(analysis.Recommendations, "anchor the pattern or use a prefix search")
	}
	if strings.Contains(upper, "ORDER BY") && !strings.Contains(upper, "LIMIT") {
		analysis.Bottlenecks = append(analysis.Bottlenecks, "full sort without a row bound")
	}

	if analysis.Rating == RatingSlow || analysis.Rating == RatingVerySlow {
		analysis.Recommendations = append(analysis.Recommendations, "inspect the plan with EXPLAIN QUERY PLAN")
	}

	return analysis
}

func rate(observed time.Duration) PerformanceRating {
	switch {
	case observed < 10*time.Millisecond:
		return RatingExcellent
	case observed < 100*time.Millisecond:
		return RatingGood
	case observed < 500*time.Millisecond:
		return RatingAcceptable
	case observed < 2*time.Second:
		return RatingSlow
	default:
		return RatingVerySlow
	}
}
