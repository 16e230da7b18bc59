// Package monitoring collects runtime telemetry: query timings, cache
// counters, system gauges, and threshold alerts, all held in bounded
// in-memory buffers guarded by one mutex per monitor.
package monitoring

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// QueryMetric is one recorded statement execution.
type QueryMetric struct {
	SQL        string        `json:"sql"`
	Duration   time.Duration `json:"duration"`
	Rows       int64         `json:"rows"`
	Failed     bool          `json:"failed"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// DatabaseMonitor implements database.Observer. It keeps a bounded ring
// of recent queries, a separate slow-query ring, and hourly/daily bucketed
// counters.
type DatabaseMonitor struct {
	mu            sync.Mutex
	queries       *ring[QueryMetric]
	slow          *ring[QueryMetric]
	slowThreshold time.Duration

	total         int64
	errored       int64
	totalDuration time.Duration
	hourly        map[string]int64 // "2006-01-02T15"
	daily         map[string]int64 // "2006-01-02"

	log zerolog.Logger
}

func NewDatabaseMonitor(bufferSize, slowBufferSize int, slowThreshold time.Duration, log zerolog.Logger) *DatabaseMonitor {
	return &DatabaseMonitor{
		queries:       newRing[QueryMetric](bufferSize),
		slow:          newRing[QueryMetric](slowBufferSize),
		slowThreshold: slowThreshold,
		hourly:        make(map[string]int64),
		daily:         make(map[string]int64),
		log:           log.With().Str("component", "db_monitor").Logger(),
	}
}

// ObserveQuery records one executed statement.
func (m *DatabaseMonitor) ObserveQuery(sqlText string, duration time.Duration, rows int64, err error) {
	metric := QueryMetric{
		SQL:        truncateSQL(sqlText),
		Duration:   duration,
		Rows:       rows,
		Failed:     err != nil,
		RecordedAt: time.Now(),
	}

	m.mu.Lock()
	m.queries.push(metric)
	m.total++
	m.totalDuration += duration
	if err != nil {
		m.errored++
	}
	if duration >= m.slowThreshold {
		m.slow.push(metric)
	}
	m.hourly[metric.RecordedAt.Format("2006-01-02T15")]++
	m.daily[metric.RecordedAt.Format("2006-01-02")]++
	m.pruneBucketsLocked(metric.RecordedAt)
	m.mu.Unlock()

	if duration >= m.slowThreshold {
		m.log.Warn().
			Str("sql", metric.SQL).
			Dur("took", duration).
			Msg("Slow query")
	}
}

// Buckets older than 48 hours / 14 days fall off.
func (m *DatabaseMonitor) pruneBucketsLocked(now time.Time) {
	hourCut := now.Add(-48 * time.Hour).Format("2006-01-02T15")
	for k := range m.hourly {
		if k < hourCut {
			delete(m.hourly, k)
		}
	}
	dayCut := now.AddDate(0, 0, -14).Format("2006-01-02")
	for k := range m.daily {
		if k < dayCut {
			delete(m.daily, k)
		}
	}
}

// DatabaseStats is the aggregate view.
type DatabaseStats struct {
	TotalQueries    int64            `json:"total_queries"`
	ErrorCount      int64            `json:"error_count"`
	ErrorRatePct    float64          `json:"error_rate_pct"`
	MeanExecutionMS float64          `json:"mean_execution_ms"`
	SlowQueryCount  int              `json:"slow_query_count"`
	RecentHourCount int64            `json:"recent_hour_count"`
	Hourly          map[string]int64 `json:"hourly"`
	Daily           map[string]int64 `json:"daily"`
}

func (m *DatabaseMonitor) Stats() DatabaseStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := DatabaseStats{
		TotalQueries:   m.total,
		ErrorCount:     m.errored,
		SlowQueryCount: m.slow.len(),
		Hourly:         copyMap(m.hourly),
		Daily:          copyMap(m.daily),
	}
	if m.total > 0 {
		stats.ErrorRatePct = math.Round(float64(m.errored)/float64(m.total)*10000) / 100
		stats.MeanExecutionMS = float64(m.totalDuration.Microseconds()) / float64(m.total) / 1000
	}

	cutoff := time.Now().Add(-time.Hour)
	for _, q := range m.queries.items() {
		if q.RecordedAt.After(cutoff) {
			stats.RecentHourCount++
		}
	}
	return stats
}

// ErrorRate returns the error fraction in [0, 1].
func (m *DatabaseMonitor) ErrorRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == 0 {
		return 0
	}
	return float64(m.errored) / float64(m.total)
}

// SlowQueries returns up to limit slow queries, newest first.
func (m *DatabaseMonitor) SlowQueries(limit int) []QueryMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	return m.slow.latest(limit)
}

// Suggestions derives optimisation hints from patterns in the slow buffer.
func (m *DatabaseMonitor) Suggestions() []string {
	m.mu.Lock()
	slow := m.slow.items()
	m.mu.Unlock()

	if len(slow) == 0 {
		return nil
	}

	var joins, wheres, orders, selectStars int
	for _, q := range slow {
		upper := strings.ToUpper(q.SQL)
		if strings.Contains(upper, " JOIN ") {
			joins++
		}
		if strings.Contains(upper, " WHERE ") {
			wheres++
		}
		if strings.Contains(upper, "ORDER BY") {
			orders++
		}
		if strings.Contains(upper, "SELECT *") {
			selectStars++
		}
	}

	half := len(slow) / 2
	var out []string
	if joins > half {
		out = append(out, "most slow queries contain joins, verify join columns are indexed")
	}
	if wheres > half {
		out = append(out, "most slow queries filter with WHERE, consider covering indexes for hot predicates")
	}
	if orders > half {
		out = append(out, "most slow queries sort, consider indexes matching the ORDER BY")
	}
	if selectStars > 0 {
		out = append(out, "some slow queries use SELECT *, project only needed columns")
	}
	sort.Strings(out)
	return out
}

func truncateSQL(sqlText string) string {
	cleaned := strings.Join(strings.Fields(sqlText), " ")
	if len(cleaned) > 500 {
		return cleaned[:500]
	}
	return cleaned
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
