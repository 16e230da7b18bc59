package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	assert.Equal(t, 3, r.len())
	assert.Equal(t, []int{3, 4, 5}, r.items())
	assert.Equal(t, []int{5, 4}, r.latest(2))
	assert.Equal(t, []int{5, 4, 3}, r.latest(10))
}

func TestRingPartialFill(t *testing.T) {
	r := newRing[string](4)
	r.push("a")
	r.push("b")
	assert.Equal(t, 2, r.len())
	assert.Equal(t, []string{"a", "b"}, r.items())
}

func TestDatabaseMonitorStats(t *testing.T) {
	m := NewDatabaseMonitor(100, 10, 50*time.Millisecond, zerolog.Nop())

	m.ObserveQuery("SELECT * FROM products", 10*time.Millisecond, 5, nil)
	m.ObserveQuery("SELECT * FROM platforms ORDER BY name", 80*time.Millisecond, 4, nil)
	m.ObserveQuery("INSERT INTO products VALUES (1)", 5*time.Millisecond, 1, errors.New("constraint failed"))

	stats := m.Stats()
	assert.EqualValues(t, 3, stats.TotalQueries)
	assert.EqualValues(t, 1, stats.ErrorCount)
	assert.InDelta(t, 33.33, stats.ErrorRatePct, 0.01)
	assert.Equal(t, 1, stats.SlowQueryCount)
	assert.EqualValues(t, 3, stats.RecentHourCount)
	assert.Greater(t, stats.MeanExecutionMS, 0.0)
}

func TestSlowQueriesNewestFirst(t *testing.T) {
	m := NewDatabaseMonitor(100, 10, time.Millisecond, zerolog.Nop())
	m.ObserveQuery("SELECT 1", 2*time.Millisecond, 0, nil)
	m.ObserveQuery("SELECT 2", 3*time.Millisecond, 0, nil)

	slow := m.SlowQueries(5)
	require.Len(t, slow, 2)
	assert.Equal(t, "SELECT 2", slow[0].SQL)
	assert.Equal(t, "SELECT 1", slow[1].SQL)
}

func TestSlowBufferBounded(t *testing.T) {
	m := NewDatabaseMonitor(100, 3, time.Millisecond, zerolog.Nop())
	for i := 0; i < 10; i++ {
		m.ObserveQuery("SELECT slow", 2*time.Millisecond, 0, nil)
	}
	assert.Equal(t, 3, m.Stats().SlowQueryCount)
}

func TestSuggestionsFromSlowPatterns(t *testing.T) {
	m := NewDatabaseMonitor(100, 10, time.Millisecond, zerolog.Nop())
	for i := 0; i < 4; i++ {
		m.ObserveQuery("SELECT * FROM a JOIN b ON a.id = b.a_id WHERE a.x = 1", 2*time.Millisecond, 0, nil)
	}

	suggestions := m.Suggestions()
	require.NotEmpty(t, suggestions)
	joined := ""
	for _, s := range suggestions {
		joined += s + "\n"
	}
	assert.Contains(t, joined, "join")
	assert.Contains(t, joined, "SELECT *")
}

func TestErrorRateFraction(t *testing.T) {
	m := NewDatabaseMonitor(10, 5, time.Second, zerolog.Nop())
	assert.Zero(t, m.ErrorRate())

	m.ObserveQuery("SELECT 1", time.Millisecond, 0, nil)
	m.ObserveQuery("SELECT 2", time.Millisecond, 0, errors.New("boom"))
	assert.InDelta(t, 0.5, m.ErrorRate(), 1e-9)
}

func TestTruncateSQLNormalisesWhitespace(t *testing.T) {
	got := truncateSQL("SELECT\n\t*  FROM   products")
	assert.Equal(t, "SELECT * FROM products", got)
}

func TestCacheMonitorStats(t *testing.T) {
	m := NewCacheMonitor()
	m.RecordHit()
	m.RecordHit()
	m.RecordHit()
	m.RecordMiss()
	m.RecordSet()
	m.RecordDelete()

	stats := m.Stats()
	assert.EqualValues(t, 3, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.Sets)
	assert.EqualValues(t, 1, stats.Deletes)
	assert.InDelta(t, 75.0, stats.HitRatioPct, 0.01)
}

func TestColdCacheHitRatioIsOne(t *testing.T) {
	m := NewCacheMonitor()
	assert.Equal(t, 1.0, m.HitRatio())

	m.RecordMiss()
	assert.Equal(t, 0.0, m.HitRatio())
}

func TestAlertsRaiseOnThresholdBreach(t *testing.T) {
	db := NewDatabaseMonitor(10, 5, time.Second, zerolog.Nop())
	cacheMon := NewCacheMonitor()
	a := NewAlertManager(db, cacheMon, nil, zerolog.Nop())

	raised := a.Evaluate(SystemSample{CPUPercent: 95, MemoryPercent: 40})
	require.Len(t, raised, 1)
	assert.Equal(t, AlertHighCPU, raised[0].Kind)
	assert.Equal(t, "warning", raised[0].Severity)
	assert.NotEmpty(t, raised[0].ID)
}

func TestAlertsDedupeWithinWindow(t *testing.T) {
	db := NewDatabaseMonitor(10, 5, time.Second, zerolog.Nop())
	cacheMon := NewCacheMonitor()
	a := NewAlertManager(db, cacheMon, nil, zerolog.Nop())

	first := a.Evaluate(SystemSample{CPUPercent: 95})
	second := a.Evaluate(SystemSample{CPUPercent: 96})
	assert.Len(t, first, 1)
	assert.Empty(t, second, "same alert kind suppressed within the dedupe window")

	assert.Len(t, a.Recent(10), 1)
}

func TestAlertsBelowThresholdStaySilent(t *testing.T) {
	db := NewDatabaseMonitor(10, 5, time.Second, zerolog.Nop())
	cacheMon := NewCacheMonitor()
	a := NewAlertManager(db, cacheMon, nil, zerolog.Nop())

	raised := a.Evaluate(SystemSample{CPUPercent: 50, MemoryPercent: 50})
	assert.Empty(t, raised)
}

func TestErrorRateAlertSeverityCritical(t *testing.T) {
	db := NewDatabaseMonitor(10, 5, time.Second, zerolog.Nop())
	cacheMon := NewCacheMonitor()
	a := NewAlertManager(db, cacheMon, nil, zerolog.Nop())

	db.ObserveQuery("SELECT 1", time.Millisecond, 0, errors.New("boom"))

	raised := a.Evaluate(SystemSample{})
	require.Len(t, raised, 1)
	assert.Equal(t, AlertErrorRate, raised[0].Kind)
	assert.Equal(t, "critical", raised[0].Severity)
}

func TestAPIUsageMonitor(t *testing.T) {
	m := NewAPIUsageMonitor()
	m.Record("POST /api/v1/query/", 200, 12*time.Millisecond)
	m.Record("POST /api/v1/query/", 500, 40*time.Millisecond)
	m.Record("GET /api/v1/deals/", 200, 5*time.Millisecond)

	stats := m.Stats()
	assert.EqualValues(t, 3, stats.TotalRequests)
	require.Len(t, stats.Endpoints, 2)
	// Sorted by call count descending
	assert.Equal(t, "POST /api/v1/query/", stats.Endpoints[0].Route)
	assert.EqualValues(t, 2, stats.Endpoints[0].Count)
	assert.EqualValues(t, 1, stats.Endpoints[0].Errors)
	assert.Greater(t, stats.Endpoints[0].AvgDurationMS, 0.0)
}

func TestCollectorComprehensive(t *testing.T) {
	db := NewDatabaseMonitor(10, 5, time.Second, zerolog.Nop())
	cacheMon := NewCacheMonitor()
	sys := NewSystemMonitor(10, t.TempDir(), zerolog.Nop())
	api := NewAPIUsageMonitor()
	alerts := NewAlertManager(db, cacheMon, nil, zerolog.Nop())
	c := &Collector{DB: db, Cache: cacheMon, System: sys, API: api, Alerts: alerts}

	cacheMon.RecordHit()
	db.ObserveQuery("SELECT 1", time.Millisecond, 0, nil)

	m := c.Comprehensive()
	assert.EqualValues(t, 1, m.Database.TotalQueries)
	assert.EqualValues(t, 1, m.Cache.Hits)
	assert.Greater(t, m.EfficiencyScore, 0.0)
	assert.LessOrEqual(t, m.EfficiencyScore, 100.0)
	assert.False(t, m.GeneratedAt.IsZero())

	rt := c.Realtime()
	assert.EqualValues(t, 1, rt.RecentHourCount)
	assert.Equal(t, 100.0, rt.CacheHitRatio)
}

func TestEfficiencyScorePenalisesPressure(t *testing.T) {
	base := ComprehensiveMetrics{
		Cache:    CacheStats{Hits: 90, Misses: 10, HitRatioPct: 90},
		Database: DatabaseStats{},
	}
	healthy := efficiencyScore(base)

	base.System = &SystemSample{CPUPercent: 95, MemoryPercent: 90}
	stressed := efficiencyScore(base)
	assert.Less(t, stressed, healthy)
}
