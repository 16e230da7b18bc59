package monitoring

import (
	"math"
	"time"
)

// ComprehensiveMetrics is the unified snapshot the monitoring endpoints
// serve.
type ComprehensiveMetrics struct {
	Database        DatabaseStats  `json:"database"`
	Cache           CacheStats     `json:"cache"`
	System          *SystemSample  `json:"system,omitempty"`
	API             APIStats       `json:"api"`
	Alerts          []Alert        `json:"recent_alerts"`
	EfficiencyScore float64        `json:"efficiency_score"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Collector aggregates the individual monitors.
type Collector struct {
	DB     *DatabaseMonitor
	Cache  *CacheMonitor
	System *SystemMonitor
	API    *APIUsageMonitor
	Alerts *AlertManager
}

// Comprehensive composes all monitors' views into one snapshot.
func (c *Collector) Comprehensive() ComprehensiveMetrics {
	out := ComprehensiveMetrics{
		Database:    c.DB.Stats(),
		Cache:       c.Cache.Stats(),
		API:         c.API.Stats(),
		Alerts:      c.Alerts.Recent(20),
		GeneratedAt: time.Now(),
	}
	if sample, ok := c.System.Latest(); ok {
		out.System = &sample
	}
	out.EfficiencyScore = efficiencyScore(out)
	return out
}

// Realtime is a last-minute view: the latest system sample plus the
// recent-hour query count and current cache ratio.
type RealtimeMetrics struct {
	System          *SystemSample `json:"system,omitempty"`
	RecentHourCount int64         `json:"recent_hour_queries"`
	CacheHitRatio   float64       `json:"cache_hit_ratio_pct"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

func (c *Collector) Realtime() RealtimeMetrics {
	out := RealtimeMetrics{
		RecentHourCount: c.DB.Stats().RecentHourCount,
		CacheHitRatio:   math.Round(c.Cache.HitRatio()*10000) / 100,
		GeneratedAt:     time.Now(),
	}
	if sample, ok := c.System.Latest(); ok {
		out.System = &sample
	}
	return out
}

// efficiencyScore is a 0-100 composite: cache hit ratio and query health
// weighted equally, penalised by resource pressure.
func efficiencyScore(m ComprehensiveMetrics) float64 {
	cacheScore := m.Cache.HitRatioPct
	if m.Cache.Hits+m.Cache.Misses == 0 {
		cacheScore = 100
	}

	queryScore := 100 - m.Database.ErrorRatePct*10
	if queryScore < 0 {
		queryScore = 0
	}

	score := cacheScore*0.5 + queryScore*0.5

	if m.System != nil {
		if m.System.CPUPercent > cpuThresholdPct {
			score -= (m.System.CPUPercent - cpuThresholdPct) * 0.5
		}
		if m.System.MemoryPercent > memoryThresholdPct {
			score -= (m.System.MemoryPercent - memoryThresholdPct) * 0.5
		}
	}

	if score < 0 {
		score = 0
	}
	return math.Round(score*100) / 100
}
