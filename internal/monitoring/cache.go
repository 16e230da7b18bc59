package monitoring

import (
	"math"
	"sync"
	"time"
)

// CacheMonitor implements cache.Monitor with hourly bucketing.
type CacheMonitor struct {
	mu      sync.Mutex
	hits    int64
	misses  int64
	sets    int64
	deletes int64
	hourly  map[string]int64
}

func NewCacheMonitor() *CacheMonitor {
	return &CacheMonitor{hourly: make(map[string]int64)}
}

func (m *CacheMonitor) RecordHit()    { m.bump(&m.hits) }
func (m *CacheMonitor) RecordMiss()   { m.bump(&m.misses) }
func (m *CacheMonitor) RecordSet()    { m.bump(&m.sets) }
func (m *CacheMonitor) RecordDelete() { m.bump(&m.deletes) }

func (m *CacheMonitor) bump(counter *int64) {
	now := time.Now()
	m.mu.Lock()
	*counter++
	m.hourly[now.Format("2006-01-02T15")]++
	cutoff := now.Add(-48 * time.Hour).Format("2006-01-02T15")
	for k := range m.hourly {
		if k < cutoff {
			delete(m.hourly, k)
		}
	}
	m.mu.Unlock()
}

// CacheStats is the aggregate view.
type CacheStats struct {
	Hits        int64            `json:"hits"`
	Misses      int64            `json:"misses"`
	Sets        int64            `json:"sets"`
	Deletes     int64            `json:"deletes"`
	HitRatioPct float64          `json:"hit_ratio_pct"`
	Hourly      map[string]int64 `json:"hourly"`
}

func (m *CacheMonitor) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := CacheStats{
		Hits:    m.hits,
		Misses:  m.misses,
		Sets:    m.sets,
		Deletes: m.deletes,
		Hourly:  copyMap(m.hourly),
	}
	if lookups := m.hits + m.misses; lookups > 0 {
		stats.HitRatioPct = math.Round(float64(m.hits)/float64(lookups)*10000) / 100
	}
	return stats
}

// HitRatio returns the hit fraction in [0, 1], or 1 when there were no
// lookups yet so a cold cache does not trip the alert threshold.
func (m *CacheMonitor) HitRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	lookups := m.hits + m.misses
	if lookups == 0 {
		return 1
	}
	return float64(m.hits) / float64(lookups)
}
