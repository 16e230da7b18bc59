package monitoring

import (
	"sort"
	"sync"
	"time"
)

// endpointStats accumulates per-route counters.
type endpointStats struct {
	Count         int64
	Errors        int64
	TotalDuration time.Duration
}

// APIUsageMonitor tracks per-endpoint request volume fed by the request
// logging middleware.
type APIUsageMonitor struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
	total     int64
	started   time.Time
}

func NewAPIUsageMonitor() *APIUsageMonitor {
	return &APIUsageMonitor{
		endpoints: make(map[string]*endpointStats),
		started:   time.Now(),
	}
}

// Record logs one completed request. route is "METHOD /path".
func (m *APIUsageMonitor) Record(route string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.endpoints[route]
	if !ok {
		stats = &endpointStats{}
		m.endpoints[route] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	if status >= 500 {
		stats.Errors++
	}
	m.total++
}

// EndpointUsage is the exported per-route view.
type EndpointUsage struct {
	Route         string  `json:"route"`
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// APIStats is the aggregate view.
type APIStats struct {
	TotalRequests int64           `json:"total_requests"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Endpoints     []EndpointUsage `json:"endpoints"`
}

func (m *APIUsageMonitor) Stats() APIStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := APIStats{
		TotalRequests: m.total,
		UptimeSeconds: time.Since(m.started).Seconds(),
		Endpoints:     make([]EndpointUsage, 0, len(m.endpoints)),
	}
	for route, stats := range m.endpoints {
		usage := EndpointUsage{Route: route, Count: stats.Count, Errors: stats.Errors}
		if stats.Count > 0 {
			usage.AvgDurationMS = float64(stats.TotalDuration.Microseconds()) / float64(stats.Count) / 1000
		}
		out.Endpoints = append(out.Endpoints, usage)
	}
	sort.Slice(out.Endpoints, func(i, j int) bool {
		if out.Endpoints[i].Count != out.Endpoints[j].Count {
			return out.Endpoints[i].Count > out.Endpoints[j].Count
		}
		return out.Endpoints[i].Route < out.Endpoints[j].Route
	})
	return out
}
