package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/events"
)

// Alert kinds.
const (
	AlertHighCPU     = "high_cpu"
	AlertHighMemory  = "high_memory"
	AlertErrorRate   = "high_error_rate"
	AlertLowHitRatio = "low_cache_hit_ratio"
)

// Alert thresholds.
const (
	cpuThresholdPct    = 80.0
	memoryThresholdPct = 85.0
	errorRateThreshold = 0.05
	hitRatioThreshold  = 0.70
)

const dedupeWindow = 5 * time.Minute

// Alert is one raised threshold breach.
type Alert struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	Value    float64   `json:"value"`
	Severity string    `json:"severity"`
	RaisedAt time.Time `json:"raised_at"`
}

// AlertManager evaluates thresholds against the other monitors and
// suppresses duplicates of the same kind within a five-minute window.
type AlertManager struct {
	db          *DatabaseMonitor
	cache       *CacheMonitor
	broadcaster *events.Broadcaster
	log         zerolog.Logger

	mu         sync.Mutex
	lastByKind map[string]time.Time
	history    *ring[Alert]
}

func NewAlertManager(db *DatabaseMonitor, cacheMon *CacheMonitor, broadcaster *events.Broadcaster, log zerolog.Logger) *AlertManager {
	return &AlertManager{
		db:          db,
		cache:       cacheMon,
		broadcaster: broadcaster,
		log:         log.With().Str("component", "alerts").Logger(),
		lastByKind:  make(map[string]time.Time),
		history:     newRing[Alert](200),
	}
}

// Evaluate checks all thresholds against the given system sample and the
// db/cache monitors, raising alerts for breaches.
func (a *AlertManager) Evaluate(sample SystemSample) []Alert {
	var raised []Alert

	if sample.CPUPercent > cpuThresholdPct {
		raised = a.raise(raised, AlertHighCPU, "warning", sample.CPUPercent,
			fmt.Sprintf("CPU usage at %.1f%%", sample.CPUPercent))
	}
	if sample.MemoryPercent > memoryThresholdPct {
		raised = a.raise(raised, AlertHighMemory, "warning", sample.MemoryPercent,
			fmt.Sprintf("memory usage at %.1f%%", sample.MemoryPercent))
	}
	if rate := a.db.ErrorRate(); rate > errorRateThreshold {
		raised = a.raise(raised, AlertErrorRate, "critical", rate*100,
			fmt.Sprintf("query error rate at %.1f%%", rate*100))
	}
	if ratio := a.cache.HitRatio(); ratio < hitRatioThreshold {
		raised = a.raise(raised, AlertLowHitRatio, "info", ratio*100,
			fmt.Sprintf("cache hit ratio at %.1f%%", ratio*100))
	}

	return raised
}

func (a *AlertManager) raise(raised []Alert, kind, severity string, value float64, message string) []Alert {
	now := time.Now()

	a.mu.Lock()
	if last, ok := a.lastByKind[kind]; ok && now.Sub(last) < dedupeWindow {
		a.mu.Unlock()
		return raised
	}
	a.lastByKind[kind] = now

	alert := Alert{
		ID:       uuid.New().String(),
		Kind:     kind,
		Message:  message,
		Value:    value,
		Severity: severity,
		RaisedAt: now,
	}
	a.history.push(alert)
	a.mu.Unlock()

	a.log.Warn().
		Str("kind", kind).
		Str("severity", severity).
		Float64("value", value).
		Msg(message)

	if a.broadcaster != nil {
		a.broadcaster.Publish(events.TypeAlert, events.AlertData{
			ID:       alert.ID,
			Kind:     kind,
			Message:  message,
			Value:    value,
			Severity: severity,
		})
	}
	return append(raised, alert)
}

// Recent returns up to n alerts, newest first.
func (a *AlertManager) Recent(n int) []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 {
		n = 50
	}
	return a.history.latest(n)
}
