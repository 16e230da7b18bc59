package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemSample is one gauge reading.
type SystemSample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// SystemMonitor samples host gauges into a bounded history. Sampling is
// driven externally by the scheduler.
type SystemMonitor struct {
	mu      sync.Mutex
	history *ring[SystemSample]
	dataDir string
	log     zerolog.Logger
}

func NewSystemMonitor(historySize int, dataDir string, log zerolog.Logger) *SystemMonitor {
	return &SystemMonitor{
		history: newRing[SystemSample](historySize),
		dataDir: dataDir,
		log:     log.With().Str("component", "system_monitor").Logger(),
	}
}

// Sample takes one reading and appends it to the history.
func (m *SystemMonitor) Sample(ctx context.Context) (SystemSample, error) {
	sample := SystemSample{SampledAt: time.Now()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	} else if err != nil {
		m.log.Debug().Err(err).Msg("CPU sample failed")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemoryPercent = vm.UsedPercent
	} else {
		m.log.Debug().Err(err).Msg("Memory sample failed")
	}

	if usage, err := disk.UsageWithContext(ctx, m.dataDir); err == nil {
		sample.DiskPercent = usage.UsedPercent
	} else {
		m.log.Debug().Err(err).Msg("Disk sample failed")
	}

	m.mu.Lock()
	m.history.push(sample)
	m.mu.Unlock()
	return sample, nil
}

// Latest returns the most recent sample, if any.
func (m *SystemMonitor) Latest() (SystemSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := m.history.latest(1)
	if len(recent) == 0 {
		return SystemSample{}, false
	}
	return recent[0], true
}

// History returns up to n samples, newest first.
func (m *SystemMonitor) History(n int) []SystemSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.latest(n)
}
