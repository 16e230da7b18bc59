package pricing

import (
	"sync/atomic"
	"time"
)

// Metrics holds the engine's atomic counters.
type Metrics struct {
	TotalUpdates      atomic.Int64
	SuccessfulUpdates atomic.Int64
	FailedUpdates     atomic.Int64
	PriceIncreases    atomic.Int64
	PriceDecreases    atomic.Int64
	NewDiscounts      atomic.Int64
	SurgeEvents       atomic.Int64
	ConflictsResolved atomic.Int64
	AvailabilityFlips atomic.Int64
	lastUpdate        atomic.Int64 // unix nanos
}

func (m *Metrics) markUpdate() {
	m.lastUpdate.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalUpdates      int64      `json:"total_updates"`
	SuccessfulUpdates int64      `json:"successful_updates"`
	FailedUpdates     int64      `json:"failed_updates"`
	PriceIncreases    int64      `json:"price_increases"`
	PriceDecreases    int64      `json:"price_decreases"`
	NewDiscounts      int64      `json:"new_discounts"`
	SurgeEvents       int64      `json:"surge_events"`
	ConflictsResolved int64      `json:"conflicts_resolved"`
	AvailabilityFlips int64      `json:"availability_flips"`
	LastUpdateTime    *time.Time `json:"last_update_time,omitempty"`
}

func (m *Metrics) snapshot() Snapshot {
	snap := Snapshot{
		TotalUpdates:      m.TotalUpdates.Load(),
		SuccessfulUpdates: m.SuccessfulUpdates.Load(),
		FailedUpdates:     m.FailedUpdates.Load(),
		PriceIncreases:    m.PriceIncreases.Load(),
		PriceDecreases:    m.PriceDecreases.Load(),
		NewDiscounts:      m.NewDiscounts.Load(),
		SurgeEvents:       m.SurgeEvents.Load(),
		ConflictsResolved: m.ConflictsResolved.Load(),
		AvailabilityFlips: m.AvailabilityFlips.Load(),
	}
	if nanos := m.lastUpdate.Load(); nanos > 0 {
		t := time.Unix(0, nanos)
		snap.LastUpdateTime = &t
	}
	return snap
}
