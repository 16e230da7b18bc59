package events

// Event types published over the stream.
const (
	TypeEngineCycle   = "engine_cycle"
	TypePriceChange   = "price_change"
	TypeAlert         = "alert"
	TypeCacheSweep    = "cache_sweep"
	TypeSystemStartup = "system_startup"
)

// EngineCycleData summarises one price-engine cycle.
type EngineCycleData struct {
	BatchSize      int     `json:"batch_size"`
	Updated        int     `json:"updated"`
	Failed         int     `json:"failed"`
	Discounts      int     `json:"discounts"`
	Surges         int     `json:"surges"`
	DurationMillis float64 `json:"duration_ms"`
}

// PriceChangeData describes a single committed price change.
type PriceChangeData struct {
	ProductID  int64   `json:"product_id"`
	PlatformID int64   `json:"platform_id"`
	OldPrice   float64 `json:"old_price"`
	NewPrice   float64 `json:"new_price"`
	ChangeType string  `json:"change_type"`
}

// AlertData mirrors an alert raised by the alert manager.
type AlertData struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
	Severity string  `json:"severity"`
}

// CacheSweepData reports one expired-entry sweep.
type CacheSweepData struct {
	Removed int `json:"removed"`
}
