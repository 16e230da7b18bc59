package results

import (
	"fmt"
	"strconv"
	"time"
)

// Format selects the output shape of a processed result set.
type Format string

const (
	FormatRaw        Format = "raw"
	FormatStructured Format = "structured"
	FormatSummary    Format = "summary"
	FormatComparison Format = "comparison"
	FormatChartData  Format = "chart_data"
)

// ValidFormat reports whether f is one of the supported shapes.
func ValidFormat(f Format) bool {
	switch f {
	case FormatRaw, FormatStructured, FormatSummary, FormatComparison, FormatChartData:
		return true
	}
	return false
}

// MaxPageSize caps requested page sizes.
const MaxPageSize = 100

// Options controls one processing pass.
type Options struct {
	Page       int
	PageSize   int
	Sampling   SamplingMethod
	SampleSize int
	StratifyBy string
	Format     Format
}

// Normalize fills defaults and clamps out-of-range values.
func (o *Options) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 20
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	if o.Sampling == "" {
		o.Sampling = SamplingNone
	}
	if o.Format == "" {
		o.Format = FormatRaw
	}
}

// Pagination describes the window the response covers.
type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalCount  int  `json:"total_count"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
	StartIndex  int  `json:"start_index"`
	EndIndex    int  `json:"end_index"`
}

// Freshness summarises row ages derived from last_updated.
type Freshness struct {
	OldestSeconds  float64 `json:"oldest_seconds"`
	NewestSeconds  float64 `json:"newest_seconds"`
	AverageSeconds float64 `json:"average_seconds"`
}

// Quality carries per-field completeness and availability.
type Quality struct {
	Completeness     map[string]float64 `json:"completeness_pct"`
	AvailabilityRate float64            `json:"availability_rate_pct"`
}

// Metadata accompanies every processed response.
type Metadata struct {
	ProcessingTime float64        `json:"processing_time_seconds"`
	Sampled        bool           `json:"sampled"`
	SamplingMethod SamplingMethod `json:"sampling_method,omitempty"`
	SampleSize     int            `json:"sample_size,omitempty"`
	Pagination     Pagination     `json:"pagination"`
	Freshness      *Freshness     `json:"freshness,omitempty"`
	Quality        *Quality       `json:"quality,omitempty"`
	Format         Format         `json:"format"`
	CachedAt       *time.Time     `json:"cached_at,omitempty"`
}

// Processed is the full output of one processing pass. Results is shaped
// per the requested format: rows for raw/structured, a single object for
// summary/comparison/chart_data.
type Processed struct {
	Results  any      `json:"results"`
	Metadata Metadata `json:"metadata"`
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	case int:
		return t != 0, true
	case float64:
		return t != 0, true
	}
	return false, false
}
