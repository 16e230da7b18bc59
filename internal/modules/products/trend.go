package products

import (
	"context"
	"fmt"
	"math"
	"strings"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/apierror"
	"github.com/pricelens/pricelens/internal/database"
)

const (
	trendPeriod     = 7
	trendMaxSamples = 200
)

// TrendPoint is one averaged price observation.
type TrendPoint struct {
	RecordedAt string  `json:"recorded_at"`
	Price      float64 `json:"price"`
	SMA        float64 `json:"sma,omitempty"`
	EMA        float64 `json:"ema,omitempty"`
}

// Trend summarises recent price movement for a product.
type Trend struct {
	ProductName string       `json:"product_name"`
	Samples     int          `json:"samples"`
	Direction   string       `json:"direction"` // rising, falling, flat
	ChangePct   float64      `json:"change_pct"`
	LatestSMA   float64      `json:"latest_sma"`
	LatestEMA   float64      `json:"latest_ema"`
	Points      []TrendPoint `json:"points"`
}

// TrendService computes moving-average trends over price_history.
type TrendService struct {
	db  *database.DB
	log zerolog.Logger
}

func NewTrendService(db *database.DB, log zerolog.Logger) *TrendService {
	return &TrendService{db: db, log: log.With().Str("component", "trend").Logger()}
}

// Compute loads the cross-platform average price series for the product
// and overlays SMA and EMA.
func (s *TrendService) Compute(ctx context.Context, productName string) (*Trend, error) {
	if strings.TrimSpace(productName) == "" {
		return nil, apierror.Validation("product is required")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ph.recorded_at, AVG(ph.price)
		FROM price_history ph
		JOIN products p ON ph.product_id = p.id
		WHERE LOWER(p.name) LIKE ?
		GROUP BY ph.recorded_at
		ORDER BY ph.recorded_at DESC
		LIMIT ?`,
		"%"+strings.ToLower(strings.TrimSpace(productName))+"%", trendMaxSamples)
	if err != nil {
		return nil, apierror.Database("trend query failed", err)
	}
	defer rows.Close()

	var timestamps []string
	var prices []float64
	for rows.Next() {
		var ts string
		var price float64
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		timestamps = append(timestamps, ts)
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trend row iteration failed: %w", err)
	}
	if len(prices) == 0 {
		return nil, apierror.ProductNotFound(productName)
	}

	// Reverse into chronological order for the indicators
	reverse(timestamps)
	reverse(prices)

	trend := &Trend{
		ProductName: productName,
		Samples:     len(prices),
		Direction:   "flat",
	}

	var sma, ema []float64
	if len(prices) >= trendPeriod {
		sma = talib.Sma(prices, trendPeriod)
		ema = talib.Ema(prices, trendPeriod)
		trend.LatestSMA = round2(sma[len(sma)-1])
		trend.LatestEMA = round2(ema[len(ema)-1])
	}

	first, last := prices[0], prices[len(prices)-1]
	if first > 0 {
		trend.ChangePct = round2((last - first) / first * 100)
	}
	switch {
	case trend.ChangePct > 1:
		trend.Direction = "rising"
	case trend.ChangePct < -1:
		trend.Direction = "falling"
	}

	trend.Points = make([]TrendPoint, len(prices))
	for i := range prices {
		point := TrendPoint{RecordedAt: timestamps[i], Price: round2(prices[i])}
		if sma != nil && sma[i] != 0 {
			point.SMA = round2(sma[i])
		}
		if ema != nil && ema[i] != 0 {
			point.EMA = round2(ema[i])
		}
		trend.Points[i] = point
	}
	return trend, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
