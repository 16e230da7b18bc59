// Package pricing simulates live marketplace price movement. A periodic
// cycle picks a random batch of price rows and mutates each one inside a
// BEGIN IMMEDIATE transaction, journaling every committed change to
// price_history.
package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/pricelens/pricelens/internal/config"
	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/events"
)

// priceRow is one batch candidate.
type priceRow struct {
	ID          int64
	ProductID   int64
	PlatformID  int64
	ProductName string
}

// rowState is the re-read under the write lock.
type rowState struct {
	Price              float64
	OriginalPrice      sql.NullFloat64
	DiscountPercentage sql.NullFloat64
	IsAvailable        bool
	StockStatus        string
}

var stockStatuses = []string{"in_stock", "low_stock", "out_of_stock"}

const availabilityFlipProb = 0.05

// Engine drives the periodic price mutation cycles.
type Engine struct {
	cfg         *config.EngineConfig
	catalogDB   *database.DB
	broadcaster *events.Broadcaster
	log         zerolog.Logger

	sem     *semaphore.Weighted
	metrics Metrics

	rngMu sync.Mutex
	rng   *rand.Rand

	stopped atomic.Bool
	wg      sync.WaitGroup
}

func NewEngine(db *database.DB, cfg *config.EngineConfig, broadcaster *events.Broadcaster, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		catalogDB:   db,
		broadcaster: broadcaster,
		log:         log.With().Str("component", "pricing").Logger(),
		sem:         semaphore.NewWeighted(int64(cfg.Workers)),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Status reports the current counter snapshot and whether the engine is
// accepting cycles.
type Status struct {
	Running bool     `json:"running"`
	Metrics Snapshot `json:"metrics"`
}

func (e *Engine) Status() Status {
	return Status{Running: !e.stopped.Load(), Metrics: e.metrics.snapshot()}
}

// Stop prevents further cycles and waits for in-flight workers, up to the
// given grace period.
func (e *Engine) Stop(grace time.Duration) {
	e.stopped.Store(true)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info().Msg("Price engine drained")
	case <-time.After(grace):
		e.log.Warn().Dur("grace", grace).Msg("Price engine drain timed out")
	}
}

// RunCycle executes one full update cycle. Safe to call from a scheduler
// tick; overlapping ticks contend on the worker semaphore rather than
// stacking unboundedly.
func (e *Engine) RunCycle(ctx context.Context) {
	if e.stopped.Load() {
		return
	}
	start := time.Now()

	batch, err := e.selectBatch(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to select price batch")
		return
	}
	if len(batch) == 0 {
		return
	}

	var updated, failed, discounts, surges atomic.Int64
	var cycleWG sync.WaitGroup
	for _, row := range batch {
		if e.stopped.Load() {
			break
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			break
		}

		cycleWG.Add(1)
		e.wg.Add(1)
		go func(row priceRow) {
			defer e.sem.Release(1)
			defer cycleWG.Done()
			defer e.wg.Done()

			outcome, err := e.updateRowWithRetry(ctx, row)
			e.metrics.TotalUpdates.Add(1)
			if err != nil {
				e.metrics.FailedUpdates.Add(1)
				failed.Add(1)
				e.log.Debug().Err(err).Int64("price_id", row.ID).Msg("Price update failed")
				return
			}
			e.metrics.SuccessfulUpdates.Add(1)
			e.metrics.markUpdate()
			updated.Add(1)
			if outcome.discounted {
				discounts.Add(1)
			}
			if outcome.surged {
				surges.Add(1)
			}
		}(row)
	}
	cycleWG.Wait()

	took := time.Since(start)
	e.log.Debug().
		Int("batch", len(batch)).
		Int64("updated", updated.Load()).
		Int64("failed", failed.Load()).
		Dur("took", took).
		Msg("Price cycle finished")

	if e.broadcaster != nil {
		e.broadcaster.Publish(events.TypeEngineCycle, events.EngineCycleData{
			BatchSize:      len(batch),
			Updated:        int(updated.Load()),
			Failed:         int(failed.Load()),
			Discounts:      int(discounts.Load()),
			Surges:         int(surges.Load()),
			DurationMillis: float64(took.Microseconds()) / 1000,
		})
	}
}

func (e *Engine) selectBatch(ctx context.Context) ([]priceRow, error) {
	rows, err := e.catalogDB.QueryContext(ctx, `
		SELECT cp.id, cp.product_id, cp.platform_id, p.name
		FROM current_prices cp
		JOIN products p ON cp.product_id = p.id
		JOIN platforms pl ON cp.platform_id = pl.id
		WHERE pl.is_active = 1 AND p.is_active = 1
		ORDER BY RANDOM()
		LIMIT ?`, e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch: %w", err)
	}
	defer rows.Close()

	var batch []priceRow
	for rows.Next() {
		var row priceRow
		if err := rows.Scan(&row.ID, &row.ProductID, &row.PlatformID, &row.ProductName); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		batch = append(batch, row)
	}
	return batch, rows.Err()
}

type updateOutcome struct {
	discounted bool
	surged     bool
}

// updateRowWithRetry retries the write protocol on lock contention with
// exponential backoff.
func (e *Engine) updateRowWithRetry(ctx context.Context, row priceRow) (updateOutcome, error) {
	return e.withConflictRetry(ctx, func() (updateOutcome, error) {
		return e.updateRow(ctx, row)
	})
}

func (e *Engine) withConflictRetry(ctx context.Context, fn func() (updateOutcome, error)) (updateOutcome, error) {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return updateOutcome{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		outcome, err := fn()
		if err == nil {
			// Only a retry that lands after lock contention counts as a
			// resolved conflict
			if attempt > 0 {
				e.metrics.ConflictsResolved.Add(1)
			}
			return outcome, nil
		}
		lastErr = err
		if !isBusy(err) {
			return updateOutcome{}, err
		}
	}
	return updateOutcome{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

var errRowGone = errors.New("price row disappeared")

// updateRow runs the per-row protocol: re-read under BEGIN IMMEDIATE,
// compute the new price, write it, and journal the change in the same
// transaction.
func (e *Engine) updateRow(ctx context.Context, row priceRow) (updateOutcome, error) {
	var outcome updateOutcome

	err := e.catalogDB.WithWriteLock(ctx, func(tx *database.TxConn) error {
		var state rowState
		err := tx.QueryRowContext(ctx, `
			SELECT price, original_price, discount_percentage, is_available, stock_status
			FROM current_prices WHERE id = ?`, row.ID).
			Scan(&state.Price, &state.OriginalPrice, &state.DiscountPercentage, &state.IsAvailable, &state.StockStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return errRowGone
		}
		if err != nil {
			return fmt.Errorf("failed to re-read price row: %w", err)
		}

		next := e.computeNext(row.ProductName, state)
		outcome.discounted = next.discounted
		outcome.surged = next.surged

		if _, err := tx.ExecContext(ctx, `
			UPDATE current_prices
			SET price = ?, original_price = ?, discount_percentage = ?,
			    is_available = ?, stock_status = ?, last_updated = datetime('now')
			WHERE id = ?`,
			next.price, next.originalPrice, next.discountPct,
			boolToInt(next.available), next.stockStatus, row.ID); err != nil {
			return fmt.Errorf("failed to update price: %w", err)
		}

		delta := next.price - state.Price
		changePct := 0.0
		if state.Price > 0 {
			changePct = delta / state.Price * 100
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO price_history
				(product_id, platform_id, price, original_price, discount_percentage,
				 change_type, change_amount, change_percentage, stock_status, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'engine')`,
			row.ProductID, row.PlatformID, next.price, next.originalPrice, next.discountPct,
			classifyChange(delta), round2(delta), round2(changePct), next.stockStatus); err != nil {
			return fmt.Errorf("failed to journal price change: %w", err)
		}

		if delta > 0 {
			e.metrics.PriceIncreases.Add(1)
		} else if delta < 0 {
			e.metrics.PriceDecreases.Add(1)
		}
		if next.discounted {
			e.metrics.NewDiscounts.Add(1)
		}
		if next.surged {
			e.metrics.SurgeEvents.Add(1)
		}
		if next.available != state.IsAvailable {
			e.metrics.AvailabilityFlips.Add(1)
		}
		return nil
	})

	if errors.Is(err, errRowGone) {
		return updateOutcome{}, nil
	}
	return outcome, err
}

type nextPrice struct {
	price         float64
	originalPrice sql.NullFloat64
	discountPct   sql.NullFloat64
	available     bool
	stockStatus   string
	discounted    bool
	surged        bool
}

// computeNext applies volatility, time-of-day bias, and the discount or
// surge branch to the current state.
func (e *Engine) computeNext(productName string, state rowState) nextPrice {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()

	sigma := sigmaFor(productName)
	delta := (e.rng.Float64()*2 - 1) * e.cfg.MaxChangePct * sigma

	lo, hi := timeOfDayBias(time.Now())
	delta += lo + e.rng.Float64()*(hi-lo)

	// Undo a previous discount baseline so prices do not ratchet down
	base := state.Price
	if state.OriginalPrice.Valid && state.OriginalPrice.Float64 > base {
		base = state.OriginalPrice.Float64
	}
	price := base * (1 + delta)

	next := nextPrice{
		available:   state.IsAvailable,
		stockStatus: state.StockStatus,
	}

	roll := e.rng.Float64()
	switch {
	case roll < e.cfg.DiscountProb:
		discount := 5 + e.rng.Float64()*25 // 5-30%
		next.originalPrice = sql.NullFloat64{Float64: round2(price), Valid: true}
		price = price * (1 - discount/100)
		next.discountPct = sql.NullFloat64{Float64: round2(discount), Valid: true}
		next.discounted = true
	case roll < e.cfg.DiscountProb+e.cfg.SurgeProb:
		price = price * (1.2 + e.rng.Float64()*0.6)
		next.surged = true
	}

	if price < e.cfg.PriceFloor {
		price = e.cfg.PriceFloor
	}
	next.price = round2(price)

	// Keep the discount percentage consistent with the rounded prices
	if next.discountPct.Valid && next.originalPrice.Valid && next.originalPrice.Float64 > 0 {
		next.discountPct.Float64 = round2(100 * (1 - next.price/next.originalPrice.Float64))
		if next.discountPct.Float64 < 0 {
			next.discountPct = sql.NullFloat64{}
			next.originalPrice = sql.NullFloat64{}
			next.discounted = false
		}
	}

	if e.rng.Float64() < availabilityFlipProb {
		next.available = !next.available
		next.stockStatus = stockStatuses[e.rng.Intn(len(stockStatuses))]
		if next.available && next.stockStatus == "out_of_stock" {
			next.stockStatus = "low_stock"
		}
		if !next.available {
			next.stockStatus = "out_of_stock"
		}
	}

	return next
}

func classifyChange(delta float64) string {
	switch {
	case delta > 0.004:
		return "increase"
	case delta < -0.004:
		return "decrease"
	default:
		return "no_change"
	}
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
