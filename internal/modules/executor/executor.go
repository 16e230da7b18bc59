// Package executor runs natural-language queries as a DAG of typed steps.
//
// A template (picked by keyword scan) seeds the step list. Steps execute in
// dependency order; a failing step goes through its type's recovery
// strategies before being declared failed, and a failed critical step
// aborts the remainder of the run.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/modules/catalog"
	"github.com/pricelens/pricelens/internal/modules/planner"
	"github.com/pricelens/pricelens/internal/suggest"
)

// MaxRows caps the final result set regardless of template.
const MaxRows = 50

const baseStepTimeout = 5 * time.Second

// Executor builds and runs multi-step plans against the catalog database.
type Executor struct {
	db      *database.DB
	catalog *catalog.Catalog
	planner *planner.Planner
	log     zerolog.Logger
}

func New(db *database.DB, cat *catalog.Catalog, pl *planner.Planner, log zerolog.Logger) *Executor {
	return &Executor{
		db:      db,
		catalog: cat,
		planner: pl,
		log:     log.With().Str("component", "executor").Logger(),
	}
}

// SelectTemplate picks the query family by keyword scan.
func SelectTemplate(query string) Template {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "compare") || strings.Contains(lower, " vs ") ||
		strings.Contains(lower, "versus") || strings.Contains(lower, "between"):
		return TemplatePriceComparison
	case strings.Contains(lower, "discount") || strings.Contains(lower, "deal") ||
		strings.Contains(lower, "% off") || strings.Contains(lower, "offer"):
		return TemplateDiscountSearch
	default:
		return TemplateProductSearch
	}
}

// Run executes the query end to end and returns the aggregated outcome.
// The returned error is non-nil only when a critical step failed after
// recovery; partial failures of non-critical steps are reported in the
// result, not as an error.
func (e *Executor) Run(ctx context.Context, query string) (*MultiStepResult, error) {
	start := time.Now()
	template := SelectTemplate(query)
	token := suggest.ProductToken(query)

	plan, err := e.planner.Plan(query, []string{"products", "current_prices", "platforms"}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to plan query: %w", err)
	}

	steps := e.buildSteps(template, token, plan)
	for _, step := range steps {
		step.Status = StatusPending
	}
	result := &MultiStepResult{Template: template, Steps: steps}

	state := &runState{
		token:      token,
		joinStyle:  "JOIN",
		filter:     "pl.is_active = 1 AND cp.is_available = 1",
		orderBy:    orderByFor(template),
		sampleStep: false,
	}

	completed := make(map[string]bool, len(steps))
	for _, step := range steps {
		if !depsMet(step, completed) {
			step.Status = StatusSkipped
			continue
		}

		step.Status = StatusInProgress
		result.StepsExecuted++

		err := e.runStep(ctx, step, state, result)
		if err == nil {
			step.Status = StatusCompleted
			completed[step.ID] = true
			continue
		}

		step.Status = StatusFailed
		step.Hint = err.Error()
		result.StepsFailed++
		result.Suggestions = append(result.Suggestions, suggestionFor(step, state))

		if step.Type.Critical() {
			result.Aborted = true
			result.TotalTime = time.Since(start)
			e.log.Warn().
				Str("step", step.ID).
				Str("template", string(template)).
				Err(err).
				Msg("Critical step failed, aborting run")
			return result, fmt.Errorf("critical step %s failed: %w", step.ID, err)
		}
	}

	result.TotalTime = time.Since(start)
	e.log.Debug().
		Str("template", string(template)).
		Int("rows", len(result.Rows)).
		Int("failed", result.StepsFailed).
		Dur("took", result.TotalTime).
		Msg("Multi-step run finished")
	return result, nil
}

// runState carries the mutable SQL fragments steps hand to each other.
type runState struct {
	token      string
	joinStyle  string // JOIN or LEFT JOIN, demoted by join recovery
	filter     string
	orderBy    string
	sampleStep bool
}

func depsMet(step *Step, completed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func (e *Executor) buildSteps(template Template, token string, plan *planner.ExecutionPlan) []*Step {
	steps := []*Step{
		{
			ID:          "tables",
			Type:        StepTableSelection,
			Description: "verify the tables the query needs exist",
			Expect:      KindExists,
			Timeout:     baseStepTimeout,
		},
	}

	if token != "" {
		steps = append(steps, &Step{
			ID:            "product",
			Type:          StepDataValidation,
			Description:   fmt.Sprintf("check products matching %q exist", token),
			ValidationSQL: "SELECT COUNT(*) FROM products WHERE LOWER(name) LIKE ?",
			Expect:        KindCount,
			Timeout:       baseStepTimeout,
			RetryBudget:   1,
			DependsOn:     []string{"tables"},
		})
	}

	joinDep := "tables"
	if token != "" {
		joinDep = "product"
	}
	steps = append(steps,
		&Step{
			ID:            "joins",
			Type:          StepJoinValidation,
			Description:   "trial the price-to-product join",
			ValidationSQL: "SELECT COUNT(*) FROM current_prices cp JOIN products p ON cp.product_id = p.id",
			Expect:        KindCount,
			Timeout:       baseStepTimeout,
			RetryBudget:   1,
			DependsOn:     []string{joinDep},
		},
		&Step{
			ID:          "filters",
			Type:        StepFilterApplication,
			Description: "compose WHERE fragment",
			Expect:      KindExists,
			Timeout:     baseStepTimeout,
			DependsOn:   []string{"joins"},
		},
		&Step{
			ID:          "ordering",
			Type:        StepAggregation,
			Description: "attach ORDER BY",
			Expect:      KindExists,
			Timeout:     baseStepTimeout,
			DependsOn:   []string{"filters"},
		},
	)

	formatDeps := []string{"ordering"}
	if plan != nil && plan.ComplexityScore >= 7 {
		steps = append(steps, &Step{
			ID:          "sampling",
			Type:        StepSampling,
			Description: "mark result set for sampling",
			Expect:      KindExists,
			Timeout:     baseStepTimeout,
			DependsOn:   []string{"ordering"},
		})
		formatDeps = []string{"sampling"}
	}

	steps = append(steps, &Step{
		ID:          "format",
		Type:        StepResultFormatting,
		Description: fmt.Sprintf("run the %s query", template),
		Expect:      KindRows,
		Timeout:     2 * baseStepTimeout,
		DependsOn:   formatDeps,
	})

	return steps
}

func (e *Executor) runStep(ctx context.Context, step *Step, state *runState, result *MultiStepResult) error {
	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	switch step.Type {
	case StepTableSelection:
		for _, table := range []string{"products", "current_prices", "platforms"} {
			if !e.catalog.Has(table) {
				return fmt.Errorf("required table %s missing", table)
			}
		}
		return nil

	case StepDataValidation:
		return e.validateData(stepCtx, step, state, result)

	case StepJoinValidation:
		return e.validateJoin(stepCtx, step, state, result)

	case StepFilterApplication:
		if state.token != "" {
			state.filter += " AND LOWER(p.name) LIKE '%" + sqlEscape(strings.ToLower(state.token)) + "%'"
		}
		if result.Template == TemplateDiscountSearch {
			state.filter += " AND cp.discount_percentage > 0"
		}
		if strings.Count(state.filter, "'")%2 != 0 {
			return fmt.Errorf("unbalanced quoting in filter fragment")
		}
		return nil

	case StepAggregation:
		return nil

	case StepSampling:
		state.sampleStep = true
		return nil

	case StepResultFormatting:
		sqlText := fmt.Sprintf(
			"SELECT p.id AS product_id, p.name AS product_name, pl.name AS platform_name, "+
				"cp.price AS current_price, cp.original_price, cp.discount_percentage, "+
				"cp.is_available, cp.last_updated "+
				"FROM current_prices cp %s products p ON cp.product_id = p.id "+
				"%s platforms pl ON cp.platform_id = pl.id "+
				"WHERE %s ORDER BY %s LIMIT %d",
			state.joinStyle, state.joinStyle, state.filter, state.orderBy, MaxRows)
		rows, err := e.queryMaps(stepCtx, sqlText)
		if err != nil {
			return err
		}
		result.Rows = rows
		return nil

	default:
		return fmt.Errorf("unknown step type %s", step.Type)
	}
}

// validateData counts products matching the token. Recovery broadens the
// pattern to a three-letter prefix before giving up.
func (e *Executor) validateData(ctx context.Context, step *Step, state *runState, result *MultiStepResult) error {
	patterns := []string{"%" + strings.ToLower(state.token) + "%"}
	if len(state.token) > 3 {
		patterns = append(patterns, "%"+strings.ToLower(state.token[:3])+"%")
	}

	for i, pattern := range patterns {
		var count int
		if err := e.db.QueryRowContext(ctx, step.ValidationSQL, pattern).Scan(&count); err != nil {
			return fmt.Errorf("data validation query failed: %w", err)
		}
		if count > 0 {
			if i > 0 {
				step.Recovered = true
				result.RecoveryApplied = true
				state.token = state.token[:3]
			}
			return nil
		}
	}
	return fmt.Errorf("no products match %q", state.token)
}

// validateJoin trials the join and demotes INNER to LEFT when it yields
// nothing.
func (e *Executor) validateJoin(ctx context.Context, step *Step, state *runState, result *MultiStepResult) error {
	var count int
	if err := e.db.QueryRowContext(ctx, step.ValidationSQL).Scan(&count); err != nil {
		return fmt.Errorf("join validation query failed: %w", err)
	}
	if count > 0 {
		return nil
	}

	left := strings.Replace(step.ValidationSQL, " JOIN ", " LEFT JOIN ", 1)
	if err := e.db.QueryRowContext(ctx, left).Scan(&count); err != nil {
		return fmt.Errorf("join validation query failed: %w", err)
	}
	if count > 0 {
		state.joinStyle = "LEFT JOIN"
		step.Recovered = true
		result.RecoveryApplied = true
		return nil
	}
	return fmt.Errorf("join produced no rows")
}

func (e *Executor) queryMaps(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return database.RowsToMaps(rows)
}

func orderByFor(template Template) string {
	switch template {
	case TemplateDiscountSearch:
		return "cp.discount_percentage DESC"
	case TemplatePriceComparison:
		return "p.name ASC, cp.price ASC"
	default:
		return "cp.price ASC"
	}
}

func suggestionFor(step *Step, state *runState) string {
	switch step.Type {
	case StepDataValidation:
		return fmt.Sprintf("no products matched %q, try a broader name or check spelling", state.token)
	case StepJoinValidation:
		return "price data is incomplete for the matched products, try again shortly"
	case StepFilterApplication:
		return "filters could not be applied, try simplifying the question"
	default:
		return "query could not be completed, try rephrasing"
	}
}

func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
