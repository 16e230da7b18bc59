// Package queries is the natural-language query pipeline: validation,
// relevance lookup, fast-path or multi-step dispatch, and result shaping.
package queries

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/apierror"
	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/modules/embedding"
	"github.com/pricelens/pricelens/internal/modules/executor"
	"github.com/pricelens/pricelens/internal/modules/results"
	"github.com/pricelens/pricelens/internal/suggest"
)

// Request is the query endpoint input. Advanced options are zero-valued
// on the basic endpoint.
type Request struct {
	Query   string         `json:"query"`
	UserID  string         `json:"user_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`

	Page           int                    `json:"page,omitempty"`
	PageSize       int                    `json:"page_size,omitempty"`
	SamplingMethod results.SamplingMethod `json:"sampling_method,omitempty"`
	SampleSize     int                    `json:"sample_size,omitempty"`
	ResultFormat   results.Format         `json:"result_format,omitempty"`
}

// Response is the query endpoint output.
type Response struct {
	Query          string           `json:"query"`
	Results        any              `json:"results"`
	ExecutionTime  float64          `json:"execution_time"`
	RelevantTables []string         `json:"relevant_tables"`
	TotalResults   int              `json:"total_results"`
	Cached         bool             `json:"cached"`
	Suggestions    []string         `json:"suggestions,omitempty"`
	Metadata       results.Metadata `json:"metadata"`
}

// Service dispatches NL queries. Fast paths win when their keywords
// match; everything else goes through the multi-step executor, with a
// fast-path sweep as the fallback when the executor aborts.
type Service struct {
	db        *database.DB
	index     *embedding.Index
	executor  *executor.Executor
	processor *results.Processor
	log       zerolog.Logger
}

func NewService(db *database.DB, index *embedding.Index, exec *executor.Executor, processor *results.Processor, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		index:     index,
		executor:  exec,
		processor: processor,
		log:       log.With().Str("component", "queries").Logger(),
	}
}

const (
	relevanceTopK      = 5
	relevanceThreshold = 0.05
)

// Process runs the full pipeline for one request.
func (s *Service) Process(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if apiErr := suggest.ValidateNaturalQuery(req.Query); apiErr != nil {
		return nil, apiErr
	}
	if req.SamplingMethod != "" && !results.ValidSamplingMethod(req.SamplingMethod) {
		return nil, apierror.Validation("unknown sampling_method",
			"use one of: none, random, systematic, stratified, top_n")
	}
	if req.ResultFormat != "" && !results.ValidFormat(req.ResultFormat) {
		return nil, apierror.Validation("unknown result_format",
			"use one of: raw, structured, summary, comparison, chart_data")
	}

	relevantTables := s.relevantTables(ctx, req.Query)

	rows, tables, suggestions, err := s.dispatch(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	relevantTables = union(relevantTables, tables)

	if len(rows) == 0 {
		suggestions = append(suggestions,
			"no matching products found, try a broader product name",
			"check the spelling of product and platform names")
	}

	processed := s.processor.Process(req.Query, rows, results.Options{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Sampling:   req.SamplingMethod,
		SampleSize: req.SampleSize,
		Format:     req.ResultFormat,
	})

	return &Response{
		Query:          req.Query,
		Results:        processed.Results,
		ExecutionTime:  time.Since(start).Seconds(),
		RelevantTables: relevantTables,
		TotalResults:   processed.Metadata.Pagination.TotalCount,
		Cached:         processed.Metadata.CachedAt != nil,
		Suggestions:    suggestions,
		Metadata:       processed.Metadata,
	}, nil
}

// dispatch applies the canonical precedence: matched fast path, then the
// executor, then the cheapest-product sweep as a last resort.
func (s *Service) dispatch(ctx context.Context, query string) (rows []map[string]any, tables []string, suggestions []string, err error) {
	if path, ok := MatchFastPath(query); ok {
		rows, tables, err = s.runFastPath(ctx, path, query)
		if err == nil {
			s.log.Debug().Str("path", string(path)).Int("rows", len(rows)).Msg("Fast path served query")
			return rows, tables, nil, nil
		}
		s.log.Warn().Err(err).Str("path", string(path)).Msg("Fast path failed, trying executor")
	}

	multi, execErr := s.executor.Run(ctx, query)
	if execErr == nil {
		return multi.Rows, baseTables, multi.Suggestions, nil
	}

	// Fallback sweep before surfacing the failure
	rows, tables, err = s.runFastPath(ctx, PathCheapestProduct, query)
	if err == nil && len(rows) > 0 {
		s.log.Debug().Msg("Fallback fast path recovered executor failure")
		return rows, tables, nil, nil
	}

	if multi != nil && multi.Aborted {
		hints := multi.Suggestions
		if len(hints) == 0 {
			hints = []string{"try rephrasing the question"}
		}
		if token := suggest.ProductToken(query); token != "" {
			return nil, nil, nil, apierror.ProductNotFound(token).WithSuggestions(hints...)
		}
		return nil, nil, nil, apierror.QueryProcessing("query could not be completed", execErr, hints...)
	}
	return nil, nil, nil, apierror.QueryProcessing("query could not be completed", execErr,
		"try rephrasing the question", "try one of the sample queries")
}

func (s *Service) runFastPath(ctx context.Context, path FastPath, query string) ([]map[string]any, []string, error) {
	switch path {
	case PathDiscountSearch:
		return s.runDiscounts(ctx, query)
	case PathPlatformComparison:
		return s.runComparison(ctx, query)
	case PathBudgetDeals:
		return s.runBudget(ctx, query)
	default:
		return s.runCheapest(ctx, query)
	}
}

func (s *Service) relevantTables(ctx context.Context, query string) []string {
	if s.index == nil {
		return nil
	}
	hits, err := s.index.RelevantTables(ctx, query, relevanceTopK, relevanceThreshold)
	if err != nil {
		s.log.Debug().Err(err).Msg("Relevance lookup failed")
		return nil
	}
	tables := make([]string, 0, len(hits))
	for _, hit := range hits {
		tables = append(tables, hit.Table)
	}
	return tables
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(a, b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
