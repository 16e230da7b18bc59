package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pricelens/pricelens/internal/apierror"
	"github.com/pricelens/pricelens/internal/modules/deals"
	"github.com/pricelens/pricelens/internal/modules/queries"
)

// handleQuery serves POST /api/v1/query/.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queries.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.Validation("invalid JSON body", "send {\"query\": \"...\"}"))
		return
	}
	// The basic endpoint ignores advanced options
	req.Page, req.PageSize, req.SampleSize = 0, 0, 0
	req.SamplingMethod, req.ResultFormat = "", ""

	resp, err := s.queries.Process(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQueryAdvanced serves POST /api/v1/query/advanced.
func (s *Server) handleQueryAdvanced(w http.ResponseWriter, r *http.Request) {
	var req queries.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.Validation("invalid JSON body", "send {\"query\": \"...\"}"))
		return
	}

	resp, err := s.queries.Process(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// compareParams accepts both query-string and JSON-body inputs.
type compareParams struct {
	ProductName string   `json:"product_name"`
	Platforms   []string `json:"platforms,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// handleCompare serves GET and POST /api/v1/products/compare.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var params compareParams
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, r, apierror.Validation("invalid JSON body"))
			return
		}
	} else {
		q := r.URL.Query()
		params.ProductName = q.Get("product_name")
		params.Category = q.Get("category")
		if raw := q.Get("platforms"); raw != "" {
			params.Platforms = strings.Split(raw, ",")
		}
	}

	if err := validatePlatforms(params.Platforms); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.comparison.Compare(r.Context(), params.ProductName, params.Platforms, params.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTrend serves GET /api/v1/products/trend?product=.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := s.trends.Compute(r.Context(), r.URL.Query().Get("product"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// handleDeals serves GET and POST /api/v1/deals/.
func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	var filter deals.Filter
	if r.Method == http.MethodPost {
		var body struct {
			Platform     string  `json:"platform"`
			Category     string  `json:"category"`
			MinDiscount  float64 `json:"min_discount"`
			FeaturedOnly bool    `json:"featured_only"`
			Limit        int     `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, apierror.Validation("invalid JSON body"))
			return
		}
		filter = deals.Filter{
			Platform:     body.Platform,
			Category:     body.Category,
			MinDiscount:  body.MinDiscount,
			FeaturedOnly: body.FeaturedOnly,
			Limit:        body.Limit,
		}
	} else {
		q := r.URL.Query()
		filter.Platform = q.Get("platform")
		filter.Category = q.Get("category")
		if raw := q.Get("min_discount"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeError(w, r, apierror.Validation("min_discount must be a number"))
				return
			}
			filter.MinDiscount = v
		}
		filter.FeaturedOnly = q.Get("featured_only") == "true"
		if raw := q.Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, apierror.Validation("limit must be an integer"))
				return
			}
			filter.Limit = v
		}
	}

	if apiErr := filter.Validate(queries.KnownPlatforms); apiErr != nil {
		writeError(w, r, apiErr)
		return
	}

	items, err := s.deals.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deals": items,
		"total": len(items),
	})
}

// handleCampaigns serves GET /api/v1/deals/campaigns.
func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.deals.ActiveCampaigns(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}

// handleHealth serves GET /api/v1/monitoring/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"catalog_db": "healthy",
		"kv_db":      "healthy",
		"engine":     "stopped",
	}
	status := http.StatusOK

	if err := s.catalogDB.QuickCheck(r.Context()); err != nil {
		components["catalog_db"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if s.kvDB != nil {
		if err := s.kvDB.QuickCheck(r.Context()); err != nil {
			components["kv_db"] = "unhealthy"
		}
	} else {
		components["kv_db"] = "disabled"
	}
	if s.engine != nil && s.engine.Status().Running {
		components["engine"] = "running"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}

// handleDatabasePerformance serves GET /api/v1/monitoring/database/performance.
func (s *Server) handleDatabasePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":     s.monitors.DB.Stats(),
		"pool":        s.catalogDB.GetPoolStats(),
		"suggestions": s.monitors.DB.Suggestions(),
	})
}

// handleSlowQueries serves GET /api/v1/monitoring/database/slow-queries.
func (s *Server) handleSlowQueries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	slow := s.monitors.DB.SlowQueries(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"slow_queries": slow,
		"total":        len(slow),
	})
}

// handleCacheStats serves GET /api/v1/monitoring/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitors.Cache.Stats())
}

// handleMetricsSummary serves GET /api/v1/monitoring/metrics/summary.
func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	summary := map[string]any{
		"metrics": s.monitors.Comprehensive(),
	}
	if s.engine != nil {
		summary["engine"] = s.engine.Status()
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleMetricsRealtime serves GET /api/v1/monitoring/metrics/realtime.
func (s *Server) handleMetricsRealtime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitors.Realtime())
}

// handleAlerts serves GET /api/v1/monitoring/alerts.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	alerts := s.monitors.Alerts.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// handleCacheInvalidate serves POST /api/v1/monitoring/cache/invalidate/{namespace}.
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if namespace == "" {
		writeError(w, r, apierror.Validation("namespace is required"))
		return
	}
	removed := s.cache.InvalidateNamespace(namespace)
	writeJSON(w, http.StatusOK, map[string]any{
		"namespace":   namespace,
		"invalidated": removed,
	})
}

func validatePlatforms(platforms []string) *apierror.Error {
	for _, p := range platforms {
		known := false
		for _, k := range queries.KnownPlatforms {
			if strings.EqualFold(k, p) {
				known = true
				break
			}
		}
		if !known {
			return apierror.Validation(
				"unknown platform \""+p+"\"",
				"known platforms: "+strings.Join(queries.KnownPlatforms, ", "))
		}
	}
	return nil
}
