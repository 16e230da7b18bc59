package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pricelens/pricelens/internal/apierror"
)

const maxBodyBytes = 10 << 20 // 10 MB

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// requestValidation rejects oversized bodies and non-JSON mutating
// requests before any handler work.
func (s *Server) requestValidation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBodyBytes {
			writeError(w, r, apierror.RequestTooLarge(maxBodyBytes))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if r.ContentLength > 0 && !strings.HasPrefix(ct, "application/json") {
				writeError(w, r, apierror.UnsupportedMediaType(ct))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the standard hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-XSS-Protection", "0")
		next.ServeHTTP(w, r)
	})
}

// requestLogger assigns a request id, times the request, and feeds the
// API usage monitor.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))
		took := time.Since(start)

		route := r.Method + " " + routePattern(r)
		if s.apiMonitor != nil {
			s.apiMonitor.Record(route, recorder.status, took)
		}

		s.log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("took", took).
			Msg("Request")
	})
}

// routePattern resolves the matched chi pattern, falling back to the raw
// path before routing has happened.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// rateLimiter holds per-client token buckets for one route class.
type rateLimiter struct {
	perMinute int

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const rateLimiterMaxClients = 10000

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*clientBucket),
	}
}

func (l *rateLimiter) allow(remoteAddr string) bool {
	key := remoteAddr
	if idx := strings.LastIndex(key, ":"); idx > 0 {
		key = key[:idx]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= rateLimiterMaxClients {
			l.pruneLocked()
		}
		bucket = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute),
		}
		l.clients[key] = bucket
	}
	bucket.lastSeen = time.Now()
	return bucket.limiter.Allow()
}

func (l *rateLimiter) pruneLocked() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for key, bucket := range l.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// routeLimit binds one route class to its token bucket. Prefix matching
// keeps the limiter ahead of chi routing, so more specific prefixes must
// come first in the table.
type routeLimit struct {
	method  string // empty matches any method
	prefix  string
	limiter *rateLimiter
}

func (s *Server) buildRateLimits() []routeLimit {
	return []routeLimit{
		{http.MethodPost, "/api/v1/query/advanced", newRateLimiter(limitAdvanced)},
		{http.MethodPost, "/api/v1/query/", newRateLimiter(limitQuery)},
		{"", "/api/v1/products/compare", newRateLimiter(limitCompare)},
		{http.MethodGet, "/api/v1/products/trend", newRateLimiter(s.rateDefault)},
		{http.MethodGet, "/api/v1/deals/campaigns", newRateLimiter(limitCampaigns)},
		{"", "/api/v1/deals/", newRateLimiter(limitDeals)},
	}
}

// rateLimit enforces the per-endpoint buckets before logging and the
// health gate. Routes outside the table (monitoring, the event stream)
// are unlimited.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, rl := range s.rateLimits {
			if rl.method != "" && rl.method != r.Method {
				continue
			}
			if !strings.HasPrefix(r.URL.Path, rl.prefix) {
				continue
			}
			if !rl.limiter.allow(r.RemoteAddr) {
				writeError(w, r, apierror.RateLimit(60))
				return
			}
			break
		}
		next.ServeHTTP(w, r)
	})
}

// dbHealthGate fails fast with a 503 when the catalog database does not
// answer a liveness probe.
func (s *Server) dbHealthGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.catalogDB.QuickCheck(ctx); err != nil {
			writeError(w, r, apierror.Database("database is unavailable", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}
