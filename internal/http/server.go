// Package http exposes the goal tracker over a JSON API: reconciliation,
// per-category goals, the finance ledger, analytics and the visit streak.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kazutech1/northstar/internal/cache"
	applog "github.com/Kazutech1/northstar/internal/log"
	"github.com/Kazutech1/northstar/internal/services"
	"github.com/Kazutech1/northstar/internal/storage"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Options tunes the server beyond its listen address.
type Options struct {
	Location        *time.Location
	CacheTTL        time.Duration
	CacheMaxEntries int
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.CacheMaxEntries <= 0 {
		o.CacheMaxEntries = 100
	}
	return o
}

type Server struct {
	http.Server

	engine     *services.ReconciliationEngine
	streak     *services.VisitStreakTracker
	aggregator *services.AggregationEngine

	rateLimiter *rateLimiter
	metrics     *securityMetrics
	httpLog     *applog.StructuredLogger

	// Derived analytics are memoized between writes.
	bucketsCache *cache.LRUCache[[]services.WeekBucket]
	statsCache   *cache.LRUCache[services.CategoryStats]
	caches       *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, repo storage.Repository, opts Options) *Server {
	opts = opts.withDefaults()
	mux := http.NewServeMux()
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: applog.Middleware(logger)(mux),
		},
		engine:       services.NewReconciliationEngine(repo),
		streak:       services.NewVisitStreakTracker(repo, opts.Location),
		aggregator:   services.NewAggregationEngine(repo, opts.Location),
		rateLimiter:  newRateLimiter(),
		metrics:      &securityMetrics{},
		httpLog:      applog.NewStructuredLogger(logger),
		bucketsCache: cache.NewLRUCache[[]services.WeekBucket](opts.CacheMaxEntries, opts.CacheTTL),
		statsCache:   cache.NewLRUCache[services.CategoryStats](opts.CacheMaxEntries, opts.CacheTTL),
		caches:       cache.NewManager(),
	}

	s.caches.Register(s.bucketsCache)
	s.caches.Register(s.statsCache)
	s.caches.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /sync", s.protected(s.handleSync))
	mux.HandleFunc("GET /tasks", s.protected(s.handleListTasks))
	mux.HandleFunc("POST /tasks", s.protected(s.handleSaveTask))
	mux.HandleFunc("DELETE /tasks/{id}", s.protected(s.handleDeleteTask))

	mux.HandleFunc("GET /goals/{slug}", s.protected(s.handleListGoals))
	mux.HandleFunc("POST /goals/{slug}", s.protected(s.handleAddGoal))

	mux.HandleFunc("POST /savings", s.protected(s.handleAddSavingsGoal))
	mux.HandleFunc("POST /savings/{id}/add", s.protected(s.handleAddToSavings))
	mux.HandleFunc("GET /savings/main", s.protected(s.handleMainSavings))
	mux.HandleFunc("POST /savings/main", s.protected(s.handleAddToMainSavings))

	mux.HandleFunc("GET /analytics/weekly", s.protected(s.handleWeeklyBuckets))
	mux.HandleFunc("GET /analytics/category/{key}", s.protected(s.handleCategoryStats))

	mux.HandleFunc("GET /streak", s.protected(s.handleStreak))
	mux.HandleFunc("POST /visit", s.protected(s.handleVisit))

	return s
}

// protected adds security headers, rate limiting on writes, and request
// logging.
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		s.httpLog.LogHTTPStart(ctx, r, requestID, clientIP)

		if detectSuspiciousRequest(r, s.metrics) {
			slog.WarnContext(ctx, "Suspicious request", "client_ip", clientIP, "url", r.URL.Path)
		}

		// Rate limit mutating requests only.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.httpLog.LogHTTPEnd(ctx, r, requestID, rw.statusCode, duration.Milliseconds(), clientIP)
	}
}

// invalidateAnalytics drops memoized analytics after any write.
func (s *Server) invalidateAnalytics() {
	s.caches.PurgeAll()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
