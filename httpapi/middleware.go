// middleware.go provides the HTTP middleware stack for the REST
// server: CORS (via rs/cors), request logging, and per-IP rate
// limiting, composed into a chain wrapping any http.Handler. Grounded
// on the teacher's JSON-RPC middleware stack, with the hand-rolled
// CORS/auth/gzip layers replaced or dropped (see DESIGN.md).
package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
)

// HTTPMiddleware is a function that wraps an http.Handler.
type HTTPMiddleware func(http.Handler) http.Handler

// MiddlewareChain composes multiple middleware into a single handler
// chain. The first middleware in the slice is outermost (executes
// first). Returns the inner handler if no middleware.
func MiddlewareChain(handler http.Handler, middlewares ...HTTPMiddleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// CORSMiddleware wraps rs/cors with the simulator's policy: the given
// allowed origins, GET/POST/OPTIONS, and the Content-Type and
// Authorization request headers.
func CORSMiddleware(allowedOrigins []string) HTTPMiddleware {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	})
	return c.Handler
}

// --- Logging Middleware ---

// LogEntry captures a single request/response log record.
type LogEntry struct {
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	RemoteAddr string
	Timestamp  time.Time
}

// LogStore is a simple in-memory log store. Thread-safe.
type LogStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogStore creates a new empty log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Add appends a log entry.
func (ls *LogStore) Add(entry LogEntry) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.entries = append(ls.entries, entry)
}

// Entries returns a copy of all log entries.
func (ls *LogStore) Entries() []LogEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	cp := make([]LogEntry, len(ls.entries))
	copy(cp, ls.entries)
	return cp
}

// Len returns the number of stored entries.
func (ls *LogStore) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.entries)
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware returns middleware that logs request/response
// metadata to the provided LogStore.
func LoggingMiddleware(store *LogStore) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			store.Add(LogEntry{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rec.statusCode,
				Duration:   time.Since(start),
				RemoteAddr: r.RemoteAddr,
				Timestamp:  start,
			})
		})
	}
}

// --- Rate Limiting Middleware ---

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the max requests per second per IP.
	RequestsPerSecond int
}

// rateLimiterState tracks request timestamps per client IP.
type rateLimiterState struct {
	mu       sync.Mutex
	requests map[string][]time.Time
}

// RateLimitMiddleware returns middleware that limits requests per IP.
func RateLimitMiddleware(config RateLimitConfig) HTTPMiddleware {
	state := &rateLimiterState{requests: make(map[string][]time.Time)}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 100
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r)
			now := time.Now()
			windowStart := now.Add(-time.Second)

			state.mu.Lock()
			times := state.requests[ip]
			cleaned := times[:0]
			for _, t := range times {
				if t.After(windowStart) {
					cleaned = append(cleaned, t)
				}
			}

			if len(cleaned) >= rps {
				state.mu.Unlock()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			state.requests[ip] = append(cleaned, now)
			state.mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP extracts the client IP from a request, checking
// X-Forwarded-For and X-Real-IP headers first.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}
