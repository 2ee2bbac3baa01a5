package httpx

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerReferrerPolicy          = "Referrer-Policy"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
	headerCacheControl            = "Cache-Control"
)

// securityHeaders sets security-related response headers. HSTS is only sent
// when the service runs behind TLS in production.
func securityHeaders(production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h := w.Header()
			h.Set(headerXContentTypeOptions, "nosniff")
			h.Set(headerXFrameOptions, "DENY")
			h.Set(headerReferrerPolicy, "no-referrer")
			h.Set(headerContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
			h.Set(headerCacheControl, "no-store")
			if production {
				h.Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, req)
		})
	}
}

const (
	ipLimiterCleanupInterval = 5 * time.Minute
	ipLimiterTTL             = 30 * time.Minute
)

type ipLimiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// ipLimiter is a token bucket per client address applied to every route.
type ipLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipLimiterEntry
	rps     rate.Limit
	burst   int
	stopCh  chan struct{}
	once    sync.Once
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	l := &ipLimiter{
		entries: make(map[string]*ipLimiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *ipLimiter) allow(key string) bool {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &ipLimiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = e
	}
	e.lastUse = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

func (l *ipLimiter) cleanupLoop() {
	ticker := time.NewTicker(ipLimiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, e := range l.entries {
				if now.Sub(e.lastUse) > ipLimiterTTL {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *ipLimiter) close() {
	l.once.Do(func() { close(l.stopCh) })
}

func (r *Router) globalRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.global == nil || req.URL.Path == "/healthz" {
			next.ServeHTTP(w, req)
			return
		}
		if !r.global.allow(rateLimitKeyIP(req)) {
			r.metrics.recordRateLimitHit("global", "ip")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}
