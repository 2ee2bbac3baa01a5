package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/identity"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/profile"
	jwtpkg "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/jwt"
)

// IdentityService registers users, logs them in and checks bearer tokens.
type IdentityService interface {
	Register(ctx context.Context, in identity.RegisterInput) (*identity.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*identity.LoginResult, error)
	Authorize(ctx context.Context, token string) (*jwtpkg.Claims, error)
}

// ProfileService reads and changes the caller's own profile.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*domain.ProfileView, error)
	Update(ctx context.Context, userID string, in profile.UpdateInput) (*domain.ProfileView, error)
	VerifyPassword(ctx context.Context, userID, password string) (bool, error)
}

// Options configures a Router.
type Options struct {
	Logger         *slog.Logger
	Identity       IdentityService
	Profile        ProfileService
	Limiter        RateLimiter
	Health         func(context.Context) error
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	GlobalRPS      float64
	GlobalBurst    int
	RequestTimeout time.Duration
	Production     bool
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *chi.Mux
	logger   *slog.Logger
	identity IdentityService
	profile  ProfileService
	limiter  RateLimiter
	global   *ipLimiter
	metrics  *metrics
	health   func(context.Context) error
}

const (
	rateWindowDefault    = time.Minute
	rateLimitRegister    = 5
	rateLimitLogin       = 10
	rateLimitProfileRead = 120
	rateLimitProfileEdit = 30
	rateLimitStepUp      = 10
	healthCheckTimeout   = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg, gatherer := opts.Registerer, opts.Gatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		mux:      chi.NewRouter(),
		logger:   logger,
		identity: opts.Identity,
		profile:  opts.Profile,
		limiter:  opts.Limiter,
		metrics:  newMetrics(reg, gatherer),
		health:   opts.Health,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if opts.GlobalRPS > 0 {
		burst := opts.GlobalBurst
		if burst < 1 {
			burst = 1
		}
		r.global = newIPLimiter(opts.GlobalRPS, burst)
	}
	r.register(opts)
	return r
}

// ServeHTTP delegates to the chi mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
	if r.global != nil {
		r.global.close()
	}
}

func (r *Router) register(opts Options) {
	m := r.mux
	m.Use(middleware.RequestID)
	m.Use(r.audit)
	m.Use(middleware.Recoverer)
	m.Use(securityHeaders(opts.Production))
	if len(opts.AllowedOrigins) > 0 {
		m.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	m.Use(r.globalRateLimit)
	if opts.RequestTimeout > 0 {
		m.Use(middleware.Timeout(opts.RequestTimeout))
	}

	m.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	m.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	m.Get("/healthz", r.handleHealthz)
	m.Method(http.MethodGet, "/metrics", r.metrics.handler)

	m.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", r.withRateLimit("register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister))
		api.Post("/auth/login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin))

		api.Group(func(authed chi.Router) {
			authed.Use(r.requireAuth)
			authed.Get("/profile", r.withRateLimit("profile_read", rateLimitProfileRead, rateWindowDefault, rateLimitKeyUser, r.handleProfileGet))
			authed.Put("/profile", r.withRateLimit("profile_update", rateLimitProfileEdit, rateWindowDefault, rateLimitKeyUser, r.handleProfileUpdate))
			authed.Post("/profile/verify-password", r.withRateLimit("verify_password", rateLimitStepUp, rateWindowDefault, rateLimitKeyUser, r.handleVerifyPassword))
		})
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.health != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.health(ctx); err != nil {
			r.logger.Warn("store health check failed", "error", err)
			status = "degraded"
			components["store"] = map[string]any{"status": "down"}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// audit logs one line per request and records request metrics under the
// matched route pattern.
func (r *Router) audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := routePattern(req)
		r.metrics.recordRequest(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := middleware.GetReqID(req.Context()); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	})
}

func routePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
