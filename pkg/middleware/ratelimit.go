package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/monay/backend-core/pkg/apperrors"
	"github.com/monay/backend-core/pkg/auth"
	"github.com/monay/backend-core/pkg/httputil"
	"github.com/monay/backend-core/pkg/observability"
)

// Policy defines one named rate-limit tier.
type Policy struct {
	Name   string
	Window time.Duration
	// Max is the request ceiling per window. RoleMax overrides it for
	// specific principal roles.
	Max     int
	RoleMax map[string]int
	Message string
	// KeyByIP forces IP keying even for authenticated principals. Used on
	// auth endpoints so rotating credentials cannot bypass the limit.
	KeyByIP bool
	// Headers enables the X-RateLimit-* response headers.
	Headers bool
}

// Limit resolves the ceiling for a principal role.
func (p Policy) Limit(role string) int {
	if ceiling, ok := p.RoleMax[role]; ok {
		return ceiling
	}
	return p.Max
}

// CounterStore is the shared, process-external window counter. Incr must be
// atomic: a check-then-increment pair is not acceptable under concurrent
// requests for the same key.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// GlobalCounter exposes a per-principal total independent of any window,
// used by the distributed variant to impose a hard global ceiling.
type GlobalCounter interface {
	GlobalCount(ctx context.Context, principalID string) (int64, error)
}

// GlobalCeiling is the per-principal global count above which all requests
// are blocked regardless of the local window.
const GlobalCeiling = 1000

// RateLimiter admits or rejects requests against named policies backed by a
// shared counter store. Counter-store failures fail open: an unavailable
// store must not take the API down with it.
type RateLimiter struct {
	store       CounterStore
	global      GlobalCounter
	errors      *apperrors.Handler
	logger      *observability.Logger
	metrics     *observability.Metrics
	environment string
}

// NewRateLimiter creates a rate limiter over the given counter store.
func NewRateLimiter(store CounterStore, errors *apperrors.Handler, logger *observability.Logger, metrics *observability.Metrics, environment string) *RateLimiter {
	return &RateLimiter{
		store:       store,
		errors:      errors,
		logger:      logger,
		metrics:     metrics,
		environment: environment,
	}
}

// WithGlobalCounter enables the global per-principal ceiling check.
func (l *RateLimiter) WithGlobalCounter(global GlobalCounter) *RateLimiter {
	l.global = global
	return l
}

// Require wraps a handler with a fixed policy.
func (l *RateLimiter) Require(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.admit(w, r, policy) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// admit applies the policy to one request. It returns false after writing
// the 429 response when the request must not proceed.
func (l *RateLimiter) admit(w http.ResponseWriter, r *http.Request, policy Policy) bool {
	principal := GetPrincipal(r)

	// System principals bypass limits in development only; the exemption
	// must never apply in any other runtime.
	if principal != nil && principal.Role == auth.RoleSystem && l.environment == "development" {
		return true
	}

	key := "ip:" + httputil.ClientIP(r)
	if principal != nil && !policy.KeyByIP {
		key = "user:" + principal.ID
	}
	key = policy.Name + ":" + key

	limit := l.Limit(r.Context(), principal, policy)

	// Counter mutations run on a detached context so a client disconnect
	// mid-increment cannot half-apply the window count.
	storeCtx := context.WithoutCancel(r.Context())
	count, ttl, err := l.store.Incr(storeCtx, key, policy.Window)
	if err != nil {
		// Fail open: log and admit rather than blocking on store trouble.
		if l.metrics != nil {
			l.metrics.RateLimitStoreErrors.Inc()
		}
		l.logger.WithError(err).WithField("policy", policy.Name).Warn("rate limit store error, admitting request")
		return true
	}

	if limit <= 0 || count > int64(limit) {
		l.reject(w, r, policy, principal, limit, ttl)
		return false
	}

	if policy.Headers {
		writeRateHeaders(w, limit, int64(limit)-count, ttl)
	}
	if l.metrics != nil {
		l.metrics.RateLimitAdmittedTotal.WithLabelValues(policy.Name).Inc()
	}
	return true
}

// Limit resolves the effective ceiling, applying the global per-principal
// ceiling when a global counter is configured.
func (l *RateLimiter) Limit(ctx context.Context, principal *auth.Principal, policy Policy) int {
	role := ""
	if principal != nil {
		role = principal.Role
	}
	limit := policy.Limit(role)

	if l.global != nil && principal != nil {
		globalCount, err := l.global.GlobalCount(ctx, principal.ID)
		if err == nil && globalCount > GlobalCeiling {
			return 0
		}
	}
	return limit
}

func (l *RateLimiter) reject(w http.ResponseWriter, r *http.Request, policy Policy, principal *auth.Principal, limit int, ttl time.Duration) {
	userID := ""
	if principal != nil {
		userID = principal.ID
	}
	l.logger.WithFields(map[string]interface{}{
		"policy":  policy.Name,
		"user_id": userID,
		"ip":      httputil.ClientIP(r),
		"path":    r.URL.Path,
		"method":  r.Method,
	}).Warn("rate limit exceeded")

	if l.metrics != nil {
		l.metrics.RateLimitRejectedTotal.WithLabelValues(policy.Name).Inc()
	}

	if policy.Headers {
		writeRateHeaders(w, limit, 0, ttl)
	}

	message := policy.Message
	if message == "" {
		message = "Too many requests, please try again later"
	}
	if ttl <= 0 {
		ttl = policy.Window
	}
	l.errors.Write(w, r, apperrors.RateLimit(message).
		WithDetails(map[string]interface{}{
			"limit":    limit,
			"windowMs": policy.Window.Milliseconds(),
		}).
		WithRetryAfter(ttl))
}

func writeRateHeaders(w http.ResponseWriter, limit int, remaining int64, ttl time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
}
