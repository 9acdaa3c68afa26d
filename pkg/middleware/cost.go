package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/monay/backend-core/pkg/apperrors"
	"github.com/monay/backend-core/pkg/auth"
	"github.com/monay/backend-core/pkg/contextkeys"
	"github.com/monay/backend-core/pkg/httputil"
	"github.com/monay/backend-core/pkg/observability"
)

// LedgerStore accumulates per-principal operation cost in a shared store.
// Debit atomically adds cost to the key's total, setting ttl on first touch,
// and returns the new total. Credit reverses a debit that exceeded budget.
type LedgerStore interface {
	Debit(ctx context.Context, key string, cost int64, ttl time.Duration) (int64, error)
	Credit(ctx context.Context, key string, cost int64) error
}

// CostFunc assigns a cost to a request. Heavier endpoints charge more so the
// budget throttles expensive work, not raw request volume.
type CostFunc func(r *http.Request, principal *auth.Principal) int64

// LedgerTTL bounds each principal's cost window.
const LedgerTTL = time.Hour

// Budget ceilings per window.
const (
	DefaultBudget    int64 = 1000
	SuperAdminBudget int64 = 10000
)

// CostLimiter enforces an hourly per-principal cost budget on top of the
// request-count tiers. Ledger failures fail open, same as the rate limiter.
type CostLimiter struct {
	ledger  LedgerStore
	cost    CostFunc
	errors  *apperrors.Handler
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCostLimiter wires the budget middleware. A nil cost function charges a
// flat cost of 1 per request.
func NewCostLimiter(ledger LedgerStore, cost CostFunc, errors *apperrors.Handler, logger *observability.Logger, metrics *observability.Metrics) *CostLimiter {
	if cost == nil {
		cost = func(*http.Request, *auth.Principal) int64 { return 1 }
	}
	return &CostLimiter{
		ledger:  ledger,
		cost:    cost,
		errors:  errors,
		logger:  logger,
		metrics: metrics,
	}
}

// maxBudget returns the per-window ceiling for a principal role.
func maxBudget(role string) int64 {
	if role == auth.RoleSuperAdmin {
		return SuperAdminBudget
	}
	return DefaultBudget
}

// Handler debits the request's cost against the caller's hourly budget and
// rejects with 429 when the budget would be exceeded.
func (cl *CostLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := GetPrincipal(r)

		key := "ip:" + httputil.ClientIP(r)
		role := ""
		if principal != nil {
			key = "user:" + principal.ID
			role = principal.Role
		}

		cost := cl.cost(r, principal)
		if cost <= 0 {
			cost = 1
		}
		budget := maxBudget(role)

		// Debit first, then roll back on overflow. The increment is the
		// atomic gate; a separate read-then-write would let concurrent
		// requests slip past the ceiling.
		storeCtx := context.WithoutCancel(r.Context())
		total, err := cl.ledger.Debit(storeCtx, key, cost, LedgerTTL)
		if err != nil {
			cl.logger.WithError(err).Warn("cost ledger error, admitting request")
			next.ServeHTTP(w, r)
			return
		}

		if total > budget {
			if err := cl.ledger.Credit(storeCtx, key, cost); err != nil {
				cl.logger.WithError(err).Warn("failed to roll back rejected debit")
			}
			cl.reject(w, r, principal, total-cost, cost, budget)
			return
		}

		if cl.metrics != nil {
			cl.metrics.BudgetDebitsTotal.Inc()
		}
		ctx := contextkeys.WithOperationCost(r.Context(), cost)
		ctx = contextkeys.WithBudgetRemaining(ctx, budget-total)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (cl *CostLimiter) reject(w http.ResponseWriter, r *http.Request, principal *auth.Principal, usage, cost, budget int64) {
	userID := ""
	if principal != nil {
		userID = principal.ID
	}
	cl.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"usage":   usage,
		"cost":    cost,
		"budget":  budget,
		"path":    r.URL.Path,
	}).Warn("cost budget exceeded")

	if cl.metrics != nil {
		cl.metrics.BudgetRejectionsTotal.Inc()
	}

	cl.errors.Write(w, r, apperrors.RateLimit("Operation budget exceeded, please try again later").
		WithDetails(map[string]interface{}{
			"currentUsage":  usage,
			"requestedCost": cost,
			"maxBudget":     budget,
		}).
		WithRetryAfter(LedgerTTL))
}
