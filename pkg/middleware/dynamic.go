package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// PolicySet is the full set of named tiers the path router selects from.
type PolicySet struct {
	General   Policy
	Sensitive Policy
	Metrics   Policy
	Export    Policy
	Batch     Policy
}

// sensitiveSuffixes are wallet state transitions that must stay tightly
// limited regardless of the caller's tier.
var sensitiveSuffixes = []string{"/freeze", "/unfreeze", "/failover", "/primary-switch"}

// DefaultPolicies returns the built-in tier set. The policy file, when
// configured, overrides these.
func DefaultPolicies() PolicySet {
	return PolicySet{
		General: Policy{
			Name:    "general",
			Window:  time.Minute,
			Max:     100,
			Headers: true,
		},
		Sensitive: Policy{
			Name:    "sensitive",
			Window:  5 * time.Minute,
			Max:     10,
			Message: "Too many sensitive operations, please wait before retrying",
			Headers: true,
		},
		Metrics: Policy{
			Name:    "metrics",
			Window:  time.Minute,
			Max:     30,
			Headers: true,
		},
		Export: Policy{
			Name:    "export",
			Window:  10 * time.Minute,
			Max:     5,
			Message: "Export limit reached, please wait before requesting another",
			Headers: true,
		},
		Batch: Policy{
			Name:    "batch",
			Window:  time.Hour,
			Max:     10,
			Message: "Batch operation limit reached",
			Headers: true,
		},
	}
}

// Select picks the tier for a request path. Precedence is fixed: sensitive
// operations beat metrics, metrics beat export, export beats batch, and
// everything else falls through to general.
func (ps PolicySet) Select(path string) Policy {
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(path, suffix) {
			return ps.Sensitive
		}
	}
	if strings.Contains(path, "metrics") || strings.Contains(path, "analytics") {
		return ps.Metrics
	}
	if strings.Contains(path, "export") {
		return ps.Export
	}
	if strings.Contains(path, "batch") {
		return ps.Batch
	}
	return ps.General
}

// PolicyRouter applies the per-path tier selection in front of a shared
// RateLimiter. The policy set can be swapped at runtime for hot reload.
type PolicyRouter struct {
	limiter *RateLimiter

	mu       sync.RWMutex
	policies PolicySet
}

// NewPolicyRouter creates a router over the limiter with the given tier set.
func NewPolicyRouter(limiter *RateLimiter, policies PolicySet) *PolicyRouter {
	return &PolicyRouter{limiter: limiter, policies: policies}
}

// Update swaps the tier set. Safe to call while serving.
func (pr *PolicyRouter) Update(policies PolicySet) {
	pr.mu.Lock()
	pr.policies = policies
	pr.mu.Unlock()
}

// Policies returns a copy of the current tier set.
func (pr *PolicyRouter) Policies() PolicySet {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.policies
}

// Handler rate-limits each request under the tier selected for its path.
func (pr *PolicyRouter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy := pr.Policies().Select(r.URL.Path)
		if pr.limiter.admit(w, r, policy) {
			next.ServeHTTP(w, r)
		}
	})
}
