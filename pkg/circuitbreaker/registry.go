package circuitbreaker

import (
	"context"
	"sync"
)

// Registry holds one breaker per external service name. It is constructed
// once at process start and passed to whatever performs outbound calls; there
// is no package-level singleton.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	defaults  Config
	overrides map[string]Config

	onTransition TransitionFunc
	onRejection  RejectionFunc
}

// NewRegistry creates a registry with per-service config overrides falling
// back to the given defaults.
func NewRegistry(defaults Config, overrides map[string]Config) *Registry {
	if defaults.FailureThreshold <= 0 || defaults.Timeout <= 0 {
		defaults = DefaultConfig()
	}
	return &Registry{
		breakers:  make(map[string]*Breaker),
		defaults:  defaults,
		overrides: overrides,
	}
}

// OnTransition registers a callback invoked on every breaker state change.
// Must be called before the first Get.
func (r *Registry) OnTransition(fn TransitionFunc) {
	r.onTransition = fn
}

// OnRejection registers a callback invoked on every fail-fast rejection.
// Must be called before the first Get.
func (r *Registry) OnRejection(fn RejectionFunc) {
	r.onRejection = fn
}

// Get returns the breaker for a service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double check
	if b, ok := r.breakers[service]; ok {
		return b
	}

	cfg := r.defaults
	if override, ok := r.overrides[service]; ok {
		cfg = override
	}
	b = New(service, cfg)
	b.onTransition = r.onTransition
	b.onRejection = r.onRejection
	r.breakers[service] = b
	return b
}

// Execute runs op under the named service's breaker.
func (r *Registry) Execute(ctx context.Context, service string, op func(context.Context) error) error {
	return r.Get(service).Execute(ctx, op)
}

// Snapshot returns service name to breaker state for observability.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}
