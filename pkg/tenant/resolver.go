// Package tenant derives the tenant scope a request's data access is
// restricted to. Resolution is failure-tolerant by contract: a resolver
// error must never abort authentication, and an absent tenant scope means
// "no tenant filter applied", never "all tenants authorized".
package tenant

import (
	"fmt"
	"net/http"

	"github.com/monay/backend-core/pkg/auth"
)

// TenantHeader lets a caller select one of its permitted tenants for the
// request.
const TenantHeader = "X-Tenant-ID"

// Resolver determines the active tenant scope for a principal.
type Resolver interface {
	Resolve(principal *auth.Principal, r *http.Request) error
}

// HeaderResolver scopes a request to the principal's own tenant, honoring
// the X-Tenant-ID header when the principal is allowed to switch: admins and
// cross-tenant principals may select any tenant, everyone else only their
// own.
type HeaderResolver struct{}

// NewHeaderResolver creates the default tenant resolver.
func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{}
}

// Resolve mutates the principal's CurrentTenantID in place.
func (hr *HeaderResolver) Resolve(principal *auth.Principal, r *http.Request) error {
	if principal == nil {
		return fmt.Errorf("no principal to resolve tenant for")
	}

	requested := r.Header.Get(TenantHeader)
	if requested == "" {
		principal.CurrentTenantID = principal.TenantID
		return nil
	}

	if principal.IsAdmin || principal.CrossTenantAccess || requested == principal.TenantID {
		principal.CurrentTenantID = requested
		return nil
	}

	// Not permitted: keep the principal's own tenant rather than failing
	// the request.
	principal.CurrentTenantID = principal.TenantID
	return fmt.Errorf("tenant %q not permitted for user %s", requested, principal.ID)
}
