// Package middleware implements the request-protection pipeline: bearer-token
// authentication with tenant resolution, role guards, tiered and cost-based
// rate limiting over a shared counter store.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/monay/backend-core/pkg/apperrors"
	"github.com/monay/backend-core/pkg/auth"
	"github.com/monay/backend-core/pkg/contextkeys"
	"github.com/monay/backend-core/pkg/observability"
	"github.com/monay/backend-core/pkg/tenant"
)

// DevBypassHeader lets local tooling authenticate as the reserved admin user
// without a signed token. Honored only when the environment is "development".
const DevBypassHeader = "X-Dev-Admin"

// devBypassTokenTTL bounds the synthesized bypass credential.
const devBypassTokenTTL = 24 * time.Hour

// AuthMiddleware authenticates requests: it verifies the bearer token, loads
// the user record, derives the principal, and resolves the tenant scope.
type AuthMiddleware struct {
	verifier    *auth.Verifier
	users       auth.UserStore
	tenants     tenant.Resolver
	errors      *apperrors.Handler
	logger      *observability.Logger
	metrics     *observability.Metrics
	environment string
	adminEmail  string
}

// NewAuthMiddleware wires the authentication middleware. adminEmail is the
// reserved address whose record is always treated as an administrator.
func NewAuthMiddleware(verifier *auth.Verifier, users auth.UserStore, tenants tenant.Resolver, errors *apperrors.Handler, logger *observability.Logger, metrics *observability.Metrics, environment, adminEmail string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:    verifier,
		users:       users,
		tenants:     tenants,
		errors:      errors,
		logger:      logger,
		metrics:     metrics,
		environment: environment,
		adminEmail:  adminEmail,
	}
}

// Handler is the standard authentication middleware.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return m.authenticate(next, false)
}

// PlatformAdminHandler authenticates like Handler and additionally marks the
// principal for cross-tenant platform access. Tenant resolution is skipped:
// platform admins operate across all tenants.
func (m *AuthMiddleware) PlatformAdminHandler(next http.Handler) http.Handler {
	return m.authenticate(next, true)
}

func (m *AuthMiddleware) authenticate(next http.Handler, platformAdmin bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.environment == "development" && r.Header.Get(DevBypassHeader) != "" {
			m.serveBypass(w, r, next, platformAdmin)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			m.fail(w, r, "missing_token", apperrors.Authentication("Access token is missing"))
			return
		}

		claims, err := m.verifier.Verify(raw)
		if err != nil {
			// Invalid or expired tokens render as 403: the caller presented
			// credentials, they were just not acceptable.
			appErr := apperrors.Authentication("Invalid or expired token").
				WithStatus(http.StatusForbidden).
				WithCause(err)
			m.fail(w, r, "invalid_token", appErr)
			return
		}

		subject := claims.SubjectID()
		if subject == "" {
			m.fail(w, r, "invalid_token", apperrors.Authentication("Invalid or expired token").WithStatus(http.StatusForbidden))
			return
		}

		rec, err := m.users.FindByID(r.Context(), subject)
		if err != nil {
			m.logger.WithError(err).WithField("user_id", subject).Error("user lookup failed during authentication")
			m.fail(w, r, "store_error", apperrors.Database("Failed to resolve user"))
			return
		}
		if rec == nil {
			m.fail(w, r, "unknown_user", apperrors.Authentication("User not found"))
			return
		}

		principal := auth.NewPrincipal(claims, rec, m.adminEmail)
		m.admit(w, r, next, principal, platformAdmin)
	})
}

// serveBypass authenticates as the reserved admin without a signed token.
func (m *AuthMiddleware) serveBypass(w http.ResponseWriter, r *http.Request, next http.Handler, platformAdmin bool) {
	rec, err := m.users.FindByEmail(r.Context(), m.adminEmail)
	if err != nil {
		m.logger.WithError(err).Error("admin lookup failed during development bypass")
		m.fail(w, r, "store_error", apperrors.Database("Failed to resolve user"))
		return
	}
	if rec == nil {
		m.fail(w, r, "unknown_user", apperrors.Authentication("User not found"))
		return
	}

	// Synthesize a real short-lived credential so downstream code sees a
	// principal indistinguishable from a signed login.
	signed, err := m.verifier.Issue(rec, devBypassTokenTTL)
	if err != nil {
		m.logger.WithError(err).Error("failed to issue development bypass token")
		m.fail(w, r, "store_error", apperrors.Internal("An unexpected error occurred"))
		return
	}
	claims, err := m.verifier.Verify(signed)
	if err != nil {
		m.fail(w, r, "invalid_token", apperrors.Internal("An unexpected error occurred"))
		return
	}

	m.logger.WithField("email", rec.Email).Warn("development auth bypass used")
	principal := auth.NewPrincipal(claims, rec, m.adminEmail)
	m.admit(w, r, next, principal, platformAdmin)
}

func (m *AuthMiddleware) admit(w http.ResponseWriter, r *http.Request, next http.Handler, principal *auth.Principal, platformAdmin bool) {
	if platformAdmin {
		if !principal.IsAdmin {
			m.fail(w, r, "forbidden", apperrors.Authorization("Platform administrator access required"))
			return
		}
		principal.AccessType = auth.AccessTypePlatformAdmin
		principal.CrossTenantAccess = true
	} else if m.tenants != nil {
		// Tenant resolution is failure-tolerant: a rejected tenant switch
		// keeps the principal's own scope and the request proceeds.
		if err := m.tenants.Resolve(principal, r); err != nil {
			m.logger.WithError(err).WithField("user_id", principal.ID).Warn("tenant resolution rejected")
		}
	}

	if m.metrics != nil {
		m.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	}

	ctx := contextkeys.WithPrincipal(r.Context(), principal)
	ctx = contextkeys.WithUserID(ctx, principal.ID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *AuthMiddleware) fail(w http.ResponseWriter, r *http.Request, outcome string, err *apperrors.AppError) {
	if m.metrics != nil {
		m.metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	}
	m.errors.Write(w, r, err)
}

// bearerToken extracts the credential from the Authorization header. Returns
// "" when the header is absent or not a two-part Bearer value.
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// GetPrincipal returns the authenticated principal attached to the request,
// or nil before authentication.
func GetPrincipal(r *http.Request) *auth.Principal {
	principal, _ := r.Context().Value(contextkeys.PrincipalKey).(*auth.Principal)
	return principal
}
