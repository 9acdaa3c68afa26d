package middleware

import (
	"net/http"

	"github.com/monay/backend-core/pkg/apperrors"
)

// RequireRoles guards a handler behind a role set. With no roles it only
// requires an authenticated principal. Admin principals always pass.
func (m *AuthMiddleware) RequireRoles(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := GetPrincipal(r)
		if principal == nil {
			m.fail(w, r, "missing_token", apperrors.Authentication("Access token is missing"))
			return
		}

		if len(roles) > 0 && !principal.HasRole(roles...) {
			m.logger.WithFields(map[string]interface{}{
				"user_id": principal.ID,
				"role":    principal.Role,
				"path":    r.URL.Path,
			}).Warn("role guard rejected request")
			m.fail(w, r, "forbidden", apperrors.Authorization("Insufficient permissions"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
