package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/monay/backend-core/pkg/apperrors"
)

// Verifier validates bearer credentials signed with the shared HMAC secret.
// Verification is pure: the user-record lookup happens in the middleware.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the configured signing secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify decodes and cryptographically verifies a raw token. A missing token
// and an invalid/expired one map to distinct authentication errors so the
// middleware can render 401 vs 403.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, apperrors.Authentication("Access token is missing")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, apperrors.Authentication("Invalid or expired token").WithCause(err)
	}
	if !token.Valid {
		return nil, apperrors.Authentication("Invalid or expired token")
	}

	return claims, nil
}

// Issue signs a fresh credential for the given user record, valid for ttl.
// Used by the development bypass to synthesize a short-lived admin token.
func (v *Verifier) Issue(rec *UserRecord, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:        rec.Role,
		TenantID:    rec.TenantID,
		OrgID:       rec.OrganizationID,
		Permissions: rec.Permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
