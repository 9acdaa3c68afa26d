package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded bearer credential prior to database enrichment.
// Historical token issuers wrote the subject under three different names, so
// SubjectID resolves them in priority order.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string          `json:"userId,omitempty"`
	UserIDAlt   string          `json:"user_id,omitempty"`
	Role        string          `json:"role,omitempty"`
	UserType    string          `json:"userType,omitempty"`
	TenantID    string          `json:"tenantId,omitempty"`
	OrgID       string          `json:"organizationId,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

// SubjectID returns the user ID the credential refers to: the registered
// subject claim, then userId, then user_id. The first non-empty value wins.
func (c *Claims) SubjectID() string {
	if c.Subject != "" {
		return c.Subject
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.UserIDAlt
}
