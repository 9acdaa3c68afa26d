package auth

// Role tags used by the derivation rules and the authorization guard.
const (
	RoleUser          = "user"
	RoleAdmin         = "admin"
	RolePlatformAdmin = "platform_admin"
	RoleSuperAdmin    = "super_admin"
	RoleSystem        = "system"
)

// AccessTypePlatformAdmin marks principals resolved through the
// platform-admin middleware variant.
const AccessTypePlatformAdmin = "platform_admin"

// UserRecord is the persisted user row backing a principal.
type UserRecord struct {
	ID             string
	Email          string
	Role           string
	UserType       string
	TenantID       string
	OrganizationID string
	Permissions    map[string]bool
}

// Principal is the authenticated identity attached to a request. It is built
// fresh per request from credential claims merged with the persisted record
// and discarded at request end.
type Principal struct {
	ID              string
	Email           string
	Role            string
	UserType        string
	IsAdmin         bool
	TenantID        string
	CurrentTenantID string
	OrganizationID  string
	Permissions     map[string]bool

	// AccessType and CrossTenantAccess are set only by the platform-admin
	// middleware variant.
	AccessType        string
	CrossTenantAccess bool
}

// NewPrincipal merges credential claims with the persisted record.
//
// Derivation rules:
//   - IsAdmin: reserved admin email, or an admin/platform_admin role on
//     either the credential or the record.
//   - Role: credential claim, then record, then platform_admin when IsAdmin,
//     else user. Never empty.
//   - UserType: forced to "admin" whenever IsAdmin (backward-compatibility
//     rule), otherwise credential, then record, then "user".
func NewPrincipal(claims *Claims, rec *UserRecord, adminEmail string) *Principal {
	isAdmin := rec.Email == adminEmail ||
		isAdminRole(claims.Role) ||
		isAdminRole(rec.Role)

	role := claims.Role
	if role == "" {
		role = rec.Role
	}
	if role == "" {
		if isAdmin {
			role = RolePlatformAdmin
		} else {
			role = RoleUser
		}
	}

	userType := "user"
	switch {
	case isAdmin:
		userType = "admin"
	case claims.UserType != "":
		userType = claims.UserType
	case rec.UserType != "":
		userType = rec.UserType
	}

	tenantID := claims.TenantID
	if tenantID == "" {
		tenantID = rec.TenantID
	}
	orgID := claims.OrgID
	if orgID == "" {
		orgID = rec.OrganizationID
	}

	permissions := rec.Permissions
	if len(claims.Permissions) > 0 {
		permissions = claims.Permissions
	}

	return &Principal{
		ID:              rec.ID,
		Email:           rec.Email,
		Role:            role,
		UserType:        userType,
		IsAdmin:         isAdmin,
		TenantID:        tenantID,
		CurrentTenantID: tenantID,
		OrganizationID:  orgID,
		Permissions:     permissions,
	}
}

// HasRole reports whether the principal holds one of the given roles; admins
// always pass.
func (p *Principal) HasRole(roles ...string) bool {
	if p.IsAdmin {
		return true
	}
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

func isAdminRole(role string) bool {
	return role == RoleAdmin || role == RolePlatformAdmin
}
