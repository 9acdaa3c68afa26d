package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/monay/backend-core/pkg/auth"
)

func request(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	if header != "" {
		r.Header.Set(TenantHeader, header)
	}
	return r
}

func TestResolveNilPrincipal(t *testing.T) {
	assert.Error(t, NewHeaderResolver().Resolve(nil, request("")))
}

func TestResolveNoHeaderUsesOwnTenant(t *testing.T) {
	p := &auth.Principal{ID: "u1", TenantID: "t1"}
	err := NewHeaderResolver().Resolve(p, request(""))
	assert.NoError(t, err)
	assert.Equal(t, "t1", p.CurrentTenantID)
}

func TestResolveOwnTenantAllowed(t *testing.T) {
	p := &auth.Principal{ID: "u1", TenantID: "t1"}
	err := NewHeaderResolver().Resolve(p, request("t1"))
	assert.NoError(t, err)
	assert.Equal(t, "t1", p.CurrentTenantID)
}

func TestResolveAdminMaySwitch(t *testing.T) {
	p := &auth.Principal{ID: "a1", TenantID: "t1", IsAdmin: true}
	err := NewHeaderResolver().Resolve(p, request("t9"))
	assert.NoError(t, err)
	assert.Equal(t, "t9", p.CurrentTenantID)
}

func TestResolveCrossTenantMaySwitch(t *testing.T) {
	p := &auth.Principal{ID: "u1", TenantID: "t1", CrossTenantAccess: true}
	err := NewHeaderResolver().Resolve(p, request("t9"))
	assert.NoError(t, err)
	assert.Equal(t, "t9", p.CurrentTenantID)
}

func TestResolveForeignTenantRejectedKeepsOwn(t *testing.T) {
	p := &auth.Principal{ID: "u1", TenantID: "t1"}
	err := NewHeaderResolver().Resolve(p, request("t9"))
	assert.Error(t, err)
	assert.Equal(t, "t1", p.CurrentTenantID)
}
