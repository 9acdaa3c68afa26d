package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monay/backend-core/pkg/apperrors"
	"github.com/monay/backend-core/pkg/auth"
	"github.com/monay/backend-core/pkg/contextkeys"
	"github.com/monay/backend-core/pkg/observability"
)

type memLedger struct {
	mu     sync.Mutex
	totals map[string]int64
	err    error
}

func newMemLedger() *memLedger {
	return &memLedger{totals: make(map[string]int64)}
}

func (l *memLedger) Debit(_ context.Context, key string, cost int64, _ time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.totals[key] += cost
	return l.totals[key], nil
}

func (l *memLedger) Credit(_ context.Context, key string, cost int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.totals[key] -= cost
	return nil
}

func (l *memLedger) total(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[key]
}

func newTestCostLimiter(ledger LedgerStore, cost CostFunc) *CostLimiter {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewCostLimiter(ledger, cost, apperrors.NewHandler(logger, "development"), logger, nil)
}

func TestCostLimiterAdmitsWithinBudget(t *testing.T) {
	ledger := newMemLedger()
	cl := newTestCostLimiter(ledger, nil)

	var gotCost, gotRemaining int64
	handler := cl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCost = contextkeys.GetOperationCost(r.Context())
		gotRemaining = contextkeys.GetBudgetRemaining(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&auth.Principal{ID: "u1"}, "/api/x"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gotCost)
	assert.Equal(t, DefaultBudget-1, gotRemaining)
}

func TestCostLimiterRejectsOverBudget(t *testing.T) {
	ledger := newMemLedger()
	cl := newTestCostLimiter(ledger, func(*http.Request, *auth.Principal) int64 { return 400 })
	handler := cl.Handler(okHandler(nil))
	principal := &auth.Principal{ID: "u1", Role: "user"}

	// 400 + 400 = 800 fits; the third debit would reach 1200.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs(principal, "/api/x"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(principal, "/api/x"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var env apperrors.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, float64(800), env.Error.Details["currentUsage"])
	assert.Equal(t, float64(400), env.Error.Details["requestedCost"])
	assert.Equal(t, float64(1000), env.Error.Details["maxBudget"])

	// The rejected debit was rolled back.
	assert.Equal(t, int64(800), ledger.total("user:u1"))
}

func TestCostLimiterExactBudgetAdmitted(t *testing.T) {
	ledger := newMemLedger()
	cl := newTestCostLimiter(ledger, func(*http.Request, *auth.Principal) int64 { return DefaultBudget })
	handler := cl.Handler(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&auth.Principal{ID: "u1"}, "/api/x"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&auth.Principal{ID: "u1"}, "/api/x"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCostLimiterSuperAdminBudget(t *testing.T) {
	ledger := newMemLedger()
	cl := newTestCostLimiter(ledger, func(*http.Request, *auth.Principal) int64 { return 5000 })
	handler := cl.Handler(okHandler(nil))
	admin := &auth.Principal{ID: "sa", Role: auth.RoleSuperAdmin}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs(admin, "/api/x"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(admin, "/api/x"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCostLimiterFailsOpen(t *testing.T) {
	ledger := newMemLedger()
	ledger.err = errors.New("redis down")
	cl := newTestCostLimiter(ledger, nil)
	handler := cl.Handler(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(&auth.Principal{ID: "u1"}, "/api/x"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCostLimiterAnonymousKeyedByIP(t *testing.T) {
	ledger := newMemLedger()
	cl := newTestCostLimiter(ledger, nil)
	handler := cl.Handler(okHandler(nil))

	r := requestAs(nil, "/api/x")
	r.RemoteAddr = "10.1.2.3:999"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), ledger.total("ip:10.1.2.3:999"))
}
