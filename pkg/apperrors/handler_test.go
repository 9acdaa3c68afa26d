package apperrors

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monay/backend-core/pkg/contextkeys"
	"github.com/monay/backend-core/pkg/observability"
)

func testHandler(environment string) *Handler {
	return NewHandler(observability.NewLogger(observability.ErrorLevel, io.Discard), environment)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestWriteTypedError(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/wallets/1", nil)

	h.Write(rec, r, NotFound("Wallet not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, "Wallet not found", env.Error.Message)
	assert.NotEmpty(t, env.Error.ID)
	assert.False(t, env.Error.Timestamp.IsZero())
}

func TestWriteIncludesRequestID(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(contextkeys.WithRequestID(r.Context(), "req-42"))

	h.Write(rec, r, Validation("bad input"))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "req-42", env.Error.RequestID)
}

func TestWriteSanitizesMessage(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/login", nil)

	h.Write(rec, r, Authentication("Access token is missing"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, GenericSensitiveMessage, env.Error.Message)
}

func TestWriteUnknownErrorBecomesInternal(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	h.Write(rec, r, errors.New("disk exploded at offset 12345"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, "An unexpected error occurred", env.Error.Message)
	assert.NotContains(t, rec.Body.String(), "disk exploded")
}

func TestWriteProductionHidesDebugFields(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/transfer", nil)

	h.Write(rec, r, Validation("bad input").WithDetails(map[string]interface{}{"field": "amount"}))

	env := decodeEnvelope(t, rec)
	assert.Nil(t, env.Error.Details)
	assert.Empty(t, env.Error.Path)
	assert.Empty(t, env.Error.Method)
	assert.Empty(t, env.Error.Stack)
}

func TestWriteDevelopmentIncludesDebugFields(t *testing.T) {
	h := testHandler("development")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/transfer", nil)

	h.Write(rec, r, Validation("bad input").WithDetails(map[string]interface{}{"field": "amount"}))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "amount", env.Error.Details["field"])
	assert.Equal(t, "/transfer", env.Error.Path)
	assert.Equal(t, http.MethodPost, env.Error.Method)
}

func TestWriteRetryAfterHeader(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	h.Write(rec, r, RateLimit("slow down").WithRetryAfter(90e9))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestWriteRetryAfterMinimumOneSecond(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	h.Write(rec, r, RateLimit("slow down").WithRetryAfter(1))

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	handler := h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
}

func TestMiddlewarePassesThrough(t *testing.T) {
	h := testHandler("production")
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
