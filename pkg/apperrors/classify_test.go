package apperrors

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	orig := RateLimit("slow down")
	got := Classify(fmt.Errorf("wrapped: %w", orig))
	assert.Same(t, orig, got)
}

func TestClassifyExpiredToken(t *testing.T) {
	got := Classify(fmt.Errorf("parse: %w", jwt.ErrTokenExpired))
	require.NotNil(t, got)
	assert.Equal(t, KindAuthentication, got.Kind)
	assert.Equal(t, "Token expired", got.Message)
}

func TestClassifyMalformedToken(t *testing.T) {
	got := Classify(jwt.ErrTokenMalformed)
	require.NotNil(t, got)
	assert.Equal(t, KindAuthentication, got.Kind)
}

func TestClassifyValidationErrors(t *testing.T) {
	vErrs := &ValidationErrors{Fields: map[string]string{"amount": "must be positive"}}
	got := Classify(vErrs)
	require.NotNil(t, got)
	assert.Equal(t, KindValidation, got.Kind)
	assert.Contains(t, got.Message, "amount: must be positive")
}

func TestClassifyJSONErrors(t *testing.T) {
	var payload struct {
		Amount int `json:"amount"`
	}
	err := json.Unmarshal([]byte(`{"amount": "ten"}`), &payload)
	got := Classify(err)
	require.NotNil(t, got)
	assert.Equal(t, KindValidation, got.Kind)
	assert.Contains(t, got.Message, "amount")

	err = json.Unmarshal([]byte(`{`), &payload)
	got = Classify(err)
	require.NotNil(t, got)
	assert.Equal(t, KindValidation, got.Kind)
}

func TestClassifyNumError(t *testing.T) {
	_, err := strconv.Atoi("abc")
	got := Classify(err)
	require.NotNil(t, got)
	assert.Equal(t, KindValidation, got.Kind)
}

func TestClassifyNoRows(t *testing.T) {
	got := Classify(fmt.Errorf("load user: %w", sql.ErrNoRows))
	require.NotNil(t, got)
	assert.Equal(t, KindNotFound, got.Kind)
	assert.Equal(t, http.StatusNotFound, got.StatusCode())
}

func TestClassifyPostgresErrors(t *testing.T) {
	unique := &pq.Error{Code: "23505", Constraint: "users_email_key"}
	got := Classify(unique)
	require.NotNil(t, got)
	assert.Equal(t, KindConflict, got.Kind)
	assert.Contains(t, got.Message, "users_email_key")

	check := &pq.Error{Code: "23514", Message: "violates check constraint"}
	got = Classify(check)
	require.NotNil(t, got)
	assert.Equal(t, KindValidation, got.Kind)

	other := &pq.Error{Code: "57014"}
	got = Classify(other)
	require.NotNil(t, got)
	assert.Equal(t, KindDatabase, got.Kind)
}

func TestClassifyUnknownReturnsNil(t *testing.T) {
	assert.Nil(t, Classify(errors.New("something odd")))
}
