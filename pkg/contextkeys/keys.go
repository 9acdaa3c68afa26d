// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: rate limiting, role guards, all protected endpoints
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error envelope correlation
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: auth middleware after principal resolution
	// Used by: Logger, rate-limit keying
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// OperationCostKey contains the cost debited for this request
	// Set by: middleware.CostLimiter on admission
	// Type: int64
	OperationCostKey Key = "operation_cost"

	// BudgetRemainingKey contains the remaining hourly budget after debit
	// Set by: middleware.CostLimiter on admission
	// Type: int64
	BudgetRemainingKey Key = "budget_remaining"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithOperationCost records the debited cost for this request
func WithOperationCost(ctx context.Context, cost int64) context.Context {
	return context.WithValue(ctx, OperationCostKey, cost)
}

// WithBudgetRemaining records the remaining hourly budget for this request
func WithBudgetRemaining(ctx context.Context, remaining int64) context.Context {
	return context.WithValue(ctx, BudgetRemainingKey, remaining)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetOperationCost retrieves the debited cost, zero when absent
func GetOperationCost(ctx context.Context) int64 {
	if cost, ok := ctx.Value(OperationCostKey).(int64); ok {
		return cost
	}
	return 0
}

// GetBudgetRemaining retrieves the remaining budget, zero when absent
func GetBudgetRemaining(ctx context.Context) int64 {
	if remaining, ok := ctx.Value(BudgetRemainingKey).(int64); ok {
		return remaining
	}
	return 0
}
