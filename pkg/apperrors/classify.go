package apperrors

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
)

// ValidationErrors aggregates per-field validation failures. The classifier
// joins the messages into a single Validation error, mirroring how the
// handlers collect form-level failures.
type ValidationErrors struct {
	Fields map[string]string
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for field, msg := range v.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, ", ")
}

// Classify maps a raw error onto the taxonomy. It returns nil when the error
// is unrecognized; the caller must treat nil as a non-operational fault and
// substitute a generic Internal error after logging.
//
// Classification is pure: no logging, no response building.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	// Already typed
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// Credential failures
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Authentication("Token expired").WithCause(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return Authentication("Invalid token").WithCause(err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Authentication("Invalid token").WithCause(err)
	}

	// Validation failures
	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return Validation(vErrs.Error()).WithCause(err)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Validation(fmt.Sprintf("Invalid value for field %q", typeErr.Field)).WithCause(err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return Validation("Malformed request body").WithCause(err)
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return Validation(fmt.Sprintf("Invalid numeric value %q", numErr.Num)).WithCause(err)
	}

	// Database failures
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("Resource not found").WithCause(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			field := pqErr.Constraint
			if field == "" {
				field = pqErr.Column
			}
			return Conflict(fmt.Sprintf("Duplicate value for %s", field)).WithCause(err)
		case "check_violation", "not_null_violation", "foreign_key_violation":
			return Validation(pqErr.Message).WithCause(err)
		default:
			return Database("Database operation failed").WithCause(err)
		}
	}

	// Unrecognized: non-operational
	return nil
}
