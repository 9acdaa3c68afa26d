package apperrors

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/monay/backend-core/pkg/contextkeys"
	"github.com/monay/backend-core/pkg/observability"
)

// ErrorBody is the error portion of the uniform response envelope
type ErrorBody struct {
	ID        string                 `json:"id"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"requestId,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Stack     string                 `json:"stack,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Method    string                 `json:"method,omitempty"`
}

// Envelope is the uniform JSON error response shape
type Envelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// Handler renders errors as the uniform envelope and owns the logging policy
// around them. One instance is shared by every middleware and route handler.
type Handler struct {
	logger      *observability.Logger
	environment string
}

// NewHandler creates an error handler for the given runtime environment
func NewHandler(logger *observability.Logger, environment string) *Handler {
	return &Handler{
		logger:      logger,
		environment: environment,
	}
}

// Write classifies err, logs according to its kind, and renders the envelope.
// Unclassified errors are logged with full request context and replaced with
// a generic Internal error; their message and stack never reach the caller.
func (h *Handler) Write(w http.ResponseWriter, r *http.Request, err error) {
	appErr := Classify(err)
	var stack string

	if appErr == nil {
		stack = string(debug.Stack())
		h.requestLogger(r).WithFields(map[string]interface{}{
			"error":  err.Error(),
			"stack":  stack,
			"query":  r.URL.RawQuery,
			"header": redactHeaders(r.Header),
		}).Error("unhandled error")
		appErr = Internal("An unexpected error occurred")
	} else if appErr.Kind == KindDatabase {
		// Database faults carry operator-relevant context; log them apart
		// from the generic error stream.
		h.requestLogger(r).WithError(appErr.Unwrap()).Error("database error")
	}

	body := ErrorBody{
		ID:        appErr.ID,
		Code:      appErr.Code(),
		Message:   Sanitize(appErr.Message),
		Timestamp: appErr.Timestamp,
		RequestID: contextkeys.GetRequestID(r.Context()),
	}

	if h.environment != "production" {
		body.Details = appErr.Details
		body.Stack = stack
		body.Path = r.URL.Path
		body.Method = r.Method
	}

	if appErr.RetryAfter > 0 {
		seconds := int(appErr.RetryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())
	json.NewEncoder(w).Encode(Envelope{Success: false, Error: body})
}

// Middleware recovers panics from downstream handlers and renders them
// through the same envelope path.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.requestLogger(r).WithFields(map[string]interface{}{
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("panic in handler")
				h.Write(w, r, Internal("An unexpected error occurred"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLogger(r *http.Request) *observability.Logger {
	logger := h.logger
	if logger == nil {
		logger = observability.FromContext(r.Context())
	}
	fields := map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if requestID := contextkeys.GetRequestID(r.Context()); requestID != "" {
		fields["request_id"] = requestID
	}
	if userID := contextkeys.GetUserID(r.Context()); userID != "" {
		fields["user_id"] = userID
	}
	return logger.WithFields(fields)
}

// redactHeaders drops credential-bearing headers from log context
func redactHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for k := range header {
		if sensitivePattern.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = header.Get(k)
	}
	return out
}
