package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/monay/backend-core/pkg/apperrors"
	"github.com/monay/backend-core/pkg/auth"
	"github.com/monay/backend-core/pkg/circuitbreaker"
	"github.com/monay/backend-core/pkg/httputil"
	"github.com/monay/backend-core/pkg/middleware"
	"github.com/monay/backend-core/pkg/observability"
)

// ledgerService names the downstream ledger for its circuit breaker.
const ledgerService = "ledger"

type api struct {
	logger    *observability.Logger
	errors    *apperrors.Handler
	breakers  *circuitbreaker.Registry
	ledgerURL string
	client    *http.Client
}

// operationCost prices requests for the hourly budget. Reads are cheap;
// exports and batch endpoints charge for the work they fan out.
func operationCost(r *http.Request, _ *auth.Principal) int64 {
	switch {
	case strings.Contains(r.URL.Path, "export"):
		return 25
	case strings.Contains(r.URL.Path, "batch"):
		return 10
	case r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete:
		return 5
	default:
		return 1
	}
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	httputil.WriteSuccess(w, map[string]interface{}{
		"id":       principal.ID,
		"email":    principal.Email,
		"role":     principal.Role,
		"userType": principal.UserType,
		"isAdmin":  principal.IsAdmin,
		"tenantId": principal.CurrentTenantID,
	})
}

func (a *api) handleWallet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Reads are idempotent, so transient ledger failures are retried with
	// backoff before surfacing.
	var body []byte
	err := apperrors.WithErrorRecovery(r.Context(), func() error {
		var opErr error
		body, opErr = a.callLedger(r, http.MethodGet, "/wallets/"+id)
		return opErr
	}, 3, 200*time.Millisecond)
	if err != nil {
		a.errors.Write(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (a *api) handleFreeze(w http.ResponseWriter, r *http.Request) {
	a.walletTransition(w, r, "freeze")
}

func (a *api) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	a.walletTransition(w, r, "unfreeze")
}

// walletTransition forwards a state change to the ledger. No retries: the
// call mutates state and a duplicate could double-apply.
func (a *api) walletTransition(w http.ResponseWriter, r *http.Request, action string) {
	id := mux.Vars(r)["id"]

	principal := middleware.GetPrincipal(r)
	a.logger.WithFields(map[string]interface{}{
		"wallet_id": id,
		"action":    action,
		"user_id":   principal.ID,
	}).Info("wallet state transition requested")

	if _, err := a.callLedger(r, http.MethodPost, "/wallets/"+id+"/"+action); err != nil {
		a.errors.Write(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"walletId": id, "status": action + "d"})
}

func (a *api) handleBreakers(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, a.breakers.Snapshot())
}

// callLedger performs one circuit-broken request against the ledger service.
func (a *api) callLedger(r *http.Request, method, path string) ([]byte, error) {
	if a.ledgerURL == "" {
		return nil, apperrors.ExternalService("Ledger service is not configured")
	}

	var body []byte
	err := a.breakers.Execute(r.Context(), ledgerService, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, a.ledgerURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to build ledger request: %w", err)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return apperrors.ExternalService("Ledger service unreachable").WithCause(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return apperrors.NotFound("Wallet not found")
		case resp.StatusCode >= 500:
			return apperrors.ExternalService("Ledger service error")
		case resp.StatusCode >= 400:
			return apperrors.Validation("Ledger rejected the request")
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.ExternalService("Failed to read ledger response").WithCause(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
