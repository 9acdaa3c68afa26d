// Command gateway runs the API gateway: authentication, tenant resolution,
// tiered and cost-based rate limiting, and circuit-broken upstream calls.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/monay/backend-core/pkg/apperrors"
	"github.com/monay/backend-core/pkg/auth"
	"github.com/monay/backend-core/pkg/circuitbreaker"
	"github.com/monay/backend-core/pkg/config"
	"github.com/monay/backend-core/pkg/httputil"
	"github.com/monay/backend-core/pkg/middleware"
	"github.com/monay/backend-core/pkg/observability"
	"github.com/monay/backend-core/pkg/storage/postgres"
	"github.com/monay/backend-core/pkg/tenant"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	level := observability.InfoLevel
	if cfg.Environment == "development" {
		level = observability.DebugLevel
	}
	logger := observability.NewLogger(level, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    true,
	}, logger)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracing")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}

	users, err := postgres.Open(ctx, cfg.Postgres.URL, postgres.Options{
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
		ConnLifetime: cfg.Postgres.ConnLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer users.Close()

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("invalid auth configuration")
	}

	cachedUsers := auth.NewCachedUserStore(users, cfg.Auth.UserCacheSize, cfg.Auth.UserCacheTTL)
	errHandler := apperrors.NewHandler(logger, cfg.Environment)
	authMW := middleware.NewAuthMiddleware(verifier, cachedUsers, tenant.NewHeaderResolver(),
		errHandler, logger, metrics, cfg.Environment, cfg.Auth.AdminEmail)

	store := middleware.NewRedisCounterStore(redisClient, cfg.Redis.Prefix)
	limiter := middleware.NewRateLimiter(store, errHandler, logger, metrics, cfg.Environment)
	if cfg.RateLimit.EnableGlobalCeiling {
		limiter.WithGlobalCounter(store)
	}

	policies := middleware.DefaultPolicies()
	if cfg.RateLimit.PolicyFile != "" {
		policies, err = config.LoadPolicies(cfg.RateLimit.PolicyFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load rate limit policies")
		}
	}
	policyRouter := middleware.NewPolicyRouter(limiter, policies)

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Timeout:          cfg.Breaker.Timeout,
	}, nil)
	breakers.OnTransition(func(service string, to circuitbreaker.State) {
		metrics.BreakerTransitionsTotal.WithLabelValues(service, to.String()).Inc()
		logger.WithFields(map[string]interface{}{
			"service": service,
			"state":   to.String(),
		}).Warn("circuit breaker state change")
	})
	breakers.OnRejection(func(service string) {
		metrics.BreakerRejectionsTotal.WithLabelValues(service).Inc()
	})

	costs := middleware.NewCostLimiter(store, operationCost, errHandler, logger, metrics)

	a := &api{
		logger:    logger,
		errors:    errHandler,
		breakers:  breakers,
		ledgerURL: os.Getenv("LEDGER_URL"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}

	apiHandler := buildRouter(cfg, a, authMW, policyRouter, store, costs, errHandler, logger, metrics)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.HealthPort),
		Handler: buildHealthRouter(users, redisClient, metrics),
	}

	scheduler := cron.New()
	scheduler.AddFunc("@every 1m", func() {
		stats, err := store.Stats(context.Background())
		if err != nil {
			logger.WithError(err).Warn("failed to collect rate limit stats")
			return
		}
		logger.WithFields(map[string]interface{}{
			"live_keys": stats["total_keys"],
			"breakers":  breakers.Snapshot(),
		}).Info("rate limit stats")
	})
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if cfg.RateLimit.PolicyFile != "" {
		g.Go(func() error {
			err := config.WatchPolicies(gctx, cfg.RateLimit.PolicyFile, logger, policyRouter.Update)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		observability.ShutdownTracing(shutdownCtx, tp, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("gateway exited with error")
	}
	log.Info("gateway stopped")
}

func buildRouter(cfg *config.Config, a *api, authMW *middleware.AuthMiddleware, policyRouter *middleware.PolicyRouter, store *middleware.RedisCounterStore, costs *middleware.CostLimiter, errHandler *apperrors.Handler, logger *observability.Logger, metrics *observability.Metrics) http.Handler {
	r := mux.NewRouter()

	protect := func(h http.Handler, roles ...string) http.Handler {
		chain := []func(http.Handler) http.Handler{authMW.Handler}
		if cfg.RateLimit.EnableGlobalCeiling {
			chain = append(chain, middleware.GlobalCountHandler(store, logger))
		}
		chain = append(chain, policyRouter.Handler)
		if cfg.RateLimit.EnableCostBudget {
			chain = append(chain, costs.Handler)
		}
		guarded := h
		if len(roles) > 0 {
			guarded = authMW.RequireRoles(h, roles...)
		}
		return httputil.Chain(chain...)(guarded)
	}

	apiRoutes := r.PathPrefix("/api").Subrouter()
	apiRoutes.Handle("/me", protect(http.HandlerFunc(a.handleMe))).Methods(http.MethodGet)
	apiRoutes.Handle("/wallets/{id}", protect(http.HandlerFunc(a.handleWallet))).Methods(http.MethodGet)
	apiRoutes.Handle("/wallets/{id}/freeze", protect(http.HandlerFunc(a.handleFreeze), auth.RoleAdmin)).Methods(http.MethodPost)
	apiRoutes.Handle("/wallets/{id}/unfreeze", protect(http.HandlerFunc(a.handleUnfreeze), auth.RoleAdmin)).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Handle("/breakers", authMW.PlatformAdminHandler(http.HandlerFunc(a.handleBreakers))).Methods(http.MethodGet)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(logger),
		metrics.HTTPMiddleware,
		errHandler.Middleware,
	)(r)

	if cfg.Tracing.Enabled {
		handler = otelhttp.NewHandler(handler, "gateway")
	}
	return handler
}

func buildHealthRouter(users *postgres.UserStore, redisClient *redis.Client, metrics *observability.Metrics) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	})
	r.HandleFunc("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		healthy := true
		if err := users.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
		if !healthy {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, checks)
			return
		}
		httputil.WriteSuccess(w, checks)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}
