package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "pos-ledger/docs"
	"pos-ledger/internal/api/handler"
	mw "pos-ledger/internal/api/middleware"
	"pos-ledger/internal/config"
	"pos-ledger/internal/domain/credit"
	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/domain/loyalty"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Customers customer.Service
	Credits   credit.Engine
	Loyalty   loyalty.Engine
	Clock     ledger.Clock
}

func SetupRouter(rateLimiter *mw.RateLimiterMiddleware, svc Services, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, rateLimiter, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupAuthRoutes(router, cfg, logger)
	setupCustomerRoutes(router, cfg, svc, logger)
	setupCreditRoutes(router, cfg, svc, logger)
	setupLoyaltyRoutes(router, cfg, svc, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	setupSwaggerEndpoint(router, logger)

	return router
}

func setupMiddleware(router *chi.Mux, rateLimiter *mw.RateLimiterMiddleware, cfg *config.Config, logger *slog.Logger) {
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(timeout))
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware)
	}
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupAuthRoutes(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	authHandler := handler.NewAuthHandler(cfg.Server.Auth, logger)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.GenerateBearerToken)
	})
}

func setupCustomerRoutes(router *chi.Mux, cfg *config.Config, svc Services, logger *slog.Logger) {
	h := handler.NewCustomerHandler(svc.Customers, logger)
	ch := handler.NewCreditHandler(svc.Credits, svc.Clock, logger)
	lh := handler.NewLoyaltyHandler(svc.Loyalty, logger)

	router.Route("/customers", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", h.CreateCustomer)
		r.Get("/", h.ListCustomers)
		r.Route("/{customerID}", func(r chi.Router) {
			r.Get("/", h.GetCustomer)
			r.Delete("/", h.DeleteCustomer)
			r.Post("/deactivate", h.DeactivateCustomer)
			r.Put("/status", h.UpdateStatus)
			r.Put("/credit-limit", h.UpdateCreditLimit)
			r.Post("/purchases", h.RecordPurchase)
			r.Get("/statistics", h.GetStatistics)
			r.Post("/credits", ch.CreateCredit)
			r.Get("/credits", ch.ListCustomerCredits)
			r.Post("/points", lh.AddPoints)
			r.Post("/redemptions", lh.RedeemPoints)
		})
	})
}

func setupCreditRoutes(router *chi.Mux, cfg *config.Config, svc Services, logger *slog.Logger) {
	h := handler.NewCreditHandler(svc.Credits, svc.Clock, logger)

	router.Route("/credits", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/overdue", h.ListOverdue)
		r.Route("/{creditID}", func(r chi.Router) {
			r.Get("/", h.GetCredit)
			r.Delete("/", h.CancelCredit)
			r.Post("/payments", h.ProcessPayment)
		})
	})
}

func setupLoyaltyRoutes(router *chi.Mux, cfg *config.Config, svc Services, logger *slog.Logger) {
	h := handler.NewLoyaltyHandler(svc.Loyalty, logger)

	router.Route("/loyalty", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/config", h.GetConfig)
		r.Put("/config", h.UpdateConfig)
	})
}
