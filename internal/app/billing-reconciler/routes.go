// Package billingreconciler предоставляет маршруты основного сервиса.
package billingreconciler

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/billing-reconciler/internal/cache"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/billing/cancel"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/billing/checkout"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/billing/invoices"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/billing/portal"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/billing/upgrade"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/health"
	profileget "github.com/magabrotheeeer/billing-reconciler/internal/http/handlers/profile/get"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/jwt"
	billingservice "github.com/magabrotheeeer/billing-reconciler/internal/services/billing"
	profileservice "github.com/magabrotheeeer/billing-reconciler/internal/services/profile"
	reconcileservice "github.com/magabrotheeeer/billing-reconciler/internal/services/reconcile"
	"github.com/magabrotheeeer/billing-reconciler/internal/storage/repository"
	"github.com/magabrotheeeer/billing-reconciler/internal/stripeapi"
)

// RouteDeps содержит зависимости обработчиков HTTP.
type RouteDeps struct {
	ReconcileService *reconcileservice.Service
	BillingService   *billingservice.Service
	ProfileService   *profileservice.Service
	Verifier         *stripeapi.Verifier
	JWTMaker         jwt.Maker
	Storage          *repository.Storage
	Rabbit           *amqp.Connection
	Cache            *cache.Cache
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps *RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook endpoint (без аутентификации, подпись проверяется отдельно)
		r.Post("/billing/webhook", webhook.New(logger, deps.ReconcileService, deps.Verifier).ServeHTTP)

		r.Get("/health", health.New(logger, deps.Storage, deps.Rabbit, deps.Cache).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.JWTMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/profile", profileget.New(logger, deps.ProfileService).ServeHTTP)
			r.Post("/billing/checkout-session", checkout.New(logger, deps.BillingService).ServeHTTP)
			r.Post("/billing/portal-session", portal.New(logger, deps.BillingService).ServeHTTP)
			r.Post("/billing/upgrade", upgrade.New(logger, deps.BillingService).ServeHTTP)
			r.Post("/billing/cancel", cancel.New(logger, deps.BillingService).ServeHTTP)
			r.Get("/billing/invoices", invoices.New(logger, deps.BillingService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
