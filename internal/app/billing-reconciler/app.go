// Package billingreconciler собирает основной сервис: HTTP-сервер,
// хранилище, кеш, Stripe-клиент, движок реконсиляции и публикацию алертов.
package billingreconciler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-reconciler/internal/alerts"
	"github.com/magabrotheeeer/billing-reconciler/internal/cache"
	"github.com/magabrotheeeer/billing-reconciler/internal/config"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-reconciler/internal/migrations"
	"github.com/magabrotheeeer/billing-reconciler/internal/rabbitmq"
	billingservice "github.com/magabrotheeeer/billing-reconciler/internal/services/billing"
	profileservice "github.com/magabrotheeeer/billing-reconciler/internal/services/profile"
	reconcileservice "github.com/magabrotheeeer/billing-reconciler/internal/services/reconcile"
	"github.com/magabrotheeeer/billing-reconciler/internal/storage/repository"
	"github.com/magabrotheeeer/billing-reconciler/internal/stripeapi"
	"github.com/magabrotheeeer/billing-reconciler/internal/tiers"
)

// App инкапсулирует HTTP-сервер и соединения с внешними системами.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
	cache  *cache.Cache
}

// New инициализирует все зависимости сервиса и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetAlertQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	catalog, err := tiers.NewCatalog(cfg.Tiers)
	if err != nil {
		return nil, err
	}

	stripeClient := stripeapi.New(cfg.SecretKey, cfg.SuccessURL, cfg.CancelURL, cfg.PortalReturnURL)
	verifier := stripeapi.NewVerifier(cfg.WebhookSecret)
	alertPublisher := alerts.New(ch)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, 24*time.Hour)

	reconcileService := reconcileservice.New(db, stripeClient, catalog, alertPublisher, cacheRedis, logger)
	billingService := billingservice.New(db, stripeClient, catalog, cfg.TrialPeriodDays, logger)
	profileService := profileservice.New(db, cacheRedis, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, &RouteDeps{
		ReconcileService: reconcileService,
		BillingService:   billingService,
		ProfileService:   profileService,
		Verifier:         verifier,
		JWTMaker:         jwtMaker,
		Storage:          db,
		Rabbit:           conn,
		Cache:            cacheRedis,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
		cache:  cacheRedis,
	}, nil
}

// Run запускает HTTP-сервер и корректно останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.ch.Close(); closeErr != nil {
			a.logger.Error("failed to close rabbitmq channel", slog.Any("err", closeErr))
		}
		if closeErr := a.conn.Close(); closeErr != nil {
			a.logger.Error("failed to close rabbitmq connection", slog.Any("err", closeErr))
		}
		a.db.DB.Close()
		return err
	}
}
