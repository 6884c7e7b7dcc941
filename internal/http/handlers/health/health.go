// Package health реализует HTTP-обработчик проверки готовности сервиса.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-reconciler/internal/cache"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/storage/repository"
)

// Handler проверяет доступность зависимостей сервиса.
type Handler struct {
	log     *slog.Logger
	storage *repository.Storage
	rabbit  *amqp.Connection
	cache   *cache.Cache
}

// New создает новый Handler с переданными зависимостями.
func New(log *slog.Logger, storage *repository.Storage, rabbit *amqp.Connection, cache *cache.Cache) *Handler {
	return &Handler{
		log:     log,
		storage: storage,
		rabbit:  rabbit,
		cache:   cache,
	}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Description Проверяет доступность PostgreSQL, RabbitMQ и Redis.
// @Tags Health
// @Produce  json
// @Success 200 {object} map[string]any "Сервис готов"
// @Failure 503 {object} response.ErrorResponse "Одна из зависимостей недоступна"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	log := h.log.With(slog.String("op", op))

	checks := map[string]string{
		"database": "ok",
		"rabbitmq": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := repository.CheckDatabaseReady(h.storage); err != nil {
		log.Error("database is not ready", sl.Err(err))
		checks["database"] = "unavailable"
		healthy = false
	}
	if h.rabbit == nil || h.rabbit.IsClosed() {
		log.Error("rabbitmq connection is closed")
		checks["rabbitmq"] = "unavailable"
		healthy = false
	}
	if err := h.cache.Db.Ping(r.Context()).Err(); err != nil {
		log.Error("redis is not ready", sl.Err(err))
		checks["redis"] = "unavailable"
		healthy = false
	}

	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("service is not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": "ok",
		"checks": checks,
	}))
}
