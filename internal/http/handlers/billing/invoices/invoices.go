// Package invoices реализует HTTP-обработчик получения списка счетов пользователя.
package invoices

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

// Service описывает бизнес-логику получения счетов.
type Service interface {
	ListInvoices(ctx context.Context, uid, email, username string, limit int64) ([]*models.InvoiceInfo, error)
}

// Handler управляет HTTP-запросами на список счетов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

const defaultLimit = 12

// ServeHTTP godoc
// @Summary Список счетов
// @Description Возвращает счета пользователя из Stripe. Параметр limit ограничивает количество, по умолчанию 12.
// @Tags Billing
// @Produce  json
// @Param limit query int false "Максимальное количество счетов"
// @Success 200 {object} map[string]any "Список счетов"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/invoices [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.invoices"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || uid == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	email, _ := r.Context().Value(middlewarectx.UserEmail).(string)
	username, _ := r.Context().Value(middlewarectx.UserName).(string)

	limit := int64(defaultLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			log.Error("invalid limit parameter", slog.String("limit", raw))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid limit parameter"))
			return
		}
		limit = parsed
	}

	invoices, err := h.service.ListInvoices(r.Context(), uid, email, username, limit)
	if err != nil {
		log.Error("failed to list invoices", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list invoices"))
		return
	}

	log.Info("invoices listed", slog.String("user_uid", uid), slog.Int("count", len(invoices)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"invoices": invoices,
	}))
}
