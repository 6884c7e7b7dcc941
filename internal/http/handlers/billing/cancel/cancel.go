// Package cancel реализует HTTP-обработчик отмены подписки.
//
// Отмена планируется на конец оплаченного периода, тариф пользователя
// понижается только после события customer.subscription.deleted.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/services/billing"
)

// Service описывает бизнес-логику отмены подписки.
type Service interface {
	Cancel(ctx context.Context, uid string) error
}

// Handler управляет HTTP-запросами на отмену подписки.
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

// ServeHTTP godoc
// @Summary Отменить подписку
// @Description Планирует отмену действующей подписки в конце оплаченного периода. Доступ сохраняется до конца периода.
// @Tags Billing
// @Produce  json
// @Success 200 {object} response.Response "Отмена запланирована"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Нет действующей подписки"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/cancel [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"
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

	if err := h.service.Cancel(r.Context(), uid); err != nil {
		if errors.Is(err, billing.ErrNoActiveSubscription) {
			log.Warn("user has no active subscription", slog.String("user_uid", uid))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no active subscription"))
			return
		}
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not cancel subscription"))
		return
	}

	log.Info("subscription cancellation scheduled", slog.String("user_uid", uid))
	render.JSON(w, r, response.OK())
}
