// Package portal реализует HTTP-обработчик создания сессии клиентского портала Stripe.
package portal

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

// Service описывает бизнес-логику создания сессии портала.
type Service interface {
	CreatePortalSession(ctx context.Context, uid, email, username string) (string, error)
}

// Handler управляет HTTP-запросами на открытие клиентского портала.
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
// @Summary Открыть клиентский портал
// @Description Создает сессию клиентского портала Stripe для управления подпиской и способами оплаты.
// @Tags Billing
// @Produce  json
// @Success 200 {object} map[string]any "URL портала"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "У пользователя нет биллингового аккаунта"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/portal-session [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"
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

	url, err := h.service.CreatePortalSession(r.Context(), uid, email, username)
	if err != nil {
		if errors.Is(err, billing.ErrNoBillingAccount) {
			log.Warn("user has no billing account", slog.String("user_uid", uid))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no billing account"))
			return
		}
		log.Error("failed to create portal session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create portal session"))
		return
	}

	log.Info("portal session created", slog.String("user_uid", uid))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"portal_url": url,
	}))
}
