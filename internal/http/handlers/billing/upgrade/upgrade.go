// Package upgrade реализует HTTP-обработчик смены тарифа действующей подписки.
//
// Локальный тариф пользователя не меняется сразу: новое состояние придёт
// через webhook-событие customer.subscription.updated.
package upgrade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/services/billing"
)

// Service описывает бизнес-логику смены тарифа.
type Service interface {
	Upgrade(ctx context.Context, uid, tier string, student bool, interval string) error
}

// Request — тело запроса на смену тарифа.
// Пустой interval означает помесячную тарификацию.
type Request struct {
	Tier     string `json:"tier" validate:"required"`
	Student  bool   `json:"student"`
	Interval string `json:"interval" validate:"omitempty,oneof=month year"`
}

// Handler управляет HTTP-запросами на смену тарифа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Сменить тариф подписки
// @Description Меняет цену действующей подписки Stripe на цену другого тарифа с немедленным пропорциональным счётом.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Новый тариф"
// @Success 200 {object} response.Response "Запрос на смену тарифа принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Нет действующей подписки"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/upgrade [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.upgrade"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	uid, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || uid == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	if err := h.service.Upgrade(r.Context(), uid, req.Tier, req.Student, req.Interval); err != nil {
		switch {
		case errors.Is(err, billing.ErrNoActiveSubscription):
			log.Warn("user has no active subscription", slog.String("user_uid", uid))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no active subscription"))
		case errors.Is(err, billing.ErrUnknownTier):
			log.Error("unknown tier requested", slog.String("tier", req.Tier))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown tier"))
		default:
			log.Error("failed to upgrade subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not upgrade subscription"))
		}
		return
	}

	log.Info("subscription upgrade requested", slog.String("user_uid", uid), slog.String("tier", req.Tier))
	render.JSON(w, r, response.OK())
}
