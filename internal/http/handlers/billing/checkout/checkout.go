// Package checkout реализует HTTP-обработчик создания checkout-сессии Stripe.
//
// Handler принимает JSON-запрос с выбранным тарифом, валидирует его,
// извлекает данные пользователя из контекста и возвращает URL страницы оплаты.
package checkout

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

// Service описывает бизнес-логику создания checkout-сессии.
type Service interface {
	CreateCheckoutSession(ctx context.Context, uid, email, username, tier string, student bool, interval string) (string, error)
}

// Request — тело запроса на создание checkout-сессии.
// Пустой interval означает помесячную тарификацию.
type Request struct {
	Tier     string `json:"tier" validate:"required"`
	Student  bool   `json:"student"`
	Interval string `json:"interval" validate:"omitempty,oneof=month year"`
}

// Handler управляет HTTP-запросами на создание checkout-сессии.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики биллинга
	validate *validator.Validate // Валидатор структуры входящих данных
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
// @Summary Создать checkout-сессию
// @Description Создает checkout-сессию Stripe для перехода на платный тариф. Возвращает URL страницы оплаты.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Выбранный тариф"
// @Success 200 {object} map[string]any "URL страницы оплаты"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "У пользователя уже есть активная подписка"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/checkout-session [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"
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
	log.Info("request body decoded", slog.Any("request", req))

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
	email, _ := r.Context().Value(middlewarectx.UserEmail).(string)
	username, _ := r.Context().Value(middlewarectx.UserName).(string)

	url, err := h.service.CreateCheckoutSession(r.Context(), uid, email, username, req.Tier, req.Student, req.Interval)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrActiveSubscriptionExists):
			log.Warn("user already has an active subscription", slog.String("user_uid", uid))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("active subscription already exists"))
		case errors.Is(err, billing.ErrUnknownTier):
			log.Error("unknown tier requested", slog.String("tier", req.Tier))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown tier"))
		default:
			log.Error("failed to create checkout session", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create checkout session"))
		}
		return
	}

	log.Info("checkout session created", slog.String("user_uid", uid), slog.String("tier", req.Tier))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"checkout_url": url,
	}))
}
