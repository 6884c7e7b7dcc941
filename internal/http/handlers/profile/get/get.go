// Package get реализует HTTP-обработчик получения профиля пользователя.
//
// Профиль собирается из локальной базы и кешируется в Redis, поэтому
// обработчик не ходит в Stripe.
package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

// Service описывает бизнес-логику получения профиля.
type Service interface {
	GetProfile(ctx context.Context, uid, email, username string) (*models.Profile, error)
}

// Handler управляет HTTP-запросами на получение профиля.
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
// @Summary Получить профиль пользователя
// @Description Возвращает профиль с текущим тарифом и действующей подпиской, если она есть.
// @Tags Profile
// @Produce  json
// @Success 200 {object} map[string]any "Профиль пользователя"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /profile [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.get"
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

	profile, err := h.service.GetProfile(r.Context(), uid, email, username)
	if err != nil {
		log.Error("failed to get profile", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get profile"))
		return
	}

	log.Info("profile loaded", slog.String("user_uid", uid), slog.String("tier", profile.CurrentTier))
	render.JSON(w, r, response.OKWithData(profile))
}
