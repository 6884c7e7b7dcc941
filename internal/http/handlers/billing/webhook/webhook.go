// Package webhook реализует HTTP-обработчик приёма webhook-событий Stripe.
//
// Обработчик проверяет подпись события, передаёт его движку реконсиляции
// и отвечает Stripe кодом 200 для подтверждения доставки либо 500,
// если событие нужно доставить повторно.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/stripe/stripe-go/v78"

	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/metrics"
	"github.com/magabrotheeeer/billing-reconciler/internal/services/reconcile"
)

// Service описывает движок реконсиляции событий.
type Service interface {
	ProcessEvent(ctx context.Context, event stripe.Event) (reconcile.Outcome, error)
}

// Verifier проверяет подпись webhook-события Stripe.
type Verifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

// Handler обрабатывает POST-запросы Stripe с webhook-событиями.
type Handler struct {
	log      *slog.Logger
	service  Service
	verifier Verifier
}

// New создаёт новый Handler.
func New(log *slog.Logger, service Service, verifier Verifier) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		verifier: verifier,
	}
}

// ServeHTTP принимает webhook-событие Stripe.
//
// @Summary Приём webhook-событий Stripe
// @Description Проверяет подпись Stripe-Signature и передаёт событие движку реконсиляции
// @Tags webhook
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {string} string "received"
// @Failure 400 {object} response.ErrorResponse "Невалидная подпись или тело запроса"
// @Failure 500 {object} response.ErrorResponse "Временная ошибка, Stripe повторит доставку"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer func() { _ = r.Body.Close() }()

	if len(body) > maxBodyBytes {
		// Усечённое тело не пройдёт проверку подписи, а 400 остановил бы
		// повторы Stripe. Отвечаем 500, чтобы событие не потерялось.
		log.Error("webhook body exceeds size limit", slog.Int("limit_bytes", maxBodyBytes))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	event, err := h.verifier.VerifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Error("webhook signature verification failed", sl.Err(err))
		metrics.WebhookVerificationFailures.Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	log = log.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
	)

	outcome, err := h.service.ProcessEvent(r.Context(), event)
	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), string(outcome)).Inc()
	if err != nil {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook event processed", slog.String("outcome", string(outcome)))
	w.WriteHeader(http.StatusOK)
}

// Лимит с запасом покрывает самые крупные события Stripe
// и защищает от мусорных запросов.
const maxBodyBytes = 1 << 20
