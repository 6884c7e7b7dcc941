package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-reconciler/internal/services/billing"
)

// MockService реализует интерфейс checkout.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateCheckoutSession(ctx context.Context, uid, email, username, tier string, student bool, interval string) (string, error) {
	args := m.Called(ctx, uid, email, username, tier, student, interval)
	return args.String(0), args.Error(1)
}

func TestCheckoutHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		requestBody    interface{}
		uid            string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "успешное создание сессии",
			requestBody: Request{Tier: "pro"},
			uid:         "uid-1",
			setupMock: func(m *MockService) {
				m.On("CreateCheckoutSession", mock.Anything, "uid-1", "user@test.com", "testuser", "pro", false, "").
					Return("https://checkout.stripe.com/c/pay_123", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"checkout_url":"https://checkout.stripe.com/c/pay_123"}}`,
		},
		{
			name:        "годовой интервал передаётся в сервис",
			requestBody: Request{Tier: "pro", Interval: "year"},
			uid:         "uid-1",
			setupMock: func(m *MockService) {
				m.On("CreateCheckoutSession", mock.Anything, "uid-1", "user@test.com", "testuser", "pro", false, "year").
					Return("https://checkout.stripe.com/c/pay_456", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"checkout_url":"https://checkout.stripe.com/c/pay_456"}}`,
		},
		{
			name:           "ошибка валидации - неизвестный интервал",
			requestBody:    Request{Tier: "pro", Interval: "week"},
			uid:            "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field Interval must be one of the allowed values"}`,
		},
		{
			name:           "ошибка валидации - отсутствует тариф",
			requestBody:    Request{},
			uid:            "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field Tier is a required field"}`,
		},
		{
			name:           "некорректный JSON",
			requestBody:    "not a json",
			uid:            "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:           "нет авторизации",
			requestBody:    Request{Tier: "pro"},
			uid:            "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:        "активная подписка уже существует",
			requestBody: Request{Tier: "pro"},
			uid:         "uid-1",
			setupMock: func(m *MockService) {
				m.On("CreateCheckoutSession", mock.Anything, "uid-1", mock.Anything, mock.Anything, "pro", false, "").
					Return("", billing.ErrActiveSubscriptionExists)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"active subscription already exists"}`,
		},
		{
			name:        "неизвестный тариф",
			requestBody: Request{Tier: "platinum"},
			uid:         "uid-1",
			setupMock: func(m *MockService) {
				m.On("CreateCheckoutSession", mock.Anything, "uid-1", mock.Anything, mock.Anything, "platinum", false, "").
					Return("", billing.ErrUnknownTier)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"unknown tier"}`,
		},
		{
			name:        "ошибка сервиса",
			requestBody: Request{Tier: "pro"},
			uid:         "uid-1",
			setupMock: func(m *MockService) {
				m.On("CreateCheckoutSession", mock.Anything, "uid-1", mock.Anything, mock.Anything, "pro", false, "").
					Return("", errors.New("stripe unavailable"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not create checkout session"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockService)
			tt.setupMock(mockSvc)

			handler := New(logger, mockSvc)

			var body []byte
			var err error
			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout-session", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			ctx := req.Context()
			if tt.uid != "" {
				ctx = context.WithValue(ctx, middlewarectx.UserUID, tt.uid)
				ctx = context.WithValue(ctx, middlewarectx.UserEmail, "user@test.com")
				ctx = context.WithValue(ctx, middlewarectx.UserName, "testuser")
			}
			ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-id")
			req = req.WithContext(ctx)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			mockSvc.AssertExpectations(t)
		})
	}
}
