package middlewarectx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-reconciler/internal/lib/jwt"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	maker := jwt.NewJWTMaker("test_secret_key", 15*time.Minute)

	validToken, err := maker.GenerateToken("uid-1", "user@test.com", "testuser")
	require.NoError(t, err)

	expiredMaker := jwt.NewJWTMaker("test_secret_key", -time.Hour)
	expiredToken, err := expiredMaker.GenerateToken("uid-1", "user@test.com", "testuser")
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantUID    string
	}{
		{
			name:       "valid token",
			authHeader: "Bearer " + validToken,
			wantStatus: http.StatusOK,
			wantUID:    "uid-1",
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			authHeader: "Basic abc123",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed token",
			authHeader: "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			authHeader: "Bearer " + expiredToken,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUID, gotEmail string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUID, _ = r.Context().Value(UserUID).(string)
				gotEmail, _ = r.Context().Value(UserEmail).(string)
				w.WriteHeader(http.StatusOK)
			})

			handler := JWTMiddleware(maker, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantUID != "" {
				assert.Equal(t, tt.wantUID, gotUID)
				assert.Equal(t, "user@test.com", gotEmail)
			}
		})
	}
}
