package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	New(sl.Discard(), "premium-entitlements").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"premium-entitlements"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name           string
		ping           error
		expectedStatus int
		expectedBody   string
	}{
		{name: "хранилище доступно", expectedStatus: http.StatusOK, expectedBody: `{"status":"OK","data":{"storage":"ok"}}`},
		{name: "хранилище недоступно", ping: errors.New("connection refused"), expectedStatus: http.StatusServiceUnavailable,
			expectedBody: `{"status":"Error","error":"storage unavailable"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Ready(sl.Discard(), pingerFunc(func(context.Context) error { return tt.ping }))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}
