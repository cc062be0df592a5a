package offer

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/plans"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Quote(userID int64, planTag string) (models.Offer, error) {
	args := m.Called(userID, planTag)
	return args.Get(0).(models.Offer), args.Error(1)
}

func TestOfferHandler(t *testing.T) {
	offer := models.Offer{
		Title:          "Premium - Monthly",
		Description:    "30-day premium subscription",
		Payload:        "subscription_monthly_30",
		Currency:       "XTR",
		Amount:         150,
		StartParameter: "subscribe_monthly",
		State:          "QUOTED",
	}

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "месячный тариф",
			body: `{"user_id":42,"plan":"monthly"}`,
			setupMock: func(m *MockService) {
				m.On("Quote", int64(42), "monthly").Return(offer, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"payload":"subscription_monthly_30"`,
		},
		{
			name: "неизвестный тариф",
			body: `{"user_id":42,"plan":"yearly"}`,
			setupMock: func(m *MockService) {
				m.On("Quote", int64(42), "yearly").Return(models.Offer{}, fmt.Errorf("payment.Quote: %w", plans.ErrInvalidPlan))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"unknown plan"}`,
		},
		{
			name:           "нет тарифа",
			body:           `{"user_id":42}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field Plan is a required field`,
		},
		{
			name:           "битый JSON",
			body:           `plan=monthly`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid request body`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			New(sl.Discard(), mockService).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
