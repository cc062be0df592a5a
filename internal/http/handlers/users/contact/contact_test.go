package contact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Contact(ctx context.Context, req models.DummyUser) error {
	return m.Called(ctx, req).Error(0)
}

func TestContactHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "новый пользователь",
			body: `{"user_id":42,"username":"neo","first_name":"Thomas"}`,
			setupMock: func(m *MockService) {
				m.On("Contact", mock.Anything, models.DummyUser{ID: 42, Username: "neo", FirstName: "Thomas"}).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"user_id":42}}`,
		},
		{
			name:           "битый JSON",
			body:           `{"user_id":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:           "нет user_id",
			body:           `{"username":"neo"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"field ID is a required field"}`,
		},
		{
			name: "ошибка хранилища",
			body: `{"user_id":7}`,
			setupMock: func(m *MockService) {
				m.On("Contact", mock.Anything, models.DummyUser{ID: 7}).Return(errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not register user"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			New(sl.Discard(), mockService).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			mockService.AssertExpectations(t)
		})
	}
}
