package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradedesk/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		expectedStatus int
		expectHandler  bool
	}{
		{
			name:           "Preflight request",
			method:         http.MethodOptions,
			expectedStatus: http.StatusOK,
			expectHandler:  false,
		},
		{
			name:           "GET request",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectHandler:  true,
		},
		{
			name:           "POST request",
			method:         http.MethodPost,
			expectedStatus: http.StatusOK,
			expectHandler:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			handler := CORS(testHandler)

			req := httptest.NewRequest(tt.method, "/orders", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectHandler, handlerCalled)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestPrincipal(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name     string
		header   string
		expected uuid.UUID
	}{
		{"valid id", userID.String(), userID},
		{"missing header", "", uuid.Nil},
		{"garbage header", "not-a-uuid", uuid.Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got uuid.UUID
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("X-User-Id", tt.header)
			}
			w := httptest.NewRecorder()

			Principal(testHandler).ServeHTTP(w, req)

			assert.Equal(t, tt.expected, got)
		})
	}
}

// MockRateLimitRepository is a mock implementation of RateLimitRepository.
type MockRateLimitRepository struct {
	mock.Mock
}

func (m *MockRateLimitRepository) Allow(ctx context.Context, key, endpoint string, window time.Duration, budget int) (bool, int, error) {
	args := m.Called(ctx, key, endpoint, window, budget)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Window:       60 * time.Second,
		WriteBudget:  40,
		AuthBudget:   5,
		UploadBudget: 10,
	}
}

func TestRateLimit_AllowsAndDenies(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name           string
		method         string
		target         string
		allowed        bool
		wantEndpoint   string
		wantBudget     int
		expectedStatus int
	}{
		{
			name:           "write allowed",
			method:         http.MethodPost,
			target:         "/orders",
			allowed:        true,
			wantEndpoint:   "orders_write",
			wantBudget:     40,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "write denied",
			method:         http.MethodPut,
			target:         "/orders?id=" + uuid.NewString(),
			allowed:        false,
			wantEndpoint:   "orders_write",
			wantBudget:     40,
			expectedStatus: http.StatusTooManyRequests,
		},
		{
			name:           "message post uses message label",
			method:         http.MethodPost,
			target:         "/orders?message=true",
			allowed:        true,
			wantEndpoint:   "messages_post",
			wantBudget:     40,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "message delete",
			method:         http.MethodDelete,
			target:         "/orders?messageId=" + uuid.NewString(),
			allowed:        true,
			wantEndpoint:   "messages_delete",
			wantBudget:     40,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRateLimitRepository)
			repo.On("Allow", mock.Anything, userID.String(), tt.wantEndpoint, 60*time.Second, tt.wantBudget).
				Return(tt.allowed, 17, nil)

			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := RateLimit(repo, testRateLimitConfig(), zerolog.Nop())(testHandler)

			req := httptest.NewRequest(tt.method, tt.target, nil)
			req = req.WithContext(context.WithValue(req.Context(), principalKey, userID))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			repo.AssertExpectations(t)

			if !tt.allowed {
				assert.Equal(t, "17", w.Header().Get("Retry-After"))
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, float64(17), body["retry_after"])
			}
		})
	}
}

func TestRateLimit_ReadsExempt(t *testing.T) {
	repo := new(MockRateLimitRepository)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(repo, testRateLimitConfig(), zerolog.Nop())(testHandler)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, 0, errors.New("connection refused"))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(repo, testRateLimitConfig(), zerolog.Nop())(testHandler)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_FallsBackToRemoteIP(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Allow", mock.Anything, "203.0.113.7", "orders_write", mock.Anything, mock.Anything).
		Return(true, 0, nil)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(repo, testRateLimitConfig(), zerolog.Nop())(testHandler)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestRecovery(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Recovery(zerolog.Nop())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "internal server error"}`, w.Body.String())
}
