package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testAdminKey = "test-admin-key-0123456789abcdef"

func adminProtectedHandler(t *testing.T) http.Handler {
	t.Helper()

	auth := NewAdminAuth(testAdminKey, slog.Default())
	return auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAdminAuth(t *testing.T) {
	handler := adminProtectedHandler(t)

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "no credential",
			headers:    nil,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid header key",
			headers:    map[string]string{"X-Admin-Key": testAdminKey},
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer token",
			headers:    map[string]string{"Authorization": "Bearer " + testAdminKey},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong header key",
			headers:    map[string]string{"X-Admin-Key": "wrong-key"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong bearer token",
			headers:    map[string]string{"Authorization": "Bearer wrong-key"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "truncated key",
			headers:    map[string]string{"X-Admin-Key": testAdminKey[:len(testAdminKey)-1]},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "basic auth scheme ignored",
			headers:    map[string]string{"Authorization": "Basic " + testAdminKey},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAdminAuth_HeaderTakesPrecedenceOverBearer(t *testing.T) {
	handler := adminProtectedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	req.Header.Set("X-Admin-Key", "wrong-key")
	req.Header.Set("Authorization", "Bearer "+testAdminKey)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
