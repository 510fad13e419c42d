package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	handler := CORS([]string{"https://app.example.com/", " "}, next)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"allowed simple request", http.MethodGet, "https://app.example.com", false, http.StatusOK, "https://app.example.com"},
		{"other origin", http.MethodGet, "https://evil.example.com", false, http.StatusOK, ""},
		{"allowed preflight", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com"},
		{"rejected preflight", http.MethodOptions, "https://evil.example.com", true, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/admin/events", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.preflight && tt.wantOrigin != "" {
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
			}
		})
	}
}
