package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		expected string
		target   string
		header   string
		want     int
	}{
		{"no token configured", "", "/api/log.txt", "", http.StatusOK},
		{"query token matches", "s3cret", "/api/log.txt?token=s3cret", "", http.StatusOK},
		{"header token matches", "s3cret", "/api/log.txt", "s3cret", http.StatusOK},
		{"missing token", "s3cret", "/api/log.txt", "", http.StatusUnauthorized},
		{"wrong token", "s3cret", "/api/log.txt?token=guess", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("X-Admin-Token", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireAdminToken(tt.expected, logger)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
