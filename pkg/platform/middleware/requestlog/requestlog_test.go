package requestlog

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/epitomedu/epi/pkg/requestcontext"
)

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seenID string
	h := chimw.RequestID(RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = requestcontext.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apply", nil))

	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/apply"`)
}
