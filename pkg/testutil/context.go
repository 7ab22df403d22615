package testutil

import (
	"net/http"
	"time"

	"github.com/epitomedu/epi/pkg/requestcontext"
)

// WithClientIP sets the source address the metadata middleware would derive.
func WithClientIP(req *http.Request, ip string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, req.UserAgent())
	return req.WithContext(ctx)
}

// WithRequestTime pins the request instant the way the request-time
// middleware does.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
