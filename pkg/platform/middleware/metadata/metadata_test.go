package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epitomedu/epi/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	proxies, err := ParseTrustedProxies("127.0.0.0/8, ::1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cdn header wins behind proxy", map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Forwarded-For": "10.0.0.1"}, "127.0.0.1:1234", "198.51.100.1"},
		{"first forwarded address behind proxy", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "127.0.0.1:1234", "203.0.113.5"},
		{"real ip header behind proxy", map[string]string{"X-Real-IP": " 203.0.113.9 "}, "[::1]:1234", "203.0.113.9"},
		{"trusted proxy without headers", nil, "127.0.0.1:1234", "127.0.0.1"},
		{"untrusted peer cannot claim cdn address", map[string]string{"CF-Connecting-IP": "1.1.1.1"}, "198.51.100.9:5555", "198.51.100.9"},
		{"untrusted peer cannot claim forwarded address", map[string]string{"X-Forwarded-For": "2.2.2.2"}, "198.51.100.9:5555", "198.51.100.9"},
		{"untrusted peer cannot claim real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "198.51.100.9:5555", "198.51.100.9"},
		{"remote addr ipv4", nil, "192.0.2.4:5555", "192.0.2.4"},
		{"remote addr ipv6", nil, "[2001:db8::1]:5555", "2001:db8::1"},
		{"nothing known", nil, "", "0.0.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req, proxies))
		})
	}
}

func TestClientIPFromRequest_NoTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("CF-Connecting-IP", "198.51.100.1")

	assert.Equal(t, "127.0.0.1", ClientIPFromRequest(req, nil))
}

func TestParseTrustedProxies(t *testing.T) {
	t.Run("cidrs and bare addresses", func(t *testing.T) {
		proxies, err := ParseTrustedProxies(" 10.0.0.0/8 ,, 192.0.2.7, 2001:db8::/32 ")
		require.NoError(t, err)
		require.Len(t, proxies, 3)

		assert.True(t, proxies.Contains(netip.MustParseAddr("10.20.30.40")))
		assert.True(t, proxies.Contains(netip.MustParseAddr("192.0.2.7")))
		assert.False(t, proxies.Contains(netip.MustParseAddr("192.0.2.8")))
		assert.True(t, proxies.Contains(netip.MustParseAddr("2001:db8::5")))
		assert.True(t, proxies.Contains(netip.MustParseAddr("::ffff:10.1.1.1")))
	})

	t.Run("empty trusts nobody", func(t *testing.T) {
		proxies, err := ParseTrustedProxies("")
		require.NoError(t, err)
		assert.False(t, proxies.Contains(netip.MustParseAddr("127.0.0.1")))
	})

	t.Run("malformed entry", func(t *testing.T) {
		_, err := ParseTrustedProxies("10.0.0.0/8,not-an-ip")
		assert.ErrorContains(t, err, "not-an-ip")
	})
}

func TestClientMetadata(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(TrustedProxies{netip.MustParsePrefix("192.0.2.0/24")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	// httptest requests originate from 192.0.2.1.
	req := httptest.NewRequest(http.MethodPost, "/api/apply", nil)
	req.Header.Set("CF-Connecting-IP", "198.51.100.20")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.20", gotIP)
	assert.Equal(t, "Mozilla/5.0", gotUA)
}
