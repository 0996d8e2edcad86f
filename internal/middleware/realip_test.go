package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustedProxies_RealIP(t *testing.T) {
	proxies, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	cases := []struct {
		name    string
		proxies *TrustedProxies
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted peer keeps its address",
			proxies: proxies,
			remote:  "198.51.100.1:4000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "203.0.113.9"},
			want:    "198.51.100.1:4000",
		},
		{
			name:    "true-client-ip is ignored",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"True-Client-IP": "203.0.113.9"},
			want:    "10.1.2.3:4000",
		},
		{
			name:    "trusted peer forwards the client",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "spoofed leftmost hop is skipped",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.9, 10.9.9.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "single host entry",
			proxies: proxies,
			remote:  "192.0.2.10:80",
			headers: map[string]string{"X-Real-IP": "203.0.113.5"},
			want:    "203.0.113.5",
		},
		{
			name:    "malformed forwarded value is ignored",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:    "10.1.2.3:4000",
		},
		{
			name:    "nil set trusts nobody",
			proxies: nil,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "10.1.2.3:4000",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := tc.proxies.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewTrustedProxies_RejectsBadEntry(t *testing.T) {
	_, err := NewTrustedProxies([]string{"10.0.0.0/8", "proxy.local"})
	assert.Error(t, err)

	p, err := NewTrustedProxies([]string{" ", ""})
	require.NoError(t, err)
	assert.Empty(t, p.prefixes)
}
