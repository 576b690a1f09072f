package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "::1"})
	require.NoError(t, err)
	assert.True(t, proxies.Trusts("10.1.2.3"))
	assert.True(t, proxies.Trusts("192.168.1.5"))
	assert.False(t, proxies.Trusts("192.168.1.6"))
	assert.True(t, proxies.Trusts("::1"))
	assert.False(t, proxies.Trusts("not-an-ip"))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)

	var none *TrustedProxies
	assert.False(t, none.Trusts("10.0.0.1"))
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		remote   string
		headers  map[string]string
		expected string
	}{
		{"untrusted peer spoofing forwarded", "6.6.6.6:1234", map[string]string{"X-Forwarded-For": "10.0.0.7"}, "6.6.6.6"},
		{"untrusted peer spoofing real ip", "6.6.6.6:1234", map[string]string{"X-Real-IP": "1.1.1.1"}, "6.6.6.6"},
		{"trusted peer single hop", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "203.0.113.9"},
		{"client prepends fake hop", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.9"}, "203.0.113.9"},
		{"skips trusted hops", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.5, 10.0.0.3"}, "203.0.113.9"},
		{"all hops trusted", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "10.0.0.8, 10.0.0.5"}, "10.0.0.8"},
		{"garbled hop", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "203.0.113.9, junk"}, "10.0.0.2"},
		{"trusted peer real ip", "10.0.0.2:80", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"trusted peer no headers", "10.0.0.2:80", nil, "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, proxies.ClientIP(req))
		})
	}
}

func TestTrustedProxies_Middleware(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var seen string
	handler := proxies.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", seen)

	var untrusted *TrustedProxies
	handler = untrusted.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "6.6.6.6:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "6.6.6.6", seen)
}
