package httputil

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// TrustedProxies resolves the caller address behind reverse proxies. The
// X-Forwarded-For and X-Real-IP headers are honored only when the connection
// comes from one of the configured networks. A nil or empty set trusts no one.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies builds a set from CIDRs or bare IPs.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	t := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv4len
			if ip.To4() == nil {
				bits = 8 * net.IPv6len
			}
			entry = fmt.Sprintf("%s/%d", entry, bits)
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		t.nets = append(t.nets, n)
	}
	return t, nil
}

// Trusts reports whether ip belongs to a trusted network.
func (t *TrustedProxies) Trusts(ip string) bool {
	if t == nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller of r. When the peer is untrusted its address
// wins. Otherwise X-Forwarded-For is walked from the right and the first hop
// outside the trusted networks is returned.
func (t *TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !t.Trusts(peer) {
		return peer
	}

	if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		hops := strings.Split(strings.Join(forwarded, ","), ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				// a garbled hop ends the chain we can vouch for
				break
			}
			client = hop
			if !t.Trusts(hop) {
				break
			}
		}
		return client
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}
	return peer
}

// Middleware stores the resolved caller address for ClientIP.
func (t *TrustedProxies) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := contextkeys.WithClientIP(r.Context(), t.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
