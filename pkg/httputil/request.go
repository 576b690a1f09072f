package httputil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return BadRequest(CodeInvalidJSON, "Malformed JSON body").WithCause(err)
	}
	return nil
}

// PathParam returns a gorilla/mux route variable, empty when absent.
func PathParam(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// ParsePathString extracts a required path parameter.
func ParsePathString(r *http.Request, key string) (string, error) {
	val := PathParam(r, key)
	if val == "" {
		return "", BadRequest("MISSING_PARAMETER", fmt.Sprintf("Missing path parameter: %s", key))
	}
	return val, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// ClientIP returns the caller address resolved by TrustedProxies.Middleware,
// or the connection's remote host when no resolution ran. Forwarding headers
// are never read here.
func ClientIP(r *http.Request) string {
	if ip := contextkeys.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsSafeMethod reports whether method is free of state-changing semantics.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return false
	}
	return true
}
