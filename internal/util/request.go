package util

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller address, preferring the first X-Forwarded-For hop when trustProxyHeaders is set
func GetClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return strings.TrimSpace(ip)
		}
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// IsSuccessStatus reports a 2xx code
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}
