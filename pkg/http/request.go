package http

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address with support for reverse proxies.
//
// The first comma-separated X-Forwarded-For value wins when it parses as a
// valid IPv4 or IPv6 address; otherwise the transport-level peer address is
// used, and "unknown" is the last resort. Malformed headers never fail the
// request.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if r.RemoteAddr != "" {
		// RemoteAddr may include port: "ip:port"
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}
