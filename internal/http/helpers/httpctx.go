package helpers

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP toma el primer X-Forwarded-For; si no hay, RemoteAddr sin puerto.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		return strings.TrimSpace(strings.Split(xf, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
