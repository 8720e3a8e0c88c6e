package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceIDFromRequest returns the client-supplied device identifier, empty
// when the header is absent.
func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// RequestIDFromRequest returns the propagated request id, empty when the
// header is absent.
func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// IPFromRequest returns the originating client address: the first
// X-Forwarded-For hop when a proxy set one, otherwise the socket peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
