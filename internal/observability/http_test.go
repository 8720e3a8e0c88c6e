package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{name: "first forwarded hop wins", forwarded: "203.0.113.9, 10.0.0.1", remoteAddr: "10.0.0.1:4000", want: "203.0.113.9"},
		{name: "single forwarded hop trimmed", forwarded: " 203.0.113.9 ", remoteAddr: "10.0.0.1:4000", want: "203.0.113.9"},
		{name: "falls back to socket peer", remoteAddr: "192.0.2.4:51234", want: "192.0.2.4"},
		{name: "remote addr without port passes through", remoteAddr: "192.0.2.4", want: "192.0.2.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, IPFromRequest(req))
		})
	}
}

func TestRequestMetadataHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, DeviceIDFromRequest(req))
	assert.Empty(t, RequestIDFromRequest(req))

	req.Header.Set("X-Device-Id", "device-7")
	req.Header.Set("X-Request-Id", "req-42")
	assert.Equal(t, "device-7", DeviceIDFromRequest(req))
	assert.Equal(t, "req-42", RequestIDFromRequest(req))
}
