package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequestPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", " 10.0.0.7 , 10.0.0.1")
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.2:5555"
	assert.Equal(t, "192.168.1.2", IPFromRequest(req))
}

func TestRequestIDFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	assert.Equal(t, "abc", RequestIDFromRequest(req))

	req.Header.Del("X-Request-Id")
	assert.NotEmpty(t, RequestIDFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	svc, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", svc)
	assert.Equal(t, "Check", method)

	svc, method = splitFullMethod("bad")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "unknown", method)
}
