package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func headerMap(values map[string]string) func(string) string {
	return func(name string) string { return values[name] }
}

func TestIdentityResolve_HeaderPriority(t *testing.T) {
	svc := &IdentityService{}

	ip, ok := svc.Resolve(headerMap(map[string]string{
		"CF-Connecting-IP": "203.0.113.7",
		"X-Forwarded-For":  "198.51.100.1",
	}), "192.0.2.10:44321")

	assert.True(t, ok)
	assert.Equal(t, "203.0.113.7", ip)
}

func TestIdentityResolve_ForwardedListPicksFirstPublic(t *testing.T) {
	svc := &IdentityService{}

	ip, ok := svc.Resolve(headerMap(map[string]string{
		"X-Forwarded-For": "10.0.0.5, 203.0.113.9, 198.51.100.2",
	}), "127.0.0.1:9999")

	assert.True(t, ok)
	assert.Equal(t, "203.0.113.9", ip)
}

func TestIdentityResolve_PrivateForwardedRejected(t *testing.T) {
	svc := &IdentityService{}

	// A forwarded header full of private ranges is untrustworthy; the peer
	// address wins even when private.
	ip, ok := svc.Resolve(headerMap(map[string]string{
		"X-Forwarded-For": "10.1.2.3, 192.168.1.1",
		"X-Real-IP":       "172.16.0.9",
	}), "192.168.5.20:51000")

	assert.True(t, ok)
	assert.Equal(t, "192.168.5.20", ip)
}

func TestIdentityResolve_PortStripping(t *testing.T) {
	svc := &IdentityService{}

	ip, ok := svc.Resolve(headerMap(map[string]string{
		"X-Real-IP": "203.0.113.4:8443",
	}), "")

	assert.True(t, ok)
	assert.Equal(t, "203.0.113.4", ip)
}

func TestIdentityResolve_IPv6(t *testing.T) {
	svc := &IdentityService{}

	ip, ok := svc.Resolve(headerMap(map[string]string{
		"CF-Connecting-IP": "2001:db8::1",
	}), "")

	assert.True(t, ok)
	assert.Equal(t, "2001:db8::1", ip)

	ip, ok = svc.Resolve(headerMap(nil), "[2001:db8::2]:443")
	assert.True(t, ok)
	assert.Equal(t, "2001:db8::2", ip)
}

func TestIdentityResolve_NoUsableAddress(t *testing.T) {
	svc := &IdentityService{}

	_, ok := svc.Resolve(headerMap(map[string]string{
		"X-Forwarded-For": "not-an-ip, also-bad",
	}), "garbage")

	assert.False(t, ok)
}

func TestIdentityResolve_LoopbackForwardedRejected(t *testing.T) {
	svc := &IdentityService{}

	ip, ok := svc.Resolve(headerMap(map[string]string{
		"X-Forwarded-For": "127.0.0.1",
	}), "203.0.113.30:80")

	assert.True(t, ok)
	assert.Equal(t, "203.0.113.30", ip)
}
