package services

import (
	"net"
	"net/netip"
	"strings"

	"github.com/alphabatem/common/context"
)

// IdentityService resolves the public client IP for a request from a
// prioritized set of header sources. The ordering is a trust hierarchy:
// CDN-assigned headers first, generic forwarding headers next, the raw peer
// address last. Forwarded headers are attacker-controllable, so private-range
// candidates found there are rejected; the peer address accepts private ranges
// for local and internal deployments.
type IdentityService struct {
	context.DefaultService
}

const IDENTITY_SVC = "identity_svc"

var forwardHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
}

func (svc IdentityService) Id() string {
	return IDENTITY_SVC
}

func (svc *IdentityService) Start() error {
	return nil
}

// Resolve returns the first candidate across all sources that parses as a
// valid IP literal and is acceptable for the source it came from. The second
// return is false when no source yields a usable address.
func (svc *IdentityService) Resolve(header func(name string) string, remoteAddr string) (string, bool) {
	for _, name := range forwardHeaders {
		value := header(name)
		if value == "" {
			continue
		}

		for _, candidate := range strings.Split(value, ",") {
			addr, ok := parseAddr(strings.TrimSpace(candidate))
			if ok && isPublic(addr) {
				return addr.String(), true
			}
		}
	}

	if addr, ok := parseAddr(strings.TrimSpace(remoteAddr)); ok {
		return addr.String(), true
	}

	return "", false
}

// parseAddr accepts a bare IP literal or an ip:port pair, IPv6 brackets
// included.
func parseAddr(s string) (netip.Addr, bool) {
	if s == "" {
		return netip.Addr{}, false
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap(), true
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		if addr, err := netip.ParseAddr(host); err == nil {
			return addr.Unmap(), true
		}
	}

	return netip.Addr{}, false
}

func isPublic(addr netip.Addr) bool {
	switch {
	case addr.IsPrivate(),
		addr.IsLoopback(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified():
		return false
	}
	return true
}
