package models

import (
	"net"
	"strings"
)

// RequestInfo is the request context the boundary layer extracts for
// audit entries.
type RequestInfo struct {
	SourceIP  string
	UserAgent string
}

// ClientIP picks the first X-Forwarded-For hop when present, otherwise the
// host part of remoteAddr.
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
