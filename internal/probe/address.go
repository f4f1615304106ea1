package probe

import (
	"net/url"
	"strings"
)

// HasScheme reports whether the address carries an explicit URL scheme.
func HasScheme(addr string) bool {
	return strings.Contains(addr, "://")
}

// EnsureProtocol prefixes http:// when the address has no scheme.
func EnsureProtocol(addr string) string {
	if HasScheme(addr) {
		return addr
	}
	return "http://" + addr
}

// FormatServerPrint strips a leading http:// or https:// for display.
func FormatServerPrint(addr string) string {
	if s, ok := strings.CutPrefix(addr, "https://"); ok {
		return s
	}
	if s, ok := strings.CutPrefix(addr, "http://"); ok {
		return s
	}
	return addr
}

// extractHost pulls the hostname from a URL string, or returns the input
// unchanged for bare hosts.
func extractHost(raw string) string {
	if !HasScheme(raw) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
