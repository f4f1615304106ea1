package probe

import (
	"errors"
	"net"
)

// DNS failure classes, as seen by the OS resolver.
const (
	dnsNXDomain = "NXDOMAIN"
	dnsNoRecord = "NO_A_RECORD"
	dnsTimeout  = "SERVFAIL_or_TIMEOUT"
)

// dnsClass classifies a resolver error; ok is false when err is not a DNS error.
func dnsClass(err error) (class string, ok bool) {
	var de *net.DNSError
	if !errors.As(err, &de) {
		return "", false
	}
	switch {
	case de.IsNotFound:
		return dnsNXDomain, true
	case de.IsTemporary || de.Timeout():
		return dnsTimeout, true
	default:
		return dnsNoRecord, true
	}
}

// describeError turns a transport error into a short reason string.
func describeError(err error) string {
	if class, ok := dnsClass(err); ok {
		var de *net.DNSError
		errors.As(err, &de)
		return "dns=" + class + " " + de.Name
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Addr != nil {
		if opErr.Timeout() {
			return opErr.Addr.String() + ": connection timed out"
		}
		return opErr.Addr.String() + ": connection refused"
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return err.Error()
}
