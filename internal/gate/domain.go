package gate

import (
	"net"
	"strings"
)

// localHosts are always admitted so local development never trips the gate.
var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// IsDomainAllowed reports whether host is covered by the allow-list.
// A host matches an entry when it equals the entry exactly or is a proper
// subdomain of it (host ends with "." + entry). Substring containment is
// deliberately NOT a match: "fake-example.org.evil.com" must not pass for
// an allow-list containing "example.org".
//
// Pure and synchronous; safe to call repeatedly.
func IsDomainAllowed(host string, allowed []string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}

	if localHosts[host] {
		return true
	}

	for _, entry := range allowed {
		entry = NormalizeHost(entry)
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}

	return false
}

// NormalizeHost lowercases the host, strips any port, and removes a leading
// "www." so "WWW.Example.org:8443" and "example.org" compare equal.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}

	// Strip port, tolerating bare IPv6 literals that SplitHostPort rejects
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	host = strings.TrimPrefix(host, "www.")
	return strings.TrimSuffix(host, ".")
}
