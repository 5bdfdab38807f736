package relay

import (
	"net"
	"net/url"
	"strings"

	"nostr-zapwallet/internal/util"
)

// IsRelayURLSafe validates that a relay URL is safe to connect to.
// Allows localhost for development but blocks other private IP ranges.
func IsRelayURLSafe(relayURL string) bool {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return false
	}

	host := parsed.Hostname()
	if host == "" {
		return false
	}
	if util.IsLoopbackHost(host) {
		return true
	}
	if util.IsInternalHost(host) || strings.HasSuffix(host, ".") {
		return false
	}

	if ip := net.ParseIP(host); ip != nil {
		return !util.IsPrivateIP(ip)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable here; the dial itself will fail if it is really bogus
		return true
	}
	for _, ip := range ips {
		if ip.IsLoopback() {
			continue
		}
		if util.IsPrivateIP(ip) {
			return false
		}
	}
	return true
}
