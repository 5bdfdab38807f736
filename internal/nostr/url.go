package nostr

import (
	"net/url"
	"strings"

	"nostr-zapwallet/internal/util"
)

// NormalizeRelayURL validates and normalizes a relay URL.
// Returns empty string if URL is invalid/malformed
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" || !strings.Contains(relayURL, "://") {
		return ""
	}
	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 || strings.Contains(relayURL, "%20") {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	if len(host) < 3 || strings.Contains(host, " ") {
		return ""
	}
	if !strings.Contains(host, ".") && !util.IsLoopbackHost(host) {
		return ""
	}
	if util.IsInternalHost(host) {
		return ""
	}

	// Normalize: strip trailing slash, lowercase
	result := scheme + "://" + host
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += strings.TrimSuffix(parsed.Path, "/")
	}
	return result
}

// NormalizeRelayURLs normalizes and de-duplicates a relay list, keeping order.
func NormalizeRelayURLs(relays []string) []string {
	seen := make(map[string]bool, len(relays))
	out := make([]string, 0, len(relays))
	for _, r := range relays {
		n := NormalizeRelayURL(r)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
