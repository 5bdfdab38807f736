package util

import (
	"net"
	"strings"
)

// =============================================================================
// Host Validation Helpers
// =============================================================================

// IsInternalHost checks if a hostname is internal/private and should not be accessed.
// Used to prevent SSRF attacks by blocking requests to internal networks.
func IsInternalHost(host string) bool {
	host = strings.ToLower(host)
	return strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") ||
		strings.HasSuffix(host, ".onion") ||
		strings.HasSuffix(host, ".localhost")
}

// IsLoopbackHost checks if a hostname resolves to localhost.
func IsLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		host == "::1" ||
		host == "[::1]" ||
		strings.HasPrefix(host, "127.")
}

// IsPrivateHost checks if a host should be blocked for security reasons.
// Combines internal host, loopback and private-literal-IP checks.
func IsPrivateHost(host string) bool {
	if IsInternalHost(host) || IsLoopbackHost(host) {
		return true
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return IsPrivateIP(ip)
	}
	return false
}

// IsPrivateIP reports addresses that must never be dialed on behalf of a
// remote party (RFC1918, link-local, loopback, unspecified, multicast).
func IsPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}

// =============================================================================
// String Helpers
// =============================================================================

// TruncateString truncates a string to maxLen bytes, appending "..." if truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// TruncateRunes cuts s to at most n characters without splitting a UTF-8
// sequence.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
