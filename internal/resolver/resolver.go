package resolver

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"nostr-zapwallet/internal/bolt11"
	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/types"
)

var (
	// dot-atom local part, as used by LUD-16 (a-z0-9-_.+ in practice)
	localPartRe = regexp.MustCompile(`^[a-zA-Z0-9!#$%&'*+/=?^_{|}~.-]+$`)
	domainRe    = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]{2,63}(:[0-9]{1,5})?$`)
)

// Resolve classifies input. First match wins, checked case-insensitively
// after trimming and removing a "lightning:" URI scheme:
//
//	lnbc / lntb                -> Bolt11Invoice
//	bc1 / tb1 / bcrt1          -> BitcoinAddress
//	exactly one '@'            -> LightningAddress
//	lnurl / lnurlp://          -> LnurlPay
//	66 hex chars, 02/03 prefix -> NodeID
//	anything else              -> Unsupported
func Resolve(input string) Destination {
	s := normalize(input)
	lower := strings.ToLower(s)

	switch {
	case s == "":
		return Unsupported{Raw: s, Err: types.NewError(types.KindUnsupportedDestination, "empty input")}

	case strings.HasPrefix(lower, "lnbc") || strings.HasPrefix(lower, "lntb"):
		return resolveInvoice(s)

	case strings.HasPrefix(lower, "bc1") || strings.HasPrefix(lower, "tb1") || strings.HasPrefix(lower, "bcrt1"):
		return BitcoinAddress{Raw: s}

	case strings.Count(s, "@") == 1:
		if addr, ok := parseLightningAddress(s); ok {
			return addr
		}
		return Unsupported{Raw: s, Err: types.NewError(types.KindUnsupportedDestination, "malformed lightning address")}

	case strings.HasPrefix(lower, "lnurl1"):
		return resolveLNURL(s)

	case strings.HasPrefix(lower, "lnurlp://"):
		return resolveLUD17(s)

	case isNodeID(lower):
		return NodeID{Raw: lower}
	}

	return Unsupported{Raw: s, Err: types.NewError(types.KindUnsupportedDestination, "unrecognised payment destination")}
}

func normalize(input string) string {
	s := strings.TrimSpace(input)
	if len(s) >= len("lightning:") && strings.EqualFold(s[:len("lightning:")], "lightning:") {
		s = s[len("lightning:"):]
		s = strings.TrimPrefix(s, "//")
	}
	return strings.TrimSpace(s)
}

func resolveInvoice(s string) Destination {
	inv, err := bolt11.Decode(s)
	if err != nil {
		// Prefix matched; keep the classification and let the wallet reject it.
		return Bolt11Invoice{Raw: s, Network: bolt11.Network(s)}
	}
	return Bolt11Invoice{Raw: s, Network: inv.Network, AmountMsat: inv.AmountMsat, HasAmount: inv.HasAmount}
}

func parseLightningAddress(s string) (LightningAddress, bool) {
	user, domain, _ := strings.Cut(s, "@")
	if user == "" || domain == "" {
		return LightningAddress{}, false
	}
	if !localPartRe.MatchString(user) || strings.HasPrefix(user, ".") || strings.HasSuffix(user, ".") || strings.Contains(user, "..") {
		return LightningAddress{}, false
	}
	domain = strings.ToLower(domain)
	if !domainRe.MatchString(domain) {
		return LightningAddress{}, false
	}
	return LightningAddress{User: strings.ToLower(user), Domain: domain}, true
}

func resolveLNURL(s string) Destination {
	callback, err := nips.DecodeLNURL(s)
	if err != nil {
		return Unsupported{Raw: s, Err: err}
	}
	if !isHTTPURL(callback) {
		return Unsupported{Raw: s, Err: types.NewError(types.KindMalformedEncoding, "LNURL does not contain an http(s) URL")}
	}
	return LnurlPay{Raw: s, CallbackURL: callback}
}

// LUD-17: lnurlp://host/path is https://host/path (http for .onion).
func resolveLUD17(s string) Destination {
	rest := s[len("lnurlp://"):]
	u, err := url.Parse("https://" + rest)
	if err != nil || u.Host == "" {
		return Unsupported{Raw: s, Err: types.NewError(types.KindUnsupportedDestination, "malformed lnurlp URL")}
	}
	if strings.HasSuffix(u.Hostname(), ".onion") {
		u.Scheme = "http"
	}
	return LnurlPay{Raw: s, CallbackURL: u.String()}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

func isNodeID(s string) bool {
	if len(s) != 66 || (!strings.HasPrefix(s, "02") && !strings.HasPrefix(s, "03")) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
