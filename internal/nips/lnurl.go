package nips

import "strings"

const lnurlHRP = "lnurl"

// DecodeLNURL recovers the URL embedded in a bech32 LNURL string (LUD-01).
// The checksum is verified.
func DecodeLNURL(lnurl string) (string, error) {
	hrp, words, err := Bech32DecodeVerified(strings.TrimSpace(lnurl))
	if err != nil {
		return "", err
	}
	if hrp != lnurlHRP {
		return "", malformed("unexpected human-readable part %q", hrp)
	}
	return string(WordsToBytes(words)), nil
}

// EncodeLNURL encodes a URL as an upper-case bech32 LNURL string.
func EncodeLNURL(rawURL string) (string, error) {
	s, err := Bech32Encode(lnurlHRP, BytesToWords([]byte(rawURL)))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(s), nil
}
