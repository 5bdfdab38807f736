// Package nips implements the Nostr and Lightning encodings and crypto
// primitives used by the payment engine: bech32 (LNURL, NIP-19) and the
// NIP-04 / NIP-44 payload encryption schemes.
package nips

import (
	"strings"

	"nostr-zapwallet/internal/types"
)

// Bech32 charset
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const bech32ChecksumLen = 6

func malformed(format string, args ...interface{}) error {
	return types.NewError(types.KindMalformedEncoding, format, args...)
}

// Bech32Decode splits a bech32 string into its human-readable part and data
// words, with the 6-word checksum removed. Case is normalised to lower.
//
// The checksum is NOT verified here; use Bech32DecodeVerified when the
// caller needs tamper detection.
func Bech32Decode(input string) (string, []byte, error) {
	lower := strings.ToLower(input)
	if lower != input && strings.ToUpper(input) != input {
		return "", nil, malformed("mixed case bech32 string")
	}

	pos := strings.LastIndexByte(lower, '1')
	if pos < 0 {
		return "", nil, malformed("missing separator")
	}
	if pos < 1 {
		return "", nil, malformed("empty human-readable part")
	}
	if len(lower)-pos-1 < bech32ChecksumLen {
		return "", nil, malformed("too short for checksum")
	}

	hrp := lower[:pos]
	for i := 0; i < len(hrp); i++ {
		if hrp[i] < 33 || hrp[i] > 126 {
			return "", nil, malformed("invalid human-readable part character")
		}
	}

	data := lower[pos+1:]
	values := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		idx := strings.IndexByte(bech32Charset, data[i])
		if idx == -1 {
			return "", nil, malformed("invalid character %q", data[i])
		}
		values = append(values, byte(idx))
	}

	return hrp, values[:len(values)-bech32ChecksumLen], nil
}

// Bech32DecodeVerified is Bech32Decode plus checksum verification.
func Bech32DecodeVerified(input string) (string, []byte, error) {
	hrp, words, err := Bech32Decode(input)
	if err != nil {
		return "", nil, err
	}
	if !VerifyChecksum(input) {
		return "", nil, malformed("checksum mismatch")
	}
	return hrp, words, nil
}

// VerifyChecksum reports whether the trailing 6 characters of input are a
// valid bech32 checksum for the rest of the string.
func VerifyChecksum(input string) bool {
	lower := strings.ToLower(input)
	pos := strings.LastIndexByte(lower, '1')
	if pos < 1 || len(lower)-pos-1 < bech32ChecksumLen {
		return false
	}
	values := bech32HrpExpand(lower[:pos])
	for i := pos + 1; i < len(lower); i++ {
		idx := strings.IndexByte(bech32Charset, lower[i])
		if idx == -1 {
			return false
		}
		values = append(values, idx)
	}
	return bech32Polymod(values) == 1
}

// WordsToBytes packs 5-bit words into bytes MSB-first. A trailing group of
// fewer than 8 bits is discarded, whatever its value; the padding bits are
// not checked.
func WordsToBytes(words []byte) []byte {
	acc := 0
	bits := 0
	out := make([]byte, 0, len(words)*5/8)
	for _, w := range words {
		acc = (acc << 5) | int(w&31)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
			acc &= (1 << bits) - 1
		}
	}
	return out
}

// BytesToWords unpacks bytes into 5-bit words, zero-padding the last word.
func BytesToWords(data []byte) []byte {
	words, _ := Bech32ConvertBits(data, 8, 5, true)
	return words
}

// Bech32ConvertBits converts between bit groups
func Bech32ConvertBits(data []byte, fromBits, toBits int, pad bool) ([]byte, error) {
	acc := 0
	bits := 0
	var ret []byte
	maxv := (1 << toBits) - 1

	for _, value := range data {
		if int(value)>>fromBits != 0 {
			return nil, malformed("value out of range for %d-bit group", fromBits)
		}
		acc = (acc << fromBits) | int(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, malformed("invalid padding")
	}

	return ret, nil
}

// Bech32Encode encodes data words with the given HRP
func Bech32Encode(hrp string, words []byte) (string, error) {
	hrp = strings.ToLower(hrp)
	if hrp == "" {
		return "", malformed("empty human-readable part")
	}
	for _, w := range words {
		if w > 31 {
			return "", malformed("word out of range")
		}
	}

	checksum := bech32CreateChecksum(hrp, words)

	var result strings.Builder
	result.Grow(len(hrp) + 1 + len(words) + bech32ChecksumLen)
	result.WriteString(hrp)
	result.WriteByte('1')
	for _, v := range words {
		result.WriteByte(bech32Charset[v])
	}
	for _, v := range checksum {
		result.WriteByte(bech32Charset[v])
	}
	return result.String(), nil
}

// bech32 polymod for checksum calculation
func bech32Polymod(values []int) int {
	gen := [5]int{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := 1
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ v
		for i := 0; i < 5; i++ {
			if (top>>i)&1 != 0 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []int {
	ret := make([]int, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		ret = append(ret, int(hrp[i]>>5))
	}
	ret = append(ret, 0)
	for i := 0; i < len(hrp); i++ {
		ret = append(ret, int(hrp[i]&31))
	}
	return ret
}

func bech32CreateChecksum(hrp string, data []byte) []byte {
	values := bech32HrpExpand(hrp)
	for _, d := range data {
		values = append(values, int(d))
	}
	values = append(values, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(values) ^ 1
	checksum := make([]byte, bech32ChecksumLen)
	for i := range checksum {
		checksum[i] = byte((polymod >> (5 * (5 - i))) & 31)
	}
	return checksum
}
