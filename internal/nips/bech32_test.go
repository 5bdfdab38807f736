package nips

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"nostr-zapwallet/internal/types"
)

func TestBech32RoundTrip(t *testing.T) {
	valid := []string{
		"A12UEL5L",
		"a12uel5l",
		"an83characterlonghumanreadablepartthatcontainsthenumber1andtheexcludedcharactersbio1tt5tgs",
		"abcdef1qpzry9x8gf2tvdw0s3jn54khce6mua7lmqqqxw",
		"?1ezyfcl",
		"split1checkupstagehandshakeupstreamerranterredcaperred2y9e3w",
	}

	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			hrp, words, err := Bech32DecodeVerified(s)
			if err != nil {
				t.Fatalf("decode %q: %v", s, err)
			}
			got, err := Bech32Encode(hrp, words)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if got != strings.ToLower(s) {
				t.Errorf("round trip = %q, want %q", got, strings.ToLower(s))
			}
		})
	}
}

func TestBech32DecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no separator", "pzry9x8gf2tvdw0s3jn54khce6mua7l"},
		{"empty hrp", "1pzry9x8gf2tvdw0s3jn54khce6mua7l"},
		{"invalid data char", "x1b4n0q5v"},
		{"too short for checksum", "a1qqqqq"},
		{"mixed case", "A12uEL5L"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Bech32Decode(tt.input)
			if err == nil {
				t.Fatalf("Bech32Decode(%q) succeeded, want error", tt.input)
			}
			if !errors.Is(err, types.ErrMalformedEncoding) {
				t.Errorf("error kind = %v, want MalformedEncoding", types.KindOf(err))
			}
		})
	}
}

func TestBech32ChecksumVerification(t *testing.T) {
	good := "abcdef1qpzry9x8gf2tvdw0s3jn54khce6mua7lmqqqxw"
	// flip one data character
	bad := strings.Replace(good, "qpzry", "ppzry", 1)

	if _, _, err := Bech32Decode(bad); err != nil {
		t.Fatalf("unverified decode should tolerate bad checksum: %v", err)
	}
	if _, _, err := Bech32DecodeVerified(bad); !errors.Is(err, types.ErrMalformedEncoding) {
		t.Errorf("verified decode of tampered string: err = %v, want MalformedEncoding", err)
	}
	if !VerifyChecksum(good) {
		t.Error("VerifyChecksum(good) = false")
	}
}

func TestWordsToBytesDropsPartialByte(t *testing.T) {
	// 4 words = 20 bits: two full bytes plus 4 leftover bits
	got := WordsToBytes([]byte{31, 31, 31, 31})
	if !bytes.Equal(got, []byte{0xff, 0xff}) {
		t.Errorf("WordsToBytes = %x, want ffff", got)
	}

	// leftover bits are ignored even when non-zero
	if got := WordsToBytes([]byte{0, 1}); len(got) != 1 || got[0] != 0 {
		t.Errorf("WordsToBytes([0 1]) = %x, want 00", got)
	}

	for _, data := range [][]byte{{}, {0x00}, {0xde, 0xad, 0xbe, 0xef}, []byte("https://example.com/lnurlp/bob")} {
		if got := WordsToBytes(BytesToWords(data)); !bytes.Equal(got, data) {
			t.Errorf("WordsToBytes(BytesToWords(%x)) = %x", data, got)
		}
	}
}

func TestLNURLCodec(t *testing.T) {
	const encoded = "LNURL1DP68GURN8GHJ7UM9WFMXJCM99E3K7MF0V9CXJ0M385EKVCENXC6R2C35XVUKXEFCV5MKVV34X5EKZD3EV56NYD3HXQURZEPEXEJXXEPNXSCRVWFNV9NXZCN9XQ6XYEFHVGCXXCMYXYMNSERXFQ5FNS"
	const decoded = "https://service.com/api?q=3fc3645b439ce8e7f2553a69e5267081d96dcd340693afabe04be7b0ccd178df"

	got, err := DecodeLNURL(encoded)
	if err != nil {
		t.Fatalf("DecodeLNURL: %v", err)
	}
	if got != decoded {
		t.Errorf("DecodeLNURL = %q, want %q", got, decoded)
	}

	again, err := EncodeLNURL(decoded)
	if err != nil {
		t.Fatalf("EncodeLNURL: %v", err)
	}
	if again != encoded {
		t.Errorf("EncodeLNURL = %q, want %q", again, encoded)
	}

	if _, err := DecodeLNURL("npub1" + encoded[6:]); err == nil {
		t.Error("expected error for wrong hrp")
	}
}

func TestNIP19PubkeyAndNote(t *testing.T) {
	hexKey := "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"

	npub, err := EncodePubkey(hexKey)
	if err != nil {
		t.Fatalf("EncodePubkey: %v", err)
	}
	if npub != "npub180cvv07tjdrrgpa0j7j7tmnyl2yr6yr7l8j4s3evf6u64th6gkwsyjh6w6" {
		t.Errorf("EncodePubkey = %s", npub)
	}
	back, err := DecodePubkey(npub)
	if err != nil || back != hexKey {
		t.Errorf("DecodePubkey = %s, %v", back, err)
	}
	if back, err := DecodePubkey(strings.ToUpper(hexKey)); err != nil || back != hexKey {
		t.Errorf("DecodePubkey(hex) = %s, %v", back, err)
	}

	note, err := EncodeEventID(hexKey)
	if err != nil {
		t.Fatalf("EncodeEventID: %v", err)
	}
	id, err := DecodeNote(note)
	if err != nil || id != hexKey {
		t.Errorf("DecodeNote = %s, %v", id, err)
	}
	if _, err := DecodeNote(npub); err == nil {
		t.Error("DecodeNote should reject an npub")
	}
}

func TestDecodeNAddr(t *testing.T) {
	author := bytes.Repeat([]byte{0xab}, 32)
	var tlv []byte
	tlv = append(tlv, tlvTypeSpecial, 5)
	tlv = append(tlv, "hello"...)
	tlv = append(tlv, tlvTypeRelay, 15)
	tlv = append(tlv, "wss://relay.com"...)
	tlv = append(tlv, tlvTypeAuthor, 32)
	tlv = append(tlv, author...)
	tlv = append(tlv, tlvTypeKind, 4, 0, 0, 0x75, 0x33) // 30003

	s, err := Bech32Encode("naddr", BytesToWords(tlv))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	n, err := DecodeNAddr(s)
	if err != nil {
		t.Fatalf("DecodeNAddr: %v", err)
	}
	if n.Kind != 30003 || n.DTag != "hello" || len(n.RelayHints) != 1 {
		t.Errorf("DecodeNAddr = %+v", n)
	}
	want := "30003:" + strings.Repeat("ab", 32) + ":hello"
	if n.ATag() != want {
		t.Errorf("ATag = %s, want %s", n.ATag(), want)
	}
}
