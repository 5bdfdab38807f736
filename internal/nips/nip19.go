package nips

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
)

// NEvent represents a decoded nevent1... identifier
type NEvent struct {
	EventID    string   // 32-byte event ID as hex
	Author     string   // Optional 32-byte author pubkey as hex
	RelayHints []string // Optional relay URLs
}

// NAddr represents a decoded naddr1... identifier
type NAddr struct {
	Kind       uint32
	Author     string
	DTag       string
	RelayHints []string
}

// ATag renders the address in the "<kind>:<pubkey>:<d>" form used by a tags.
func (n *NAddr) ATag() string {
	return strconv.FormatUint(uint64(n.Kind), 10) + ":" + n.Author + ":" + n.DTag
}

// TLV type constants for NIP-19
const (
	tlvTypeSpecial = 0 // event_id for nevent, d-tag for naddr
	tlvTypeRelay   = 1
	tlvTypeAuthor  = 2
	tlvTypeKind    = 3
)

// EncodePubkey encodes a hex pubkey to npub format
func EncodePubkey(hexPubkey string) (string, error) {
	return encode32("npub", hexPubkey)
}

// EncodeEventID encodes a hex event ID to note format
func EncodeEventID(hexEventID string) (string, error) {
	return encode32("note", hexEventID)
}

// DecodePubkey accepts an npub or a 64-char hex key and returns hex.
func DecodePubkey(s string) (string, error) {
	if strings.HasPrefix(s, "npub1") {
		return decode32("npub", s)
	}
	return normalizeHex32(s)
}

// DecodeNote decodes a note1... bech32 string to event ID
func DecodeNote(note string) (string, error) {
	return decode32("note", note)
}

// DecodeNEvent decodes a nevent1... bech32 string
func DecodeNEvent(nevent string) (*NEvent, error) {
	tlv, err := decodeTLVString("nevent", nevent)
	if err != nil {
		return nil, err
	}
	n := &NEvent{}
	walkTLV(tlv, func(t byte, v []byte) {
		switch t {
		case tlvTypeSpecial:
			if len(v) == 32 {
				n.EventID = hex.EncodeToString(v)
			}
		case tlvTypeRelay:
			n.RelayHints = append(n.RelayHints, string(v))
		case tlvTypeAuthor:
			if len(v) == 32 {
				n.Author = hex.EncodeToString(v)
			}
		}
	})
	if n.EventID == "" {
		return nil, malformed("nevent missing event ID")
	}
	return n, nil
}

// DecodeNAddr decodes a naddr1... bech32 string
func DecodeNAddr(naddr string) (*NAddr, error) {
	tlv, err := decodeTLVString("naddr", naddr)
	if err != nil {
		return nil, err
	}
	n := &NAddr{}
	hasKind := false
	walkTLV(tlv, func(t byte, v []byte) {
		switch t {
		case tlvTypeSpecial:
			n.DTag = string(v)
		case tlvTypeRelay:
			n.RelayHints = append(n.RelayHints, string(v))
		case tlvTypeAuthor:
			if len(v) == 32 {
				n.Author = hex.EncodeToString(v)
			}
		case tlvTypeKind:
			if len(v) == 4 {
				n.Kind = binary.BigEndian.Uint32(v)
				hasKind = true
			}
		}
	})
	if !hasKind || n.Author == "" {
		return nil, malformed("naddr missing kind or author")
	}
	return n, nil
}

func encode32(hrp, hexValue string) (string, error) {
	raw, err := hex.DecodeString(hexValue)
	if err != nil {
		return "", malformed("invalid hex: %v", err)
	}
	if len(raw) != 32 {
		return "", malformed("invalid %s length", hrp)
	}
	return Bech32Encode(hrp, BytesToWords(raw))
}

func decode32(wantHRP, s string) (string, error) {
	hrp, words, err := Bech32DecodeVerified(s)
	if err != nil {
		return "", err
	}
	if hrp != wantHRP {
		return "", malformed("invalid hrp for %s", wantHRP)
	}
	raw := WordsToBytes(words)
	if len(raw) != 32 {
		return "", malformed("invalid %s length", wantHRP)
	}
	return hex.EncodeToString(raw), nil
}

func decodeTLVString(wantHRP, s string) ([]byte, error) {
	hrp, words, err := Bech32DecodeVerified(s)
	if err != nil {
		return nil, err
	}
	if hrp != wantHRP {
		return nil, malformed("invalid hrp for %s", wantHRP)
	}
	return WordsToBytes(words), nil
}

// walkTLV stops at the first truncated record.
func walkTLV(data []byte, fn func(t byte, v []byte)) {
	for i := 0; i+2 <= len(data); {
		t, l := data[i], int(data[i+1])
		i += 2
		if i+l > len(data) {
			return
		}
		fn(t, data[i:i+l])
		i += l
	}
}

func normalizeHex32(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return "", malformed("expected 32-byte hex key")
	}
	return s, nil
}
