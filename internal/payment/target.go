package payment

import (
	"strings"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/types"
)

// Normalize rewrites NIP-19 identifiers to the hex and coordinate forms
// used in zap request tags. Accepted: npub or hex for the recipient, note,
// nevent or hex for the event, naddr or kind:pubkey:d for the address.
func (t *ZapTarget) Normalize() error {
	pk, err := nips.DecodePubkey(strings.TrimSpace(t.RecipientPubkey))
	if err != nil {
		return types.WrapError(types.KindMalformedEncoding, err, "zap recipient")
	}
	t.RecipientPubkey = pk

	switch id := strings.TrimSpace(t.EventID); {
	case id == "":
	case strings.HasPrefix(id, "note1"):
		if t.EventID, err = nips.DecodeNote(id); err != nil {
			return types.WrapError(types.KindMalformedEncoding, err, "zapped event")
		}
	case strings.HasPrefix(id, "nevent1"):
		ev, err := nips.DecodeNEvent(id)
		if err != nil {
			return types.WrapError(types.KindMalformedEncoding, err, "zapped event")
		}
		t.EventID = ev.EventID
	default:
		if t.EventID, err = nips.DecodePubkey(id); err != nil {
			return types.WrapError(types.KindMalformedEncoding, err, "zapped event")
		}
	}

	if a := strings.TrimSpace(t.ATag); strings.HasPrefix(a, "naddr1") {
		addr, err := nips.DecodeNAddr(a)
		if err != nil {
			return types.WrapError(types.KindMalformedEncoding, err, "zapped address")
		}
		t.ATag = addr.ATag()
	}
	return nil
}
