// Package nostr holds event identity and signing: NIP-01 id computation,
// BIP-340 signatures and the Signer capability.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-zapwallet/internal/types"
)

// SerializeEvent returns the canonical NIP-01 serialization
// [0,pubkey,created_at,kind,tags,content] without HTML escaping.
func SerializeEvent(evt *types.Event) ([]byte, error) {
	tags := evt.Tags
	if tags == nil {
		tags = [][]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]interface{}{0, evt.PubKey, evt.CreatedAt, evt.Kind, tags, evt.Content}); err != nil {
		return nil, err
	}
	// Encoder appends a newline
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeEventID returns the hex sha256 of the canonical serialization.
func ComputeEventID(evt *types.Event) (string, error) {
	data, err := SerializeEvent(evt)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// SignEvent fills PubKey, ID and Sig using privKeyBytes.
func SignEvent(evt *types.Event, privKeyBytes []byte) error {
	if len(privKeyBytes) != 32 {
		return errors.New("private key must be 32 bytes")
	}
	privKey, pubKey := btcec.PrivKeyFromBytes(privKeyBytes)
	evt.PubKey = hex.EncodeToString(schnorr.SerializePubKey(pubKey))
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}

	id, err := ComputeEventID(evt)
	if err != nil {
		return err
	}
	evt.ID = id

	idBytes, _ := hex.DecodeString(id)
	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return err
	}
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// ValidateEventSignature verifies Schnorr signature for a Nostr event
func ValidateEventSignature(evt *types.Event) bool {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return false
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// VerifyEvent checks both the id and the signature.
func VerifyEvent(evt *types.Event) bool {
	id, err := ComputeEventID(evt)
	if err != nil || id != evt.ID {
		return false
	}
	return ValidateEventSignature(evt)
}

// ParseEventFromInterface converts raw websocket data to Event (avoids JSON re-encoding).
// Events carrying a signature are rejected when it does not verify.
func ParseEventFromInterface(data interface{}) (types.Event, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return types.Event{}, false
	}

	evt := types.Event{}
	evt.ID, _ = m["id"].(string)
	evt.PubKey, _ = m["pubkey"].(string)
	evt.Content, _ = m["content"].(string)
	evt.Sig, _ = m["sig"].(string)
	if createdAt, ok := m["created_at"].(float64); ok {
		evt.CreatedAt = int64(createdAt)
	}
	if kind, ok := m["kind"].(float64); ok {
		evt.Kind = int(kind)
	}

	if tags, ok := m["tags"].([]interface{}); ok {
		evt.Tags = make([][]string, 0, len(tags))
		for _, tag := range tags {
			tagArr, ok := tag.([]interface{})
			if !ok {
				continue
			}
			strTag := make([]string, 0, len(tagArr))
			for _, elem := range tagArr {
				if s, ok := elem.(string); ok {
					strTag = append(strTag, s)
				}
			}
			evt.Tags = append(evt.Tags, strTag)
		}
	}

	if evt.Sig != "" && !ValidateEventSignature(&evt) {
		slog.Warn("event signature validation failed", "event_id", types.ShortID(evt.ID))
		return types.Event{}, false
	}

	return evt, evt.ID != ""
}
