package nostr

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/types"
)

// Signer is the user's signing capability. Implementations may be local keys,
// a remote bunker or a browser extension bridge.
type Signer interface {
	GetPublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, evt *types.Event) error
}

// KeySigner signs with an in-memory secret key.
type KeySigner struct {
	secret []byte
	pubkey string
}

// NewKeySigner accepts a 64-char hex secret or an nsec.
func NewKeySigner(secret string) (*KeySigner, error) {
	secret = strings.TrimSpace(secret)
	var raw []byte
	if strings.HasPrefix(secret, "nsec1") {
		hrp, words, err := nips.Bech32DecodeVerified(secret)
		if err != nil {
			return nil, err
		}
		if hrp != "nsec" {
			return nil, errors.New("not an nsec")
		}
		raw = nips.WordsToBytes(words)
	} else {
		var err error
		raw, err = hex.DecodeString(secret)
		if err != nil {
			return nil, errors.New("secret key must be hex or nsec")
		}
	}
	if len(raw) != 32 {
		return nil, errors.New("secret key must be 32 bytes")
	}
	pub, err := nips.GetPublicKey(raw)
	if err != nil {
		return nil, err
	}
	return &KeySigner{secret: raw, pubkey: hex.EncodeToString(pub)}, nil
}

// GenerateKeySigner returns a signer over a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	priv, err := nips.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return NewKeySigner(hex.EncodeToString(priv))
}

func (s *KeySigner) GetPublicKey(ctx context.Context) (string, error) {
	return s.pubkey, nil
}

func (s *KeySigner) SignEvent(ctx context.Context, evt *types.Event) error {
	return SignEvent(evt, s.secret)
}
