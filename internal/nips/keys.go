package nips

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// GeneratePrivateKey generates a new random secp256k1 private key
func GeneratePrivateKey() ([]byte, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return privKey.Serialize(), nil
}

// GetPublicKey derives the BIP-340 x-only public key (32 bytes).
func GetPublicKey(privKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	return privKey.PubKey().SerializeCompressed()[1:], nil
}

// GetPublicKeyHex is GetPublicKey over hex strings.
func GetPublicKeyHex(privKeyHex string) (string, error) {
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return "", err
	}
	pub, err := GetPublicKey(raw)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}

// parseXOnly lifts an x-only key to a full point, trying the even y first.
func parseXOnly(pubKeyBytes []byte) (*btcec.PublicKey, error) {
	if len(pubKeyBytes) != 32 {
		return nil, errors.New("public key must be 32 bytes")
	}
	buf := make([]byte, 33)
	copy(buf[1:], pubKeyBytes)
	for _, prefix := range []byte{0x02, 0x03} {
		buf[0] = prefix
		if pk, err := btcec.ParsePubKey(buf); err == nil {
			return pk, nil
		}
	}
	return nil, errors.New("invalid public key")
}

// sharedX returns the 32-byte ECDH x coordinate between privKey and pubKey.
func sharedX(privKeyBytes, pubKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	pub, err := parseXOnly(pubKeyBytes)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	x := btcec.GenerateSharedSecret(priv, pub)
	if len(x) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(x):], x)
		return padded, nil
	}
	return x, nil
}
