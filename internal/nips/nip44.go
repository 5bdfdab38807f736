package nips

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"math/bits"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// NIP-44 version 2

const (
	nip44Version     = 2
	nip44Salt        = "nip44-v2"
	maxPlaintextSize = 65535
)

// GetConversationKey derives the NIP-44 conversation key:
// HKDF-extract(salt="nip44-v2", ikm=ECDH x).
func GetConversationKey(privKeyBytes []byte, pubKeyBytes []byte) ([]byte, error) {
	x, err := sharedX(privKeyBytes, pubKeyBytes)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(sha256.New, x, []byte(nip44Salt)), nil
}

func nip44MessageKeys(conversationKey, nonce []byte) (key, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, errors.New("invalid conversation key length")
	}
	if len(nonce) != 32 {
		return nil, nil, nil, errors.New("invalid nonce length")
	}
	keys := make([]byte, 76)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, conversationKey, nonce), keys); err != nil {
		return nil, nil, nil, err
	}
	return keys[0:32], keys[32:44], keys[44:76], nil
}

func nip44PaddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

func nip44Pad(plaintext []byte) ([]byte, error) {
	if len(plaintext) < 1 || len(plaintext) > maxPlaintextSize {
		return nil, errors.New("invalid plaintext length")
	}
	out := make([]byte, 2+nip44PaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(out, uint16(len(plaintext)))
	copy(out[2:], plaintext)
	return out, nil
}

func nip44Unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, errors.New("padded data too short")
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n == 0 || n > len(padded)-2 || len(padded) != 2+nip44PaddedLen(n) {
		return nil, errors.New("invalid padding")
	}
	return padded[2 : 2+n], nil
}

func nip44MAC(key, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// Nip44Encrypt encrypts plaintext using NIP-44 version 2
func Nip44Encrypt(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return nip44EncryptWithNonce(plaintext, conversationKey, nonce)
}

func nip44EncryptWithNonce(plaintext string, conversationKey, nonce []byte) (string, error) {
	key, chachaNonce, hmacKey, err := nip44MessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	padded, err := nip44Pad([]byte(plaintext))
	if err != nil {
		return "", err
	}
	c, err := chacha20.NewUnauthenticatedCipher(key, chachaNonce)
	if err != nil {
		return "", err
	}
	c.XORKeyStream(padded, padded)

	out := make([]byte, 0, 1+32+len(padded)+32)
	out = append(out, nip44Version)
	out = append(out, nonce...)
	out = append(out, padded...)
	out = append(out, nip44MAC(hmacKey, nonce, padded)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Nip44Decrypt decrypts a NIP-44 encrypted payload
func Nip44Decrypt(payload string, conversationKey []byte) (string, error) {
	if len(payload) > 0 && payload[0] == '#' {
		return "", errors.New("unsupported encryption version")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.New("invalid base64")
	}
	if len(data) < 99 || len(data) > 65603 {
		return "", errors.New("invalid payload size")
	}
	if data[0] != nip44Version {
		return "", errors.New("unknown version")
	}

	nonce := data[1:33]
	ciphertext := data[33 : len(data)-32]
	mac := data[len(data)-32:]

	key, chachaNonce, hmacKey, err := nip44MessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(nip44MAC(hmacKey, nonce, ciphertext), mac) {
		return "", errors.New("invalid MAC")
	}
	c, err := chacha20.NewUnauthenticatedCipher(key, chachaNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	c.XORKeyStream(padded, ciphertext)

	plaintext, err := nip44Unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
