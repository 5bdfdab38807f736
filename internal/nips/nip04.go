package nips

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

// GetNip04SharedSecret computes the AES key for NIP-04: the raw ECDH x
// coordinate, left-padded to 32 bytes.
func GetNip04SharedSecret(privKeyBytes []byte, pubKeyBytes []byte) ([]byte, error) {
	return sharedX(privKeyBytes, pubKeyBytes)
}

// Nip04Encrypt encrypts plaintext with AES-256-CBC.
// Returns format: base64(ciphertext)?iv=base64(iv)
func Nip04Encrypt(plaintext string, sharedSecret []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	return nip04EncryptWithIV(plaintext, sharedSecret, iv)
}

func nip04EncryptWithIV(plaintext string, sharedSecret, iv []byte) (string, error) {
	if len(sharedSecret) != 32 {
		return "", errors.New("NIP-04 shared secret must be 32 bytes")
	}
	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+padLen)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(padLen)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return base64.StdEncoding.EncodeToString(buf) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Nip04Decrypt decrypts a NIP-04 payload and strips PKCS7 padding.
func Nip04Decrypt(payload string, sharedSecret []byte) (string, error) {
	ctB64, ivB64, ok := strings.Cut(payload, "?iv=")
	if !ok {
		return "", errors.New("invalid NIP-04 payload format")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", errors.New("invalid ciphertext base64")
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", errors.New("invalid IV base64")
	}
	if len(iv) != aes.BlockSize {
		return "", errors.New("invalid IV length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not a multiple of block size")
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return "", errors.New("invalid padding")
	}
	for _, b := range plaintext[len(plaintext)-padLen:] {
		if int(b) != padLen {
			return "", errors.New("invalid padding bytes")
		}
	}
	return string(plaintext[:len(plaintext)-padLen]), nil
}
