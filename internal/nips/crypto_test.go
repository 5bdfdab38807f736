package nips

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func testKeyPair(t *testing.T) (priv, pub []byte) {
	t.Helper()
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pub, err = GetPublicKey(priv)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	if len(pub) != 32 {
		t.Fatalf("pubkey length = %d, want 32", len(pub))
	}
	return priv, pub
}

func TestNip04RoundTrip(t *testing.T) {
	alicePriv, alicePub := testKeyPair(t)
	bobPriv, bobPub := testKeyPair(t)

	s1, err := GetNip04SharedSecret(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("shared secret: %v", err)
	}
	s2, err := GetNip04SharedSecret(bobPriv, alicePub)
	if err != nil {
		t.Fatalf("shared secret: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatal("ECDH shared secrets differ")
	}

	for _, msg := range []string{"", "x", `{"method":"pay_invoice","params":{"invoice":"lnbc1"}}`, strings.Repeat("z", 16)} {
		ct, err := Nip04Encrypt(msg, s1)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if !strings.Contains(ct, "?iv=") {
			t.Errorf("ciphertext %q missing iv", ct)
		}
		pt, err := Nip04Decrypt(ct, s2)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if pt != msg {
			t.Errorf("decrypt = %q, want %q", pt, msg)
		}
	}
}

func TestNip04DecryptWrongKey(t *testing.T) {
	alicePriv, _ := testKeyPair(t)
	_, bobPub := testKeyPair(t)
	_, evePub := testKeyPair(t)

	right, _ := GetNip04SharedSecret(alicePriv, bobPub)
	wrong, _ := GetNip04SharedSecret(alicePriv, evePub)

	ct, err := Nip04Encrypt(`{"result_type":"pay_invoice"}`, right)
	if err != nil {
		t.Fatal(err)
	}
	if pt, err := Nip04Decrypt(ct, wrong); err == nil && pt == `{"result_type":"pay_invoice"}` {
		t.Error("decrypt with wrong key recovered plaintext")
	}
	if _, err := Nip04Decrypt("no-iv-here", right); err == nil {
		t.Error("expected format error")
	}
}

func TestNip44RoundTrip(t *testing.T) {
	alicePriv, alicePub := testKeyPair(t)
	bobPriv, bobPub := testKeyPair(t)

	k1, err := GetConversationKey(alicePriv, bobPub)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := GetConversationKey(bobPriv, alicePub)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("conversation keys differ")
	}

	msg := "zap zap " + strings.Repeat("⚡", 50)
	ct, err := Nip44Encrypt(msg, k1)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Nip44Decrypt(ct, k2)
	if err != nil {
		t.Fatal(err)
	}
	if pt != msg {
		t.Errorf("decrypt = %q", pt)
	}

	// tamper with the MAC
	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0x01
	if _, err := Nip44Decrypt(base64.StdEncoding.EncodeToString(raw), k2); err == nil {
		t.Error("expected MAC failure")
	}
}

func TestNip44PaddedLen(t *testing.T) {
	tests := []struct{ in, want int }{
		{1, 32}, {16, 32}, {32, 32}, {33, 64}, {64, 64}, {65, 96}, {257, 320}, {515, 640},
	}
	for _, tt := range tests {
		if got := nip44PaddedLen(tt.in); got != tt.want {
			t.Errorf("nip44PaddedLen(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
