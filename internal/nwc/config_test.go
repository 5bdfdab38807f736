package nwc

import (
	"strings"
	"testing"
)

const (
	testWallet = "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"
	testSecret = "71a8c14c1407c113601079c4302dab36460f0ccd0ad506f1f2dc73b5100e4f3c"
)

func TestParseURI(t *testing.T) {
	uri := "nostr+walletconnect://" + testWallet +
		"?relay=wss%3A%2F%2Frelay.damus.io&relay=wss://nos.lol/&relay=wss://relay.damus.io&secret=" + testSecret + "&lud16=alice%40getalby.com"

	cfg, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if cfg.WalletPubKeyHex() != testWallet {
		t.Errorf("wallet = %s", cfg.WalletPubKeyHex())
	}
	if got := strings.Join(cfg.Relays, ","); got != "wss://relay.damus.io,wss://nos.lol" {
		t.Errorf("relays = %s", got)
	}
	if cfg.Lud16 != "alice@getalby.com" {
		t.Errorf("lud16 = %q", cfg.Lud16)
	}
	if len(cfg.ClientPubKey) != 32 || len(cfg.Nip04SharedKey) != 32 || len(cfg.ConversationKey) != 32 {
		t.Error("derived keys missing")
	}

	again, err := ParseURI(cfg.URI())
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if again.URI() != cfg.URI() {
		t.Errorf("round trip mismatch:\n%s\n%s", again.URI(), cfg.URI())
	}
}

func TestParseURIErrors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"scheme", "nostrwalletconnect://" + testWallet + "?relay=wss://nos.lol&secret=" + testSecret},
		{"short pubkey", "nostr+walletconnect://abcd?relay=wss://nos.lol&secret=" + testSecret},
		{"bad pubkey hex", "nostr+walletconnect://" + strings.Repeat("z", 64) + "?relay=wss://nos.lol&secret=" + testSecret},
		{"no relay", "nostr+walletconnect://" + testWallet + "?secret=" + testSecret},
		{"http relay", "nostr+walletconnect://" + testWallet + "?relay=https://nos.lol&secret=" + testSecret},
		{"no secret", "nostr+walletconnect://" + testWallet + "?relay=wss://nos.lol"},
		{"short secret", "nostr+walletconnect://" + testWallet + "?relay=wss://nos.lol&secret=abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseURI(tt.uri); err == nil {
				t.Error("expected error")
			}
		})
	}
}
