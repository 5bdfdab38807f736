// Package nwc is the Nostr Wallet Connect (NIP-47) client. Every request is
// raced across all of the connection's relays; connections live for one
// request only.
package nwc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/nostr"
)

const uriScheme = "nostr+walletconnect://"

// Config holds wallet connection parameters extracted from URI
type Config struct {
	WalletPubKey    []byte   // Wallet service public key (32 bytes)
	Relays          []string // Relays the service listens on
	Secret          []byte   // Client secret used to sign and encrypt (32 bytes)
	ClientPubKey    []byte   // Derived public key from secret
	Lud16           string   // Optional lightning address of the wallet
	Nip04SharedKey  []byte   // Pre-computed shared secret (NIP-04)
	ConversationKey []byte   // Pre-computed conversation key (NIP-44)
}

// ParseURI parses a nostr+walletconnect:// URI.
// Format: nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&relay=<...>&secret=<hex>[&lud16=...]
func ParseURI(nwcURI string) (*Config, error) {
	nwcURI = strings.TrimSpace(nwcURI)
	if !strings.HasPrefix(nwcURI, uriScheme) {
		return nil, errors.New("invalid NWC URI: must start with nostr+walletconnect://")
	}

	// Go's url.Parse rejects the custom scheme
	parseable := "https://" + nwcURI[len(uriScheme):]
	u, err := url.Parse(parseable)
	if err != nil {
		return nil, fmt.Errorf("invalid NWC URI: %w", err)
	}

	walletPubKeyHex := strings.ToLower(u.Host)
	if len(walletPubKeyHex) != 64 {
		return nil, errors.New("invalid wallet pubkey: must be 64 hex characters")
	}
	walletPubKey, err := hex.DecodeString(walletPubKeyHex)
	if err != nil {
		return nil, errors.New("invalid wallet pubkey: not valid hex")
	}

	q := u.Query()
	var relays []string
	for _, r := range q["relay"] {
		if !strings.HasPrefix(r, "wss://") && !strings.HasPrefix(r, "ws://") {
			return nil, fmt.Errorf("invalid relay URL %q: must start with wss:// or ws://", r)
		}
		relays = append(relays, r)
	}
	relays = nostr.NormalizeRelayURLs(relays)
	if len(relays) == 0 {
		return nil, errors.New("NWC URI must include relay parameter")
	}

	secretHex := q.Get("secret")
	if secretHex == "" {
		return nil, errors.New("NWC URI must include secret parameter")
	}
	if len(secretHex) != 64 {
		return nil, errors.New("invalid secret: must be 64 hex characters")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, errors.New("invalid secret: not valid hex")
	}

	clientPubKey, err := nips.GetPublicKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	nip04SharedKey, err := nips.GetNip04SharedSecret(secret, walletPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute NIP-04 shared key: %w", err)
	}
	conversationKey, err := nips.GetConversationKey(secret, walletPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute conversation key: %w", err)
	}

	return &Config{
		WalletPubKey:    walletPubKey,
		Relays:          relays,
		Secret:          secret,
		ClientPubKey:    clientPubKey,
		Lud16:           q.Get("lud16"),
		Nip04SharedKey:  nip04SharedKey,
		ConversationKey: conversationKey,
	}, nil
}

// WalletPubKeyHex returns the wallet's public key as hex string
func (c *Config) WalletPubKeyHex() string {
	return hex.EncodeToString(c.WalletPubKey)
}

// ClientPubKeyHex returns the client's public key as hex string
func (c *Config) ClientPubKeyHex() string {
	return hex.EncodeToString(c.ClientPubKey)
}

// URI renders the config back into connection-string form.
func (c *Config) URI() string {
	q := url.Values{}
	for _, r := range c.Relays {
		q.Add("relay", r)
	}
	q.Set("secret", hex.EncodeToString(c.Secret))
	if c.Lud16 != "" {
		q.Set("lud16", c.Lud16)
	}
	return uriScheme + c.WalletPubKeyHex() + "?" + q.Encode()
}
