package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"RELAYS", "NWC_TIMEOUT", "LNURL_TIMEOUT", "NWC_URI", "WALLET_LOGS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Relays, DefaultRelays) {
		t.Errorf("relays = %v, want %v", cfg.Relays, DefaultRelays)
	}
	if cfg.NWCTimeout != 15*time.Second {
		t.Errorf("NWC timeout = %v", cfg.NWCTimeout)
	}
	if cfg.LnurlTimeout != 10*time.Second {
		t.Errorf("LNURL timeout = %v", cfg.LnurlTimeout)
	}
	if cfg.WalletConfigured() {
		t.Error("wallet should not be configured")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELAYS", "wss://relay.one.example/, wss://relay.one.example ,https://bad.example, wss://relay.two.example")
	t.Setenv("NWC_TIMEOUT", "5s")
	t.Setenv("WALLET_LOGS", "true")
	t.Setenv("NWC_URI", " nostr+walletconnect://abc ")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"wss://relay.one.example", "wss://relay.two.example"}
	if !reflect.DeepEqual(cfg.Relays, want) {
		t.Errorf("relays = %v, want %v", cfg.Relays, want)
	}
	if cfg.NWCTimeout != 5*time.Second {
		t.Errorf("NWC timeout = %v", cfg.NWCTimeout)
	}
	if !cfg.WalletLogs {
		t.Error("wallet logs should be enabled")
	}
	if cfg.NWCURI != "nostr+walletconnect://abc" {
		t.Errorf("NWC URI = %q", cfg.NWCURI)
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zapwallet.yaml")
	body := "HTTP_ADDR: \":9999\"\nLNURL_TIMEOUT: 3s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LNURL_TIMEOUT", "4s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTP addr = %q", cfg.HTTPAddr)
	}
	if cfg.LnurlTimeout != 4*time.Second {
		t.Errorf("LNURL timeout = %v, env should win", cfg.LnurlTimeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("RELAYS", "https://not-a-relay.example")
	if _, err := Load(""); err == nil {
		t.Error("expected error for relay list without valid URLs")
	}

	t.Setenv("RELAYS", "wss://relay.damus.io")
	t.Setenv("NWC_TIMEOUT", "0s")
	if _, err := Load(""); err == nil {
		t.Error("expected error for zero timeout")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
