// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML/JSON/TOML config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"nostr-zapwallet/internal/nostr"
)

// DefaultRelays are used when RELAYS is unset.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
}

// Config is the resolved process configuration.
type Config struct {
	LogLevel   string
	WalletLogs bool

	NWCURI     string
	NWCTimeout time.Duration

	// SecretKey signs zap requests, receipts and settings (hex or nsec).
	SecretKey string
	Relays    []string

	RedisURL    string
	CachePrefix string

	HTTPAddr string

	LnurlTimeout       time.Duration
	LnurlAllowInsecure bool
}

// Load reads configuration. A .env file in the working directory is
// loaded first if present; configFile may be empty. Environment variables
// override file values.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WALLET_LOGS", false)
	v.SetDefault("NWC_TIMEOUT", "15s")
	v.SetDefault("RELAYS", strings.Join(DefaultRelays, ","))
	v.SetDefault("CACHE_PREFIX", "zapwallet:")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LNURL_TIMEOUT", "10s")
	v.SetDefault("LNURL_ALLOW_INSECURE", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		WalletLogs:         v.GetBool("WALLET_LOGS"),
		NWCURI:             strings.TrimSpace(v.GetString("NWC_URI")),
		NWCTimeout:         v.GetDuration("NWC_TIMEOUT"),
		SecretKey:          strings.TrimSpace(v.GetString("NOSTR_SECRET_KEY")),
		Relays:             splitRelays(v.GetString("RELAYS")),
		RedisURL:           v.GetString("REDIS_URL"),
		CachePrefix:        v.GetString("CACHE_PREFIX"),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		LnurlTimeout:       v.GetDuration("LNURL_TIMEOUT"),
		LnurlAllowInsecure: v.GetBool("LNURL_ALLOW_INSECURE"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	if c.NWCTimeout <= 0 {
		return fmt.Errorf("NWC_TIMEOUT must be positive")
	}
	if c.LnurlTimeout <= 0 {
		return fmt.Errorf("LNURL_TIMEOUT must be positive")
	}
	if len(c.Relays) == 0 {
		return fmt.Errorf("RELAYS contains no valid relay URL")
	}
	return nil
}

// WalletConfigured reports whether a wallet connection string is set.
func (c *Config) WalletConfigured() bool {
	return c.NWCURI != ""
}

// splitRelays accepts comma- or whitespace-separated relay URLs and drops
// invalid ones.
func splitRelays(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	return nostr.NormalizeRelayURLs(fields)
}
