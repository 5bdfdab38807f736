package cache

import "time"

// CacheConfig holds cache TTL configuration
type CacheConfig struct {
	SettingsTTL         time.Duration
	SettingsNotFoundTTL time.Duration
	ProfileTTL          time.Duration
	WalletInfoTTL       time.Duration
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		SettingsTTL:         10 * time.Minute, // creators rarely reprice
		SettingsNotFoundTTL: 1 * time.Minute,
		ProfileTTL:          1 * time.Hour,
		WalletInfoTTL:       5 * time.Minute, // balance/transactions refresh interval
	}
}
