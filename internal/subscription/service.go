// Package subscription serves paid creator subscriptions over Nostr: the
// creator's price settings, the viewer's access check and the invoice for
// a subscription payment.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"nostr-zapwallet/internal/cache"
	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/nostr"
	"nostr-zapwallet/internal/relay"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/util"
	"nostr-zapwallet/internal/zap"
)

// settingsEntry is the cached form of a settings lookup. A nil Settings
// records that the creator has published none.
type settingsEntry struct {
	Settings *zap.Settings `json:"settings,omitempty"`
}

// Service reads and writes subscription events on a fixed relay set.
type Service struct {
	pool   *relay.Pool
	relays []string
	signer nostr.Signer
	lnurl  *lnurl.Client
	ttl    cache.CacheConfig

	settings *cache.Store[settingsEntry]
	profiles *cache.Store[types.CachedProfile]
	group    singleflight.Group

	now func() time.Time
}

// Config wires a Service.
type Config struct {
	Pool   *relay.Pool
	Relays []string
	// Signer signs published settings and receipts. May be nil for a
	// read-only service.
	Signer nostr.Signer
	Lnurl  *lnurl.Client
	Cache  cache.CacheBackend
	TTL    cache.CacheConfig
}

// NewService creates a Service. A nil Cache uses a private memory cache.
func NewService(cfg Config) *Service {
	backend := cfg.Cache
	if backend == nil {
		backend = cache.NewMemoryCache(1000, time.Minute)
	}
	ttl := cfg.TTL
	if ttl == (cache.CacheConfig{}) {
		ttl = cache.DefaultCacheConfig()
	}
	return &Service{
		pool:     cfg.Pool,
		relays:   cfg.Relays,
		signer:   cfg.Signer,
		lnurl:    cfg.Lnurl,
		ttl:      ttl,
		settings: cache.NewStore[settingsEntry](backend, "sub-settings"),
		profiles: cache.NewStore[types.CachedProfile](backend, "profile"),
		now:      time.Now,
	}
}

// FetchSettings returns creator's newest published settings, or nil when
// there are none. Results, including absence, are cached.
func (s *Service) FetchSettings(ctx context.Context, creator string) (*zap.Settings, error) {
	if entry, ok, _ := s.settings.Get(ctx, creator); ok {
		return entry.Settings, nil
	}

	v, err, _ := s.group.Do("settings:"+creator, func() (interface{}, error) {
		events, err := s.pool.QuerySync(ctx, s.relays, zap.SettingsFilter(creator))
		if err != nil {
			return nil, err
		}
		settings, err := zap.LatestSettings(events, creator)
		if err != nil {
			slog.Warn("subscription: unreadable settings event", "creator", types.ShortID(creator), "error", err)
			settings = nil
		}
		ttl := s.ttl.SettingsTTL
		if settings == nil {
			ttl = s.ttl.SettingsNotFoundTTL
		}
		if err := s.settings.Set(ctx, creator, &settingsEntry{Settings: settings}, ttl); err != nil {
			slog.Debug("subscription: settings cache write failed", "error", err)
		}
		return settings, nil
	})
	if err != nil {
		return nil, err
	}
	settings, _ := v.(*zap.Settings)
	return settings, nil
}

// SettingsOrDefault is FetchSettings with the default offer substituted
// for a creator who has published none.
func (s *Service) SettingsOrDefault(ctx context.Context, creator string) (*zap.Settings, error) {
	settings, err := s.FetchSettings(ctx, creator)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return zap.DefaultSettings(), nil
	}
	return settings, nil
}

// PublishSettings signs and publishes settings as the signer's own offer.
// Bundle totals are recomputed from the monthly price first.
func (s *Service) PublishSettings(ctx context.Context, settings *zap.Settings) (*types.Event, error) {
	if settings.MonthlyPrice <= 0 {
		return nil, types.NewError(types.KindAmountOutOfRange, "monthly price must be positive")
	}
	cp := *settings
	cp.Bundles = append([]zap.Bundle(nil), settings.Bundles...)
	cp.Recalculate()

	evt, err := zap.BuildSettingsEvent(&cp)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, evt); err != nil {
		return nil, err
	}
	if err := s.settings.Set(ctx, evt.PubKey, &settingsEntry{Settings: &cp}, s.ttl.SettingsTTL); err != nil {
		slog.Debug("subscription: settings cache write failed", "error", err)
	}
	return evt, nil
}

// PublishReceipt signs and publishes a receipt granting the signer access
// to creator for months.
func (s *Service) PublishReceipt(ctx context.Context, creator string, months int, amountSats int64, paymentHash string) (*types.Event, error) {
	if months <= 0 {
		return nil, types.NewError(types.KindAmountOutOfRange, "months must be positive")
	}
	evt := zap.BuildSubscriptionReceipt(creator, months, amountSats, paymentHash)
	if err := s.publish(ctx, evt); err != nil {
		return nil, err
	}
	slog.Info("subscription: receipt published", "creator", types.ShortID(creator), "months", months, "event_id", types.ShortID(evt.ID))
	return evt, nil
}

func (s *Service) publish(ctx context.Context, evt *types.Event) error {
	if s.signer == nil {
		return types.NewError(types.KindNotInitialized, "no signing key configured")
	}
	if err := s.signer.SignEvent(ctx, evt); err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	_, err := s.pool.Publish(ctx, s.relays, evt)
	return err
}

// HasAccess reports whether viewer holds an unexpired receipt for creator.
// Receipts are never cached.
func (s *Service) HasAccess(ctx context.Context, viewer, creator string) (bool, error) {
	if viewer == creator {
		return true, nil
	}
	events, err := s.pool.QuerySync(ctx, s.relays, zap.ReceiptFilter(viewer, creator))
	if err != nil {
		return false, err
	}
	return zap.ValidateSubscriptionAccess(events, viewer, creator, s.now()), nil
}

// Expiry returns when viewer's newest receipt for creator lapses, or the
// zero time when there is none.
func (s *Service) Expiry(ctx context.Context, viewer, creator string) (time.Time, error) {
	events, err := s.pool.QuerySync(ctx, s.relays, zap.ReceiptFilter(viewer, creator))
	if err != nil {
		return time.Time{}, err
	}
	latest := zap.LatestReceipt(events, viewer, creator)
	if latest == nil {
		return time.Time{}, nil
	}
	return time.Unix(zap.SubscriptionExpiry(latest), 0), nil
}

// Profile returns pubkey's kind-0 metadata, or nil when none is published.
// Misses are cached for the not-found TTL.
func (s *Service) Profile(ctx context.Context, pubkey string) (*types.ProfileInfo, error) {
	if cp, ok, _ := s.profiles.Get(ctx, pubkey); ok {
		return cp.Profile, nil
	}
	v, err, _ := s.group.Do("profile:"+pubkey, func() (interface{}, error) {
		events, err := s.pool.QuerySync(ctx, s.relays, types.Filter{
			Kinds:   []int{types.KindMetadata},
			Authors: []string{pubkey},
			Limit:   1,
		})
		if err != nil {
			return nil, err
		}
		entry := &types.CachedProfile{FetchedAt: s.now().Unix(), NotFound: len(events) == 0}
		ttl := s.ttl.SettingsNotFoundTTL
		if !entry.NotFound {
			p, err := types.ParseProfile(events[0].Content)
			if err != nil {
				return nil, types.WrapError(types.KindMalformedEncoding, err, "profile of %s", types.ShortID(pubkey))
			}
			entry.Profile = p
			ttl = s.ttl.ProfileTTL
		}
		if err := s.profiles.Set(ctx, pubkey, entry, ttl); err != nil {
			slog.Debug("subscription: profile cache write failed", "error", err)
		}
		return entry.Profile, nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*types.ProfileInfo)
	return p, nil
}

// Invoice is a BOLT11 invoice for months of creator's subscription at
// pricePerMonth sats, requested from the creator's Lightning address.
func (s *Service) Invoice(ctx context.Context, creator string, months int, pricePerMonth int64) (string, error) {
	if months <= 0 || pricePerMonth <= 0 {
		return "", types.NewError(types.KindAmountOutOfRange, "months and price must be positive")
	}
	if s.lnurl == nil {
		return "", types.NewError(types.KindNotInitialized, "no LNURL client configured")
	}
	profile, err := s.Profile(ctx, creator)
	if err != nil {
		return "", err
	}
	if !profile.CanReceiveZaps() {
		return "", types.NewError(types.KindUnsupportedDestination, "creator has no Lightning address configured")
	}

	params, err := s.lnurl.FetchTarget(ctx, profile.PayTarget())
	if err != nil {
		return "", err
	}
	totalSats := int64(months) * pricePerMonth
	comment := InvoiceComment(months, totalSats)
	comment = util.TruncateRunes(comment, params.CommentAllowed)
	return s.lnurl.RequestInvoice(ctx, params, totalSats*1000, comment, "")
}

// InvoiceComment is the payer comment attached to subscription invoices.
func InvoiceComment(months int, totalSats int64) string {
	return fmt.Sprintf("Subscription for %d month(s) (%d sats) via Nostr", months, totalSats)
}
